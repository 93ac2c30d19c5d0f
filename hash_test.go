package melda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashStableUnderKeyOrder(t *testing.T) {
	a := map[string]Value{"b": 1.0, "a": 2.0}
	b := map[string]Value{"a": 2.0, "b": 1.0}

	ha, err := ContentHash(a)
	require.NoError(t, err)
	hb, err := ContentHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb, "canonicalization must ignore map iteration/insertion order")
}

func TestContentHashDistinguishesValues(t *testing.T) {
	a, err := ContentHash(map[string]Value{"x": 1.0})
	require.NoError(t, err)
	b, err := ContentHash(map[string]Value{"x": 2.0})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestContentHashCoversAllScalars(t *testing.T) {
	values := []Value{nil, true, false, 0.0, -3.5, "", "hello", []Value{1.0, "a"}}
	seen := map[string]bool{}
	for _, v := range values {
		h, err := ContentHash(v)
		require.NoError(t, err)
		assert.False(t, seen[h], "unexpected collision for %#v", v)
		seen[h] = true
	}
}

func TestCanonicalBytesSortsNestedKeys(t *testing.T) {
	v := map[string]Value{
		"z": map[string]Value{"b": 1.0, "a": 2.0},
		"a": []Value{map[string]Value{"y": 1.0, "x": 2.0}},
	}
	buf, err := CanonicalBytes(v)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"a":2,"b":1`)
	assert.Contains(t, string(buf), `"x":2,"y":1`)
}

func TestDecodeJSONPreservesNumberLiteralThroughContentHash(t *testing.T) {
	decoded, err := DecodeJSON([]byte(`{"n": 1.0}`))
	require.NoError(t, err)

	h1, err := ContentHash(decoded)
	require.NoError(t, err)

	buf, err := CanonicalBytes(decoded)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"n":1.0`, "decoded literal \"1.0\" must survive canonicalization, not collapse to \"1\"")

	h2, err := ContentHash(map[string]Value{"n": 1.0})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "a decoded \"1.0\" and an authored float64 1.0 canonicalize to different literal text")
}

func TestDecodeJSONPreservesLargeIntegerPrecision(t *testing.T) {
	// 9007199254740993 is one past the largest integer a float64 can
	// represent exactly; a float64 round trip would collapse it to
	// 9007199254740992.
	decoded, err := DecodeJSON([]byte(`{"n": 9007199254740993}`))
	require.NoError(t, err)

	buf, err := CanonicalBytes(decoded)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"n":9007199254740993`)
}

func TestContentHashRejectsUnsupportedType(t *testing.T) {
	_, err := ContentHash(make(chan int))
	require.Error(t, err)
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindBadShape, kind)
}
