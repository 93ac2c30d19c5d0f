package fsstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melda-dev/melda"
)

func TestAdapterWriteReadRoundTrip(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, a.WriteObject("abc123.pack", []byte("content")))

	got, err := a.ReadObject("abc123.pack")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), got)
}

func TestAdapterReadMissingIsNotFound(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = a.ReadObject("missing.delta")
	assert.ErrorIs(t, err, melda.ErrNotFound)
}

func TestAdapterListObjectsFiltersByPrefixAndHidesLockfiles(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, a.WriteObject("abc.delta", []byte("x")))
	require.NoError(t, a.WriteObject("abc.pack", []byte("y")))
	require.NoError(t, a.WriteObject("def.delta", []byte("z")))

	keys, err := a.ListObjects("abc")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"abc.delta", "abc.pack"}, keys)
}

func TestAdapterWriteSameContentTwiceSkipsLock(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, a.WriteObject("k", []byte("same")))
	require.NoError(t, a.WriteObject("k", []byte("same")))

	got, err := a.ReadObject("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("same"), got)
}

func TestAdapterWriteLeavesNoLockfileOrTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, a.WriteObject("k.pack", []byte("v")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"k.pack"}, names)
}

func TestAdapterWriteRejectsWhenLockAlreadyHeld(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)

	lockFile, err := os.OpenFile(filepath.Join(dir, "k.lock"), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer lockFile.Close()
	defer os.Remove(filepath.Join(dir, "k.lock"))

	a.lockTimeout = 0 // fail fast instead of spinning the full deadline
	err = a.WriteObject("k", []byte("v"))
	assert.Error(t, err)
}

func TestNewCreatesDirIfMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "root")
	a, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, a.WriteObject("k", []byte("v")))

	got, err := a.ReadObject("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}
