// report.go prints a human-readable conflict report, the same
// indent-and-color text-report shape this package's formatter used for
// insert/delete/update deltas, retargeted at RevisionTree conflicts: for
// every object with more than one surviving leaf after a meld, which
// revision won and which lost.
package melda

import (
	"bytes"
	"fmt"
	"io"
	"sort"
)

// ConflictReportString is a convenience wrapper around ConflictReport
// that returns a string instead of writing to an io.Writer.
func ConflictReportString(conflicts map[string][]Revision, colorTTY bool) (string, error) {
	buf := &bytes.Buffer{}
	if err := ConflictReport(buf, conflicts, colorTTY); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ConflictReport writes one line per object id in conflicts, naming its
// winner and every non-winning (conflicting) revision. If colorTTY is
// true the winner is printed in green and conflicts in red.
func ConflictReport(w io.Writer, conflicts map[string][]Revision, colorTTY bool) error {
	var winColor, loseColor, closeColor string
	if colorTTY {
		winColor, loseColor, closeColor = "\x1b[32m", "\x1b[31m", "\x1b[0m"
	}

	ids := make([]string, 0, len(conflicts))
	for id := range conflicts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		revs := conflicts[id]
		if len(revs) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s%s%s: winner %s%s%s", id, closeColor, closeColor, winColor, revs[0], closeColor); err != nil {
			return err
		}
		for _, lost := range revs[1:] {
			if _, err := fmt.Fprintf(w, ", %slost %s%s", loseColor, lost, closeColor); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
