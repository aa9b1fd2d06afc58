// Package proportion estimates the probability of a rare event, a wrong
// answer to a factual question, as a running Bernoulli proportion with a
// normal-approximation confidence interval.
package proportion

import (
	"fmt"
	"strconv"

	"github.com/mwiater/stochprobe/internal/store"
)

// Row is one persisted run.
type Row struct {
	RunID        int
	ResponseText string
	// Event is 1 when the answer was wrong, 0 otherwise (including failed calls).
	Event int
}

// Key identifies a run.
func Key(runID int) string { return strconv.Itoa(runID) }

// Codec is the CSV layout of the proportion table.
var Codec = store.Codec[Row]{
	Header: []string{"run_id", "response_text", "event"},
	Encode: func(r Row) []string {
		return []string{strconv.Itoa(r.RunID), r.ResponseText, strconv.Itoa(r.Event)}
	},
	Decode: func(rec []string) (Row, error) {
		id, err := strconv.Atoi(rec[0])
		if err != nil {
			return Row{}, fmt.Errorf("run_id: %w", err)
		}
		event, err := strconv.Atoi(rec[2])
		if err != nil || (event != 0 && event != 1) {
			return Row{}, fmt.Errorf("event: invalid indicator %q", rec[2])
		}
		return Row{RunID: id, ResponseText: rec[1], Event: event}, nil
	},
	Key: func(r Row) string { return Key(r.RunID) },
}
