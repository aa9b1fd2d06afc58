// Package collision measures how often N independent model samples from a
// space of M integers repeat a value, and compares the rate with the
// birthday-problem approximation.
package collision

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mwiater/stochprobe/internal/store"
)

// Row is one persisted trial.
type Row struct {
	N           int
	Trial       int
	UniqueCount int
	Collision   bool
	Responses   []string
}

// Key identifies a trial by size and replicate.
func Key(n, trial int) string {
	return fmt.Sprintf("%d:%d", n, trial)
}

// Codec is the CSV layout of the collision table.
var Codec = store.Codec[Row]{
	Header: []string{"N", "trial", "unique_count", "collision", "responses"},
	Encode: func(r Row) []string {
		responses, _ := json.Marshal(r.Responses)
		return []string{
			strconv.Itoa(r.N),
			strconv.Itoa(r.Trial),
			strconv.Itoa(r.UniqueCount),
			strconv.FormatBool(r.Collision),
			string(responses),
		}
	},
	Decode: func(rec []string) (Row, error) {
		var (
			r   Row
			err error
		)
		if r.N, err = strconv.Atoi(rec[0]); err != nil {
			return Row{}, fmt.Errorf("N: %w", err)
		}
		if r.Trial, err = strconv.Atoi(rec[1]); err != nil {
			return Row{}, fmt.Errorf("trial: %w", err)
		}
		if r.UniqueCount, err = strconv.Atoi(rec[2]); err != nil {
			return Row{}, fmt.Errorf("unique_count: %w", err)
		}
		if r.Collision, err = strconv.ParseBool(rec[3]); err != nil {
			return Row{}, fmt.Errorf("collision: %w", err)
		}
		if err = json.Unmarshal([]byte(rec[4]), &r.Responses); err != nil {
			return Row{}, fmt.Errorf("responses: %w", err)
		}
		return r, nil
	},
	Key: func(r Row) string { return Key(r.N, r.Trial) },
}
