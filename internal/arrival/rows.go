// Package arrival measures per-request latency and checks it against an
// exponential service-time model and, through a virtual back-to-back
// timeline, a Poisson arrival model.
package arrival

import (
	"fmt"
	"strconv"

	"github.com/mwiater/stochprobe/internal/store"
)

// Request status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Row is one persisted request. Times are Unix seconds.
type Row struct {
	RequestID      int
	TStart         float64
	TEnd           float64
	LatencySeconds float64
	Status         string
	ErrorType      string
}

// Key identifies a request.
func Key(requestID int) string { return strconv.Itoa(requestID) }

// Codec is the CSV layout of the latency table.
var Codec = store.Codec[Row]{
	Header: []string{"request_id", "t_start", "t_end", "latency_seconds", "status", "error_type"},
	Encode: func(r Row) []string {
		return []string{
			strconv.Itoa(r.RequestID),
			strconv.FormatFloat(r.TStart, 'f', 6, 64),
			strconv.FormatFloat(r.TEnd, 'f', 6, 64),
			strconv.FormatFloat(r.LatencySeconds, 'f', -1, 64),
			r.Status,
			r.ErrorType,
		}
	},
	Decode: func(rec []string) (Row, error) {
		var (
			r   Row
			err error
		)
		if r.RequestID, err = strconv.Atoi(rec[0]); err != nil {
			return Row{}, fmt.Errorf("request_id: %w", err)
		}
		if r.TStart, err = strconv.ParseFloat(rec[1], 64); err != nil {
			return Row{}, fmt.Errorf("t_start: %w", err)
		}
		if r.TEnd, err = strconv.ParseFloat(rec[2], 64); err != nil {
			return Row{}, fmt.Errorf("t_end: %w", err)
		}
		if r.LatencySeconds, err = strconv.ParseFloat(rec[3], 64); err != nil {
			return Row{}, fmt.Errorf("latency_seconds: %w", err)
		}
		switch rec[4] {
		case StatusOK, StatusError:
			r.Status = rec[4]
		default:
			return Row{}, fmt.Errorf("status: unknown value %q", rec[4])
		}
		r.ErrorType = rec[5]
		return r, nil
	},
	Key: func(r Row) string { return Key(r.RequestID) },
}
