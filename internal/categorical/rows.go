// Package categorical samples a closed-set choice under several sampling
// configurations and measures the spread of the induced distribution with
// Shannon entropy.
package categorical

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mwiater/stochprobe/internal/store"
)

// Row is one persisted request.
type Row struct {
	ConfigName  string
	RequestID   int
	Temperature float64
	TopP        float64
	// Response is the raw model text, or ERROR for a failed call.
	Response  string
	Timestamp time.Time
}

// Key identifies a request within its configuration.
func Key(config string, requestID int) string {
	return config + "#" + strconv.Itoa(requestID)
}

// Codec is the CSV layout of a categorical sweep table.
var Codec = store.Codec[Row]{
	Header: []string{"config_name", "request_id", "temperature", "top_p", "response", "timestamp"},
	Encode: func(r Row) []string {
		return []string{
			r.ConfigName,
			strconv.Itoa(r.RequestID),
			strconv.FormatFloat(r.Temperature, 'f', -1, 64),
			strconv.FormatFloat(r.TopP, 'f', -1, 64),
			r.Response,
			r.Timestamp.Format(time.RFC3339Nano),
		}
	},
	Decode: func(rec []string) (Row, error) {
		var (
			r   Row
			err error
		)
		r.ConfigName = rec[0]
		if r.RequestID, err = strconv.Atoi(rec[1]); err != nil {
			return Row{}, fmt.Errorf("request_id: %w", err)
		}
		if r.Temperature, err = strconv.ParseFloat(rec[2], 64); err != nil {
			return Row{}, fmt.Errorf("temperature: %w", err)
		}
		if r.TopP, err = strconv.ParseFloat(rec[3], 64); err != nil {
			return Row{}, fmt.Errorf("top_p: %w", err)
		}
		r.Response = rec[4]
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, rec[5]); err != nil {
			return Row{}, fmt.Errorf("timestamp: %w", err)
		}
		return r, nil
	},
	Key: func(r Row) string { return Key(r.ConfigName, r.RequestID) },
}
