// internal/metrics/types.go
package metrics

import (
	"time"

	"github.com/mwiater/stochprobe/internal/stats"
)

// ModelMetrics is the in-process summary of calls made against one model.
type ModelMetrics struct {
	ModelName      string            `yaml:"model_name"`
	LastUpdatedUTC time.Time         `yaml:"last_updated_utc"`
	Outcomes       map[string]int64  `yaml:"outcomes"`
	LatencySeconds stats.RunningStat `yaml:"latency_seconds"`
}

// Outcome labels used on the call counter.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
)
