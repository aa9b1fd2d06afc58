package arrival

import (
	"github.com/mwiater/stochprobe/internal/appconfig"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/providers"
)

// Plan lists one single-call step per request, numbered from 1.
func Plan(cfg appconfig.ArrivalExperiment) []harness.Step[Row] {
	req := providers.NewRequest("", cfg.Prompt, cfg.Temperature, cfg.TopP, cfg.MaxTokens)
	plan := make([]harness.Step[Row], 0, cfg.Requests)
	for id := 1; id <= cfg.Requests; id++ {
		plan = append(plan, harness.Step[Row]{
			Key:     Key(id),
			Request: req,
			Build: func(outcomes []harness.Outcome) Row {
				return NewRow(id, outcomes[0])
			},
		})
	}
	return plan
}

// NewRow records the timing of one call. The response text is not kept.
func NewRow(requestID int, o harness.Outcome) Row {
	row := Row{
		RequestID:      requestID,
		TStart:         harness.Seconds(o.Start),
		TEnd:           harness.Seconds(o.End),
		LatencySeconds: o.Latency().Seconds(),
		Status:         StatusOK,
	}
	if o.Status == harness.StatusError {
		row.Status = StatusError
		row.ErrorType = o.ErrorType
	}
	return row
}
