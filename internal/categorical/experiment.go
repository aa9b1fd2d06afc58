package categorical

import (
	"github.com/mwiater/stochprobe/internal/appconfig"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/providers"
)

// Plan lists RequestsPerConfig single-call steps for every configuration of
// sweep, configuration by configuration.
func Plan(cfg appconfig.CategoricalExperiment, sweep appconfig.Sweep) []harness.Step[Row] {
	plan := make([]harness.Step[Row], 0, len(sweep.Configs)*cfg.RequestsPerConfig)
	for _, sc := range sweep.Configs {
		req := providers.NewRequest("", cfg.Prompt, sc.Temperature, sc.TopP, cfg.MaxTokens)
		for id := 1; id <= cfg.RequestsPerConfig; id++ {
			plan = append(plan, harness.Step[Row]{
				Key:     Key(sc.Name, id),
				Request: req,
				Build: func(outcomes []harness.Outcome) Row {
					return NewRow(sc, id, outcomes[0])
				},
			})
		}
	}
	return plan
}

// NewRow keeps the raw response; normalisation happens at analysis time.
func NewRow(sc appconfig.SamplingConfig, requestID int, o harness.Outcome) Row {
	return Row{
		ConfigName:  sc.Name,
		RequestID:   requestID,
		Temperature: sc.Temperature,
		TopP:        sc.TopP,
		Response:    o.Value,
		Timestamp:   o.End,
	}
}
