package proportion

import (
	"regexp"
	"strings"

	"github.com/mwiater/stochprobe/internal/appconfig"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/providers"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// normalizeResponse trims the response and drops reasoning blocks some
// models emit before the answer.
func normalizeResponse(response string) string {
	trimmed := thinkBlock.ReplaceAllString(response, "")
	if idx := strings.Index(trimmed, "<think>"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// IsCorrect reports whether response is exactly the expected answer, with or
// without a trailing period.
func IsCorrect(response, expected string) bool {
	got := normalizeResponse(response)
	return got == expected || got == expected+"."
}

// Plan lists one single-call step per run, numbered from 1.
func Plan(cfg appconfig.ProportionExperiment) []harness.Step[Row] {
	req := providers.NewRequest(cfg.SystemPrompt, cfg.Prompt, cfg.Temperature, cfg.TopP, cfg.MaxTokens)
	plan := make([]harness.Step[Row], 0, cfg.Runs)
	for runID := 1; runID <= cfg.Runs; runID++ {
		plan = append(plan, harness.Step[Row]{
			Key:     Key(runID),
			Request: req,
			Build: func(outcomes []harness.Outcome) Row {
				return NewRow(runID, outcomes[0], cfg.Expected)
			},
		})
	}
	return plan
}

// NewRow scores one outcome. A failed call is stored as ERROR and does not
// count as an event.
func NewRow(runID int, o harness.Outcome, expected string) Row {
	if o.Status == harness.StatusError {
		return Row{RunID: runID, ResponseText: harness.ErrorSentinel, Event: 0}
	}
	text := normalizeResponse(o.Value)
	event := 1
	if IsCorrect(text, expected) {
		event = 0
	}
	return Row{RunID: runID, ResponseText: text, Event: event}
}
