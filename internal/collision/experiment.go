package collision

import (
	"regexp"
	"strings"

	"github.com/mwiater/stochprobe/internal/appconfig"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/providers"
)

var digitsPattern = regexp.MustCompile(`^\d+$`)

// Classify accepts responses made of digits only, ignoring surrounding whitespace.
func Classify(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if !digitsPattern.MatchString(s) {
		return "", false
	}
	return s, true
}

// Plan lists one step per (trial size, replicate), smallest N first.
// Replicates are numbered from 1.
func Plan(cfg appconfig.CollisionExperiment) []harness.Step[Row] {
	req := providers.NewRequest(cfg.SystemPrompt, cfg.Prompt, cfg.Temperature, cfg.TopP, cfg.MaxTokens)
	plan := make([]harness.Step[Row], 0, len(cfg.TrialSizes)*cfg.Replicates)
	for _, n := range cfg.TrialSizes {
		for trial := 1; trial <= cfg.Replicates; trial++ {
			plan = append(plan, harness.Step[Row]{
				Key:     Key(n, trial),
				Request: req,
				Calls:   n,
				Build: func(outcomes []harness.Outcome) Row {
					return NewRow(n, trial, values(outcomes))
				},
			})
		}
	}
	return plan
}

func values(outcomes []harness.Outcome) []string {
	out := make([]string, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Value
	}
	return out
}

// NewRow folds the responses of one trial. Sentinel values never collide
// with each other: each counts as its own distinct value.
func NewRow(n, trial int, responses []string) Row {
	unique := UniqueCount(responses)
	return Row{N: n, Trial: trial, UniqueCount: unique, Collision: unique < n, Responses: responses}
}

// UniqueCount returns the number of distinct valid responses plus the number
// of sentinel responses.
func UniqueCount(responses []string) int {
	seen := make(map[string]struct{}, len(responses))
	sentinels := 0
	for _, r := range responses {
		if r == harness.InvalidSentinel || r == harness.ErrorSentinel {
			sentinels++
			continue
		}
		seen[r] = struct{}{}
	}
	return len(seen) + sentinels
}
