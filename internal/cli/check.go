// internal/cli/check.go
package stochprobe

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwiater/stochprobe/internal/categorical"
	"github.com/mwiater/stochprobe/internal/collision"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/proportion"
	"github.com/mwiater/stochprobe/internal/providers"
)

// probe is one request sent by 'check' with the verdict it renders.
type probe struct {
	name    string
	request providers.InvokeRequest
	verdict func(raw string) string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Send one request per experiment prompt to verify the endpoint",
	Long: `Send a single request with each experiment's prompt and sampling settings
and show how the response would be classified. Nothing is persisted. The
command fails when any request fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Target: %s (%s)\n", s.cfg.Provider.URL, s.cfg.Provider.Model)
		failed := 0
		probes := checkProbes(s)
		for _, p := range probes {
			start := time.Now()
			raw, err := s.invoker.Invoke(ctx, p.request)
			if err != nil {
				failed++
				s.console.Probe(p.name, 0, "", "", err)
				if ctx.Err() != nil {
					break
				}
				continue
			}
			s.console.Probe(p.name, time.Since(start), raw, p.verdict(raw), nil)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d probes failed", failed, len(probes))
		}
		return nil
	},
}

func checkProbes(s *session) []probe {
	exp := s.cfg.Experiments
	probes := []probe{
		{
			name:    "collision",
			request: providers.NewRequest(exp.Collision.SystemPrompt, exp.Collision.Prompt, exp.Collision.Temperature, exp.Collision.TopP, exp.Collision.MaxTokens),
			verdict: func(raw string) string {
				if v, ok := collision.Classify(raw); ok {
					return v
				}
				return harness.InvalidSentinel
			},
		},
		{
			name:    "proportion",
			request: providers.NewRequest(exp.Proportion.SystemPrompt, exp.Proportion.Prompt, exp.Proportion.Temperature, exp.Proportion.TopP, exp.Proportion.MaxTokens),
			verdict: func(raw string) string {
				if proportion.IsCorrect(raw, exp.Proportion.Expected) {
					return "correct"
				}
				return "wrong"
			},
		},
		{
			name:    "arrival",
			request: providers.NewRequest("", exp.Arrival.Prompt, exp.Arrival.Temperature, exp.Arrival.TopP, exp.Arrival.MaxTokens),
			verdict: func(string) string { return "ok" },
		},
	}

	cat := exp.Categorical
	if len(cat.Sweeps) > 0 && len(cat.Sweeps[0].Configs) > 0 {
		sc := cat.Sweeps[0].Configs[0]
		normalizer := categorical.NewNormalizer(cat.Alphabet)
		probes = append(probes, probe{
			name:    "categorical",
			request: providers.NewRequest("", cat.Prompt, sc.Temperature, sc.TopP, cat.MaxTokens),
			verdict: normalizer.Normalize,
		})
	}
	return probes
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

