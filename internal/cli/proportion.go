// internal/cli/proportion.go
package stochprobe

import (
	"github.com/spf13/cobra"

	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/proportion"
	"github.com/mwiater/stochprobe/internal/report"
	"github.com/mwiater/stochprobe/internal/store"
)

var proportionFile string

var proportionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Ask a factual question repeatedly and record wrong answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd)
		defer stop()

		exp := s.cfg.Experiments.Proportion
		_, err = runPlan(ctx, s, "proportion", exp.Output, proportion.Codec, proportion.Plan(exp),
			harness.WithDelay(exp.Delay),
		)
		return err
	},
}

var proportionAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Estimate the rare-event proportion with a 95% confidence interval",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		input := analysisInput(proportionFile, cfg.Experiments.Proportion.Output)
		console := report.NewConsole(cmd.OutOrStdout())

		table, err := store.Open(input, proportion.Codec)
		if err != nil {
			return err
		}
		res, err := proportion.Analyze(table.Rows(), cfg.Experiments.Proportion.Expected)
		if skipAnalysis(console, input, err, proportion.ErrNoData) {
			return nil
		}
		if err != nil {
			return err
		}

		console.Proportion(res)
		return finishAnalysis(console, input, res, func() ([]string, error) {
			return proportion.WriteOutputs(input, res)
		})
	},
}

func init() {
	proportionAnalyzeCmd.Flags().StringVar(&proportionFile, "file", "", "result file to analyze (defaults to the configured output)")
	experimentCmd("proportion", "Rare-event proportion experiment", proportionRunCmd, proportionAnalyzeCmd)
}
