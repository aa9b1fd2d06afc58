// internal/cli/categorical.go
package stochprobe

import (
	"github.com/spf13/cobra"

	"github.com/mwiater/stochprobe/internal/categorical"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/logging"
	"github.com/mwiater/stochprobe/internal/report"
	"github.com/mwiater/stochprobe/internal/store"
)

var categoricalFile string

var categoricalRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Sample a letter choice under each sweep of sampling configurations",
	Long: `Run every configured sweep in order. Each sweep is persisted to its own
result file; a sweep that stops early (rate limit or interrupt) ends the
command so the next invocation resumes where it left off.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd)
		defer stop()

		exp := s.cfg.Experiments.Categorical
		for _, sweep := range exp.Sweeps {
			rep, err := runPlan(ctx, s, "categorical "+sweep.Name, sweep.Output, categorical.Codec, categorical.Plan(exp, sweep),
				harness.WithDelay(exp.Delay),
			)
			if err != nil {
				return err
			}
			if rep.Stop != harness.StopCompleted {
				logging.LogEvent("[RUN] categorical stopped during sweep %q (%s)", sweep.Name, rep.Stop)
				return nil
			}
		}
		return nil
	},
}

var categoricalAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Report per-configuration distributions and Shannon entropy",
	Long: `Normalise every stored response to an alphabet letter or INVALID and
report counts, probabilities and entropy per configuration. Without --file
every configured sweep file is analysed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		exp := cfg.Experiments.Categorical
		console := report.NewConsole(cmd.OutOrStdout())

		inputs := []string{categoricalFile}
		if categoricalFile == "" {
			inputs = inputs[:0]
			for _, sweep := range exp.Sweeps {
				inputs = append(inputs, cfg.ResolvePath(sweep.Output))
			}
		}

		for _, input := range inputs {
			table, err := store.Open(input, categorical.Codec)
			if err != nil {
				return err
			}
			res, err := categorical.Analyze(table.Rows(), exp.Alphabet)
			if skipAnalysis(console, input, err, categorical.ErrNoData) {
				continue
			}
			if err != nil {
				return err
			}

			console.Categorical(res)
			if err := finishAnalysis(console, input, res, func() ([]string, error) {
				return categorical.WriteOutputs(input, res)
			}); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	categoricalAnalyzeCmd.Flags().StringVar(&categoricalFile, "file", "", "result file to analyze (defaults to every configured sweep)")
	experimentCmd("categorical", "Categorical distribution and entropy experiment", categoricalRunCmd, categoricalAnalyzeCmd)
}
