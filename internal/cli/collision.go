// internal/cli/collision.go
package stochprobe

import (
	"github.com/spf13/cobra"

	"github.com/mwiater/stochprobe/internal/collision"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/report"
	"github.com/mwiater/stochprobe/internal/store"
)

var collisionFile string

var collisionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Sample random integers and record collisions per trial",
	Long: `Ask the model for a random integer in [1, M] repeatedly, in trials of
each configured size N. Each completed trial is appended to the result file;
rerunning resumes with the first missing trial.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd)
		defer stop()

		exp := s.cfg.Experiments.Collision
		_, err = runPlan(ctx, s, "collision", exp.Output, collision.Codec, collision.Plan(exp),
			harness.WithDelay(exp.Delay),
			harness.WithClassifier(collision.Classify),
		)
		return err
	},
}

var collisionAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compare empirical collision rates with the birthday approximation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		input := analysisInput(collisionFile, cfg.Experiments.Collision.Output)
		console := report.NewConsole(cmd.OutOrStdout())

		table, err := store.Open(input, collision.Codec)
		if err != nil {
			return err
		}
		res, err := collision.Analyze(table.Rows(), cfg.Experiments.Collision.SampleSpace)
		if skipAnalysis(console, input, err, collision.ErrNoData) {
			return nil
		}
		if err != nil {
			return err
		}

		console.Collision(res)
		return finishAnalysis(console, input, res, func() ([]string, error) {
			return collision.WriteOutputs(input, res)
		})
	},
}

func init() {
	collisionAnalyzeCmd.Flags().StringVar(&collisionFile, "file", "", "result file to analyze (defaults to the configured output)")
	experimentCmd("collision", "Birthday-paradox collision experiment", collisionRunCmd, collisionAnalyzeCmd)
}
