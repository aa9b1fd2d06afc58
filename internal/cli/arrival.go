// internal/cli/arrival.go
package stochprobe

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mwiater/stochprobe/internal/arrival"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/report"
	"github.com/mwiater/stochprobe/internal/store"
)

var (
	arrivalFile   string
	arrivalBucket float64
)

var arrivalRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Send sequential requests and record their latencies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd)
		defer stop()

		exp := s.cfg.Experiments.Arrival
		_, err = runPlan(ctx, s, "arrival", exp.Output, arrival.Codec, arrival.Plan(exp),
			harness.WithDelay(exp.Delay),
		)
		return err
	},
}

var arrivalAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Fit exponential and Poisson models on the virtual timeline",
	Long: `Build the virtual timeline from cumulative latencies, estimate the rate
from the mean latency and from bucketed event counts, and write the timeline,
latency density, bucket counts and count frequencies next to the input.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		input := analysisInput(arrivalFile, cfg.Experiments.Arrival.Output)
		bucket := cfg.Experiments.Arrival.Bucket
		if cmd.Flags().Changed("bucket") {
			bucket = arrivalBucket
		}
		console := report.NewConsole(cmd.OutOrStdout())

		table, err := store.Open(input, arrival.Codec)
		if err != nil {
			return err
		}
		res, err := arrival.Analyze(table.Rows(), bucket)
		if skipAnalysis(console, input, err, arrival.ErrNoData, arrival.ErrNoSuccessfulRequests) {
			return nil
		}
		// With no usable virtual time the exponential fit is still reported.
		if err != nil && !errors.Is(err, arrival.ErrNoUsableTime) {
			return err
		}

		console.Arrival(res)
		if err != nil {
			skipAnalysis(console, input, err, arrival.ErrNoUsableTime)
		}
		return finishAnalysis(console, input, res, func() ([]string, error) {
			return arrival.WriteOutputs(input, res)
		})
	},
}

func init() {
	arrivalAnalyzeCmd.Flags().StringVar(&arrivalFile, "file", "", "result file to analyze (defaults to the configured output)")
	arrivalAnalyzeCmd.Flags().Float64Var(&arrivalBucket, "bucket", 0, "bucket width in seconds (defaults to the configured bucket)")
	experimentCmd("arrival", "Latency arrival-process experiment", arrivalRunCmd, arrivalAnalyzeCmd)
}
