// internal/cli/experiment.go
package stochprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mwiater/stochprobe/internal/appconfig"
	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/logging"
	"github.com/mwiater/stochprobe/internal/metrics"
	"github.com/mwiater/stochprobe/internal/providerfactory"
	"github.com/mwiater/stochprobe/internal/providers"
	"github.com/mwiater/stochprobe/internal/report"
	"github.com/mwiater/stochprobe/internal/store"
)

// newInvoker is swapped out in tests.
var newInvoker = providerfactory.NewInvoker

var liveView bool

// session bundles what every run subcommand needs.
type session struct {
	cfg        *appconfig.Config
	aggregator *metrics.Aggregator
	invoker    providers.Invoker
	console    *report.Console
	in         io.Reader
	out        io.Writer
	live       bool
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	if liveView {
		// Log lines would tear the live view; keep them in the log file only.
		logging.SetQuiet(true)
		if err := logging.Init(cfg.LogFilePath()); err != nil {
			return nil, fmt.Errorf("init logging: %w", err)
		}
	}
	aggregator := metrics.NewAggregator()
	invoker, err := newInvoker(cfg, aggregator)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:        cfg,
		aggregator: aggregator,
		invoker:    invoker,
		console:    report.NewConsole(cmd.OutOrStdout()),
		in:         cmd.InOrStdin(),
		out:        cmd.OutOrStdout(),
		live:       liveView,
	}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM so an interrupted run
// stops between calls.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// runPlan resumes plan against the table at output and prints the run summary.
func runPlan[R any](ctx context.Context, s *session, name, output string, codec store.Codec[R], plan []harness.Step[R], opts ...harness.Option) (harness.Report, error) {
	path := s.cfg.ResolvePath(output)
	table, err := store.Open(path, codec)
	if err != nil {
		return harness.Report{}, err
	}

	var rep harness.Report
	execute := func(ctx context.Context, observe func(harness.Event)) error {
		h := harness.New[R](s.invoker, table, append(opts, harness.WithObserver(observe))...)
		s.aggregator.SetRunInfo(name, s.cfg.Provider.Model, h.RunID())
		logging.LogEvent("[RUN] experiment=%s run=%s output=%s existing_rows=%d", name, h.RunID(), path, table.Len())
		var err error
		rep, err = h.Run(ctx, plan)
		return err
	}

	var runErr error
	if s.live {
		runErr = report.RunLive(ctx, name, s.in, s.out, execute)
	} else {
		runErr = execute(ctx, s.console.Observer())
	}
	s.console.RunSummary(name, path, rep, s.aggregator.Snapshot())
	if err := s.exportMetrics(); err != nil {
		logging.LogWarn("[RUN] %v", err)
	}
	return rep, runErr
}

func (s *session) exportMetrics() error {
	if s.cfg.MetricsFile == "" {
		return nil
	}
	if err := s.aggregator.WriteTextfile(s.cfg.MetricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// analysisInput returns the --file override or the configured result file.
func analysisInput(file, output string) string {
	if file != "" {
		return file
	}
	return getConfig().ResolvePath(output)
}

// skipAnalysis reports a missing-precondition error as a diagnostic. It
// returns true when err is one of the expected sentinels.
func skipAnalysis(c *report.Console, input string, err error, sentinels ...error) bool {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			logging.LogWarn("[ANALYZE] %s: %v", input, err)
			c.Diagnostic("%s: %v; nothing to analyze.", input, err)
			return true
		}
	}
	return false
}

// finishAnalysis writes the derived tables and the YAML summary for input.
func finishAnalysis(c *report.Console, input string, summary any, write func() ([]string, error)) error {
	paths, err := write()
	if err != nil {
		return err
	}
	summaryPath := report.SummaryPath(input)
	if err := report.WriteSummary(summaryPath, summary); err != nil {
		return err
	}
	c.Files(append(paths, summaryPath))
	return nil
}

// experimentCmd builds the '<experiment>' group with its run and analyze
// subcommands.
func experimentCmd(use, short string, run, analyze *cobra.Command) {
	run.Flags().BoolVar(&liveView, "live", false, "render progress in a full-screen view (q or ctrl+c stops)")
	cmd := &cobra.Command{Use: use, Short: short}
	cmd.AddCommand(run, analyze)
	rootCmd.AddCommand(cmd)
}
