// Package report renders run progress and analysis results for the terminal
// and writes machine-readable analysis summaries.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/mwiater/stochprobe/internal/harness"
	"github.com/mwiater/stochprobe/internal/metrics"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle = lipgloss.NewStyle().Faint(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("178")).Bold(true)

	okText      = color.New(color.FgGreen).SprintFunc()
	invalidText = color.New(color.FgYellow).SprintFunc()
	errorText   = color.New(color.FgRed).SprintFunc()
)

// Console writes progress lines and summaries to w.
type Console struct {
	w   io.Writer
	bar progress.Model
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{
		w:   w,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
	}
}

// Observer returns a harness observer printing one line per call.
func (c *Console) Observer() func(harness.Event) {
	return func(ev harness.Event) {
		if ev.Kind != harness.EventCall {
			return
		}
		fmt.Fprintln(c.w, c.callLine(ev))
	}
}

func (c *Console) callLine(ev harness.Event) string {
	var status string
	switch ev.Outcome.Status {
	case harness.StatusOK:
		status = okText("OK")
	case harness.StatusInvalid:
		status = invalidText("INVALID")
	default:
		status = errorText("ERROR " + ev.Outcome.ErrorType)
	}
	pct := 0.0
	if ev.CallsTotal > 0 {
		pct = float64(ev.CallsDone) / float64(ev.CallsTotal)
	}
	return fmt.Sprintf("%s %*d/%d  %-12s %s %.3fs  %s",
		c.bar.ViewAs(pct),
		digits(ev.CallsTotal), ev.CallsDone, ev.CallsTotal,
		ev.StepKey,
		status,
		ev.Outcome.Latency().Seconds(),
		preview(ev.Outcome.Value),
	)
}

// RunSummary prints the totals of one harness run and, when available, the
// latency summary gathered by the metrics decorator.
func (c *Console) RunSummary(title, output string, rep harness.Report, models []metrics.ModelMetrics) {
	lines := []string{
		titleStyle.Render(title),
		row("run", rep.RunID),
		row("output", output),
		row("steps", fmt.Sprintf("%d planned, %d skipped, %d completed", rep.Planned, rep.Skipped, rep.Completed)),
		row("calls", fmt.Sprintf("%d (%s ok, %s invalid, %s error)",
			rep.Calls,
			okText(rep.Calls-rep.Errors-rep.Invalid),
			invalidText(rep.Invalid),
			errorText(rep.Errors))),
		row("elapsed", rep.Elapsed.Round(time.Millisecond).String()),
	}
	for _, m := range models {
		if m.LatencySeconds.Count == 0 {
			continue
		}
		lines = append(lines, row("latency", fmt.Sprintf("%s mean %.3fs sd %.3fs (n=%d)",
			m.ModelName, m.LatencySeconds.Mean, m.LatencySeconds.StdDev(), m.LatencySeconds.Count)))
	}
	switch rep.Stop {
	case harness.StopRateLimited:
		lines = append(lines, warnStyle.Render(fmt.Sprintf("Rate limit reached at %s; progress saved, run again to resume.", rep.StoppedAt)))
	case harness.StopInterrupted:
		lines = append(lines, warnStyle.Render(fmt.Sprintf("Interrupted at %s; progress saved, run again to resume.", rep.StoppedAt)))
	}
	fmt.Fprintln(c.w, boxStyle.Render(strings.Join(lines, "\n")))
}

// Diagnostic prints a skipped-analysis message.
func (c *Console) Diagnostic(format string, args ...any) {
	fmt.Fprintln(c.w, warnStyle.Render(fmt.Sprintf(format, args...)))
}

// Files lists derived files that were written.
func (c *Console) Files(paths []string) {
	for _, p := range paths {
		fmt.Fprintln(c.w, labelStyle.Render("wrote ")+p)
	}
}

func row(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-8s", label)) + " " + value
}

func digits(n int) int {
	return len(fmt.Sprint(n))
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 40 {
		return string(r[:40]) + "…"
	}
	return s
}

// Probe prints the result of one endpoint check.
func (c *Console) Probe(name string, latency time.Duration, raw, verdict string, err error) {
	if err != nil {
		fmt.Fprintf(c.w, "%-12s %s %v\n", name, errorText("FAIL"), err)
		return
	}
	fmt.Fprintf(c.w, "%-12s %s %.3fs  %-10s %s\n", name, okText("OK"), latency.Seconds(), verdict, preview(raw))
}
