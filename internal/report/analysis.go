package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/stochprobe/internal/arrival"
	"github.com/mwiater/stochprobe/internal/categorical"
	"github.com/mwiater/stochprobe/internal/collision"
	"github.com/mwiater/stochprobe/internal/proportion"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	correctStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	wrongStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Collision prints the per-N comparison table.
func (c *Console) Collision(res collision.Result) {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Collision probability (M=%d, %d trials)", res.SampleSpace, res.Trials)))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("%4s %7s %10s %10s %12s", "N", "trials", "collisions", "empirical", "theoretical")))
	for _, p := range res.Points {
		fmt.Fprintf(&b, "\n%4d %7d %10d %10.4f %12.4f", p.N, p.Trials, p.Collisions, p.Empirical, p.Theoretical)
	}
	fmt.Fprintln(c.w, boxStyle.Render(b.String()))
}

// Proportion prints the final estimate and the most frequent responses.
func (c *Console) Proportion(res proportion.Result) {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Rare event: response != %q", res.Expected)),
		row("n", fmt.Sprint(res.Final.N)),
		row("events", fmt.Sprint(res.Final.Events)),
		row("errors", fmt.Sprint(res.Errors)),
		row("p̂", fmt.Sprintf("%.4f", res.Final.PHat)),
		row("95% CI", fmt.Sprintf("[%.4f, %.4f]", res.Final.Lower, res.Final.Upper)),
		headerStyle.Render("Top responses"),
	}
	for _, rc := range res.Top {
		style := wrongStyle
		if rc.Correct {
			style = correctStyle
		}
		lines = append(lines, fmt.Sprintf("%5d  %s", rc.Count, style.Render(preview(rc.Text))))
	}
	fmt.Fprintln(c.w, boxStyle.Render(strings.Join(lines, "\n")))
}

// Arrival prints both rate estimates and the Poisson diagnostics. Fields
// that need usable virtual time are omitted when there is none.
func (c *Console) Arrival(res arrival.Result) {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Arrival process (bucket %.3gs)", res.BucketWidth)),
		row("requests", fmt.Sprintf("%d (%d ok)", res.Requests, res.Successful)),
		row("mean", fmt.Sprintf("%.4fs", res.MeanLatency)),
		row("std", fmt.Sprintf("%.4fs", res.StdLatency)),
		row("λ₁", fmt.Sprintf("%.4f req/s (1/mean)", res.Lambda1)),
		row("t_raw", fmt.Sprintf("%.4fs", res.TRawMax)),
	}
	if res.TMaxUsable > 0 {
		lines = append(lines,
			row("t_usable", fmt.Sprintf("%.4fs (%d/%d events)", res.TMaxUsable, res.UsableEvents, res.Successful)),
			row("buckets", fmt.Sprint(len(res.Buckets))),
			row("mean N", fmt.Sprintf("%.4f", res.MeanCount)),
			row("var N", fmt.Sprintf("%.4f", res.VarCount)),
			row("var/mean", fmt.Sprintf("%.4f (Poisson = 1)", res.Dispersion)),
			row("λ₂", fmt.Sprintf("%.4f req/s (events/time)", res.Lambda2)),
			row("rel diff", fmt.Sprintf("%.2f%%", res.RelativeDifference*100)),
		)
	}
	fmt.Fprintln(c.w, boxStyle.Render(strings.Join(lines, "\n")))
}

// Categorical prints one block per configuration and the global tally.
func (c *Console) Categorical(res categorical.Result) {
	var blocks []string
	for _, d := range res.Configs {
		lines := []string{
			titleStyle.Render(fmt.Sprintf("%s (T=%.2g, top_p=%.2g, n=%d)", d.Config, d.Temperature, d.TopP, d.N)),
			row("H", fmt.Sprintf("%.4f bits (max %.4f)", d.Entropy, res.MaxEntropy)),
			row("H+inv", fmt.Sprintf("%.4f bits", d.EntropyWithInvalid)),
			row("invalid", fmt.Sprint(d.Invalid)),
		}
		for _, l := range res.Alphabet {
			lines = append(lines, fmt.Sprintf("  %s  %.4f (%d)", l, d.Probabilities[l], d.Counts[l]))
		}
		blocks = append(blocks, boxStyle.Render(strings.Join(lines, "\n")))
	}
	fmt.Fprintln(c.w, lipgloss.JoinHorizontal(lipgloss.Top, blocks...))

	tally := make([]string, 0, len(res.Alphabet)+1)
	for _, l := range append(append([]string{}, res.Alphabet...), categorical.Invalid) {
		tally = append(tally, fmt.Sprintf("%s=%d", l, res.Global[l]))
	}
	fmt.Fprintln(c.w, row("global", strings.Join(tally, "  ")))
}
