package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mwiater/stochprobe/internal/harness"
)

const liveHistory = 5

type eventMsg harness.Event

type doneMsg struct{}

// liveModel shows an animated progress bar and the most recent calls.
type liveModel struct {
	title   string
	console *Console
	bar     progress.Model
	cancel  context.CancelFunc
	last    harness.Event
	recent  []string
	stopped bool
}

func newLiveModel(title string, cancel context.CancelFunc) liveModel {
	return liveModel{
		title:   title,
		console: NewConsole(io.Discard),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		cancel:  cancel,
	}
}

func (m liveModel) Init() tea.Cmd { return nil }

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The run notices the cancelled context between calls and
			// reports back with doneMsg.
			m.stopped = true
			m.cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-10, 10), 60)
		return m, nil

	case eventMsg:
		ev := harness.Event(msg)
		if ev.Kind != harness.EventCall {
			return m, nil
		}
		m.last = ev
		m.recent = append(m.recent, m.console.callLine(ev))
		if len(m.recent) > liveHistory {
			m.recent = m.recent[len(m.recent)-liveHistory:]
		}
		pct := 0.0
		if ev.CallsTotal > 0 {
			pct = float64(ev.CallsDone) / float64(ev.CallsTotal)
		}
		return m, m.bar.SetPercent(pct)

	case progress.FrameMsg:
		pm, cmd := m.bar.Update(msg)
		m.bar = pm.(progress.Model)
		return m, cmd

	case doneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m liveModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.bar.View())
	fmt.Fprintf(&b, "  %d/%d calls\n\n", m.last.CallsDone, m.last.CallsTotal)
	for _, line := range m.recent {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.stopped {
		b.WriteString(warnStyle.Render("stopping after the current call…"))
		b.WriteString("\n")
	} else {
		b.WriteString(labelStyle.Render("q / ctrl+c: stop and keep progress"))
		b.WriteString("\n")
	}
	return b.String()
}

// RunLive executes run while a bubbletea program renders its events. run
// must install observe on its harness. Quitting the program cancels the
// context handed to run; RunLive returns once run has returned. A nil in
// disables keyboard input.
func RunLive(ctx context.Context, title string, in io.Reader, out io.Writer, run func(ctx context.Context, observe func(harness.Event)) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []tea.ProgramOption{tea.WithOutput(out), tea.WithoutSignalHandler()}
	if in == nil {
		opts = append(opts, tea.WithInput(nil))
	} else {
		opts = append(opts, tea.WithInput(in))
	}
	p := tea.NewProgram(newLiveModel(title, cancel), opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, func(ev harness.Event) { p.Send(eventMsg(ev)) })
		p.Send(doneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-errCh
		return fmt.Errorf("live view: %w", err)
	}
	return <-errCh
}
