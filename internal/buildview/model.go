// Package buildview is a small bubbletea progress display for the
// `index build` CLI command, adapted from the teacher's
// internal/ui.TUIRenderer down to the handful of numbers an Index Builder
// run actually produces: products seen, products embedded, and whether
// the vector index has trained.
package buildview

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bpomverify/bpomverify/internal/indexbuilder"
)

const colorLime = "154"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorLime))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// ProgressMsg reports a running seen/embedded count, sent from the
// Builder's OnProgress callback via Program.Send.
type ProgressMsg struct {
	Seen     int
	Embedded int
}

// DoneMsg reports the finished build, or an error if it failed.
type DoneMsg struct {
	Result *indexbuilder.Result
	Err    error
}

type model struct {
	spinner  spinner.Model
	bar      progress.Model
	seen     int
	embedded int
	done     bool
	result   *indexbuilder.Result
	err      error
}

func newModel() model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(colorLime))

	p := progress.New(progress.WithSolidFill(colorLime), progress.WithWidth(40), progress.WithoutPercentage())

	return model{spinner: s, bar: p}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case ProgressMsg:
		m.seen, m.embedded = msg.Seen, msg.Embedded
		return m, nil
	case DoneMsg:
		m.done = true
		m.result, m.err = msg.Result, msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	if m.done {
		if m.err != nil {
			return fmt.Sprintf("build failed: %s\n", m.err)
		}
		return fmt.Sprintf("%s\n%s embedded=%d trained=%v products=%d in %s\n",
			headerStyle.Render("Index build complete"),
			labelStyle.Render("result:"), m.result.Embedded, m.result.Trained,
			m.result.ProductsSeen, m.result.Duration.Round(time.Millisecond))
	}

	return fmt.Sprintf("%s %s\n%s seen=%d embedded=%d\n",
		m.spinner.View(), headerStyle.Render("Building vector index..."),
		labelStyle.Render("progress:"), m.seen, m.embedded)
}

// Program wraps a running bubbletea program so a caller can feed it
// Builder progress and completion events from a background goroutine.
type Program struct {
	tea *tea.Program
}

// Start launches the TUI against stdout, returning immediately; the
// caller must call Wait to block until the program exits.
func Start() *Program {
	p := tea.NewProgram(newModel(), tea.WithOutput(os.Stdout))
	return &Program{tea: p}
}

// OnProgress is suitable for indexbuilder.Config.OnProgress.
func (p *Program) OnProgress(seen, embedded int) {
	p.tea.Send(ProgressMsg{Seen: seen, Embedded: embedded})
}

// Done sends the final result and lets the program render it before quitting.
func (p *Program) Done(result *indexbuilder.Result, err error) {
	p.tea.Send(DoneMsg{Result: result, Err: err})
}

// Wait blocks until the program's event loop exits.
func (p *Program) Wait() error {
	_, err := p.tea.Run()
	return err
}
