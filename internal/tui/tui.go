// Package tui shows a running test in the terminal and lets the user stop
// or kill it.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/seeflaw/seeflaw/internal/seeflaw"
)

// Controller is the run being shown.
type Controller interface {
	Stop()
	Kill()
}

// Interactive reports whether f is a terminal the view can draw on.
func Interactive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// View is the interactive run view.
type View struct {
	program *tea.Program
}

// New creates a view titled with the test file, drawing on out.
func New(ctx context.Context, title string, ctl Controller, out io.Writer) *View {
	m := newModel(title, ctl)
	return &View{program: tea.NewProgram(m, tea.WithContext(ctx), tea.WithOutput(out))}
}

// Observe forwards a run event to the view. It is meant as the run's
// observer.
func (v *View) Observe(e seeflaw.Event) {
	v.program.Send(eventMsg(e))
}

// Run shows the view while fn runs and returns fn's results.
func (v *View) Run(fn func() (*seeflaw.Outcome, error)) (*seeflaw.Outcome, error) {
	type result struct {
		out *seeflaw.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := fn()
		done <- result{out, err}
		v.program.Send(doneMsg{})
	}()

	if _, err := v.program.Run(); err != nil {
		// the run goes on without a view
		r := <-done
		if r.err == nil {
			r.err = err
		}
		return r.out, r.err
	}
	r := <-done
	return r.out, r.err
}

type eventMsg seeflaw.Event

type doneMsg struct{}

type line struct {
	label string
	ok    bool
}

type model struct {
	title   string
	ctl     Controller
	spinner spinner.Model
	current string
	lines   []line
	state   string
	done    bool
}

func newModel(title string, ctl Controller) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return model{title: title, ctl: ctl, spinner: s}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "s":
			if m.state == "" {
				m.state = "stopping after the current row"
				m.ctl.Stop()
			}
		case "k", "ctrl+c":
			m.state = "killing"
			m.ctl.Kill()
		}
		return m, nil
	case eventMsg:
		label := eventLabel(seeflaw.Event(msg))
		if !msg.Done {
			m.current = label
			return m, nil
		}
		m.lines = append(m.lines, line{label: label, ok: msg.Successful})
		if m.current == label {
			m.current = ""
		}
		return m, nil
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("SeeFlaw " + m.title))
	b.WriteString("\n")
	for _, l := range m.lines {
		if l.ok {
			b.WriteString(okStyle.Render("✓ "))
		} else {
			b.WriteString(failStyle.Render("✗ "))
		}
		b.WriteString(l.label)
		b.WriteString("\n")
	}
	if m.done {
		return b.String()
	}
	if m.current != "" {
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.current)
	}
	if m.state != "" {
		b.WriteString(m.state + "\n")
	}
	b.WriteString(dimStyle.Render("s stop · k kill"))
	b.WriteString("\n")
	return b.String()
}

func eventLabel(e seeflaw.Event) string {
	switch {
	case e.Fixture != "" && e.Method != "":
		return e.Node + " " + e.Fixture + "." + e.Method
	case e.Fixture != "":
		return e.Node + " " + e.Fixture
	}
	return e.Node
}
