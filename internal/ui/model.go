// Package ui is the interactive terminal front end. It renders with the
// surface.Styles reflector, so whatever theme State holds is what the user
// sees, including changes made by other processes.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wilbur182/themesync/internal/state"
	"github.com/wilbur182/themesync/internal/surface"
	"github.com/wilbur182/themesync/internal/theme"
)

// ChangeMsg carries a state change into the bubbletea loop.
type ChangeMsg state.Change

// Model is the bubbletea model for the theme switcher.
type Model struct {
	state  *state.State
	styles *surface.Styles
	keys   KeyMap
	help   help.Model

	changes     chan state.Change
	unsubscribe func()

	last   *state.Change
	width  int
	status string
}

// New subscribes to st. styles must be the reflector st writes to. Call
// Close when the program exits.
func New(st *state.State, styles *surface.Styles) *Model {
	m := &Model{
		state:   st,
		styles:  styles,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		changes: make(chan state.Change, 16),
	}
	m.unsubscribe = st.Subscribe(func(c state.Change) {
		// View reads the live theme, so a dropped change only loses the
		// "last change" line.
		select {
		case m.changes <- c:
		default:
		}
	})
	return m
}

// Close unsubscribes from state.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// waitForChange blocks on the subscription channel.
func waitForChange(ch <-chan state.Change) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return nil
		}
		return ChangeMsg(c)
	}
}

func (m *Model) Init() tea.Cmd {
	return waitForChange(m.changes)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case ChangeMsg:
		c := state.Change(msg)
		m.last = &c
		return m, waitForChange(m.changes)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			next := m.state.ToggleTheme()
			m.status = fmt.Sprintf("switched to %s", next)
		case key.Matches(msg, m.keys.Light):
			m.set(theme.Light)
		case key.Matches(msg, m.keys.Dark):
			m.set(theme.Dark)
		}
	}
	return m, nil
}

func (m *Model) set(p theme.Preference) {
	if err := m.state.SetTheme(p); err != nil {
		m.status = err.Error()
		return
	}
	m.status = fmt.Sprintf("set to %s", p)
}

func (m *Model) View() string {
	s := m.styles.Current()
	current := m.state.Theme()

	m.help.Styles.ShortKey = s.KeyHint
	m.help.Styles.ShortDesc = s.Muted
	m.help.Styles.ShortSeparator = s.Muted

	var b strings.Builder
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		s.Title.Render("themesync"),
		"  ",
		s.Badge.Render(strings.ToUpper(current.String())),
	)
	b.WriteString(header)
	b.WriteString("\n\n")

	if !m.state.IsThemeLoaded() {
		b.WriteString(s.Muted.Render("loading…"))
	} else {
		b.WriteString(s.Body.Render("Current theme: " + current.String()))
	}
	b.WriteString("\n")

	if m.last != nil {
		line := fmt.Sprintf("last change: %s → %s (%s)", m.last.Previous, m.last.Current, m.last.Origin)
		b.WriteString(s.Muted.Render(line))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(s.Muted.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(renderRule(s, m.innerWidth()))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return s.Panel.Render(b.String())
}

func (m *Model) innerWidth() int {
	w := m.width - 6 // border and padding
	if w < 20 {
		w = 20
	}
	return w
}

// renderRule draws a horizontal divider in the muted colour.
func renderRule(s surface.StyleSet, width int) string {
	return s.Muted.Render(strings.Repeat("─", width))
}

// Run starts the program and blocks until the user quits.
func Run(st *state.State, styles *surface.Styles, opts ...tea.ProgramOption) error {
	m := New(st, styles)
	defer m.Close()
	_, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}

var _ tea.Model = (*Model)(nil)
