package surface

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/wilbur182/themesync/internal/theme"
)

// StyleSet holds the lipgloss styles a terminal UI renders with.
type StyleSet struct {
	Panel   lipgloss.Style
	Title   lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
	Badge   lipgloss.Style
	KeyHint lipgloss.Style
	Error   lipgloss.Style
}

// Styles is the terminal counterpart of Document: reflecting rebuilds every
// style from the preference's palette.
type Styles struct {
	mu      sync.RWMutex
	applied theme.Preference
	set     StyleSet
}

// NewStyles returns a Styles surface that has not been reflected yet.
func NewStyles() *Styles {
	return &Styles{}
}

func (s *Styles) Reflect(p theme.Preference) {
	set := buildStyles(theme.Palette(p))
	s.mu.Lock()
	s.applied = p
	s.set = set
	s.mu.Unlock()
}

func (s *Styles) Reflected() (theme.Preference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied, s.applied.Valid()
}

// Current returns the styles for the reflected preference.
func (s *Styles) Current() StyleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// buildStyles recreates all lipgloss styles from a palette.
func buildStyles(c theme.ColorPalette) StyleSet {
	return StyleSet{
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(c.BorderActive)).
			Background(lipgloss.Color(c.BgPrimary)).
			Padding(1, 2),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(c.Primary)),

		Body: lipgloss.NewStyle().
			Foreground(lipgloss.Color(c.TextPrimary)),

		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(c.TextMuted)),

		Badge: lipgloss.NewStyle().
			Foreground(lipgloss.Color(c.BgPrimary)).
			Background(lipgloss.Color(c.Accent)).
			Bold(true).
			Padding(0, 1),

		KeyHint: lipgloss.NewStyle().
			Foreground(lipgloss.Color(c.TextSecondary)).
			Background(lipgloss.Color(c.BgSecondary)).
			Padding(0, 1),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color(c.Error)),
	}
}
