// Package surface reflects the active theme onto whatever the user sees: a
// class-bearing document root, or the lipgloss styles a terminal UI renders
// with. Reflection is idempotent and always leaves exactly one theme marker.
package surface

import "github.com/wilbur182/themesync/internal/theme"

// Reflector applies a preference to a rendering surface.
type Reflector interface {
	// Reflect makes the surface carry p and only p.
	Reflect(p theme.Preference)
	// Reflected reports the preference the surface currently carries. ok is
	// false when the surface carries none or is ambiguous.
	Reflected() (p theme.Preference, ok bool)
}

// Multi fans a reflection out to several surfaces.
func Multi(rs ...Reflector) Reflector {
	return multi(rs)
}

type multi []Reflector

func (m multi) Reflect(p theme.Preference) {
	for _, r := range m {
		r.Reflect(p)
	}
}

// Reflected is ok only when every surface agrees.
func (m multi) Reflected() (theme.Preference, bool) {
	var first theme.Preference
	for i, r := range m {
		p, ok := r.Reflected()
		if !ok {
			return "", false
		}
		if i == 0 {
			first = p
			continue
		}
		if p != first {
			return "", false
		}
	}
	return first, len(m) > 0
}
