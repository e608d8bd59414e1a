// Package theme defines the light/dark preference vocabulary shared by every
// layer of themesync, along with the color palette each preference renders.
package theme

import (
	"errors"
	"fmt"
	"strings"
)

// Preference is the canonical UI mode.
type Preference string

const (
	Light Preference = "light"
	Dark  Preference = "dark"
)

// Default is used when neither a persisted nor a system preference exists.
const Default = Dark

// ErrInvalidPreference is returned for any value other than "light" or "dark".
var ErrInvalidPreference = errors.New("invalid theme preference")

// Parse converts a raw stored or broadcast value into a Preference.
func Parse(raw string) (Preference, error) {
	switch p := Preference(strings.ToLower(strings.TrimSpace(raw))); p {
	case Light, Dark:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPreference, raw)
}

// Valid reports whether p is one of the two known preferences.
func (p Preference) Valid() bool {
	return p == Light || p == Dark
}

// Toggle returns the opposite preference. Invalid values toggle to Default so
// a third state can never leak out.
func (p Preference) Toggle() Preference {
	switch p {
	case Light:
		return Dark
	case Dark:
		return Light
	}
	return Default
}

func (p Preference) String() string {
	return string(p)
}

// All returns both preferences in a stable order.
func All() []Preference {
	return []Preference{Light, Dark}
}
