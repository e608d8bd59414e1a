// Package system reports the operating system or terminal colour scheme.
// It is the implicit fallback used until the user picks a theme.
package system

import (
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wilbur182/themesync/internal/theme"
)

// EnvTheme overrides every other detector when set to light or dark.
const EnvTheme = "THEMESYNC_SYSTEM_THEME"

// Detector reports a colour scheme preference, if it can tell.
type Detector interface {
	Name() string
	Detect() (theme.Preference, bool)
}

// EnvDetector reads THEMESYNC_SYSTEM_THEME, then the COLORFGBG convention
// used by rxvt, konsole and friends.
type EnvDetector struct {
	Getenv func(string) string // defaults to os.Getenv
}

func (EnvDetector) Name() string { return "env" }

func (d EnvDetector) Detect() (theme.Preference, bool) {
	getenv := d.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if raw := getenv(EnvTheme); raw != "" {
		if p, err := theme.Parse(raw); err == nil {
			return p, true
		}
	}
	return parseColorFGBG(getenv("COLORFGBG"))
}

// parseColorFGBG reads the background index from "fg;bg" or "fg;x;bg".
func parseColorFGBG(v string) (theme.Preference, bool) {
	if v == "" {
		return "", false
	}
	parts := strings.Split(v, ";")
	bg, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil || bg < 0 || bg > 15 {
		return "", false
	}
	// 0-6 and 8 are the dark ANSI colours.
	if bg < 7 || bg == 8 {
		return theme.Dark, true
	}
	return theme.Light, true
}

// TerminalDetector asks the terminal for its background colour. The query
// is made at most once per detector since it reads from the tty.
type TerminalDetector struct {
	IsTerminal        func() bool // defaults to stdout being a tty
	HasDarkBackground func() bool // defaults to lipgloss.HasDarkBackground

	once sync.Once
	pref theme.Preference
	ok   bool
}

func (*TerminalDetector) Name() string { return "terminal" }

func (d *TerminalDetector) Detect() (theme.Preference, bool) {
	d.once.Do(func() {
		isTerminal := d.IsTerminal
		if isTerminal == nil {
			isTerminal = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }
		}
		if !isTerminal() {
			return
		}
		hasDark := d.HasDarkBackground
		if hasDark == nil {
			hasDark = lipgloss.HasDarkBackground
		}
		d.ok = true
		d.pref = theme.Light
		if hasDark() {
			d.pref = theme.Dark
		}
	})
	return d.pref, d.ok
}

// PlatformDetector queries the desktop environment.
type PlatformDetector struct {
	GOOS string                                            // defaults to runtime.GOOS
	Run  func(name string, args ...string) ([]byte, error) // defaults to exec
}

func (PlatformDetector) Name() string { return "platform" }

func (d PlatformDetector) Detect() (theme.Preference, bool) {
	goos := d.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	run := d.Run
	if run == nil {
		run = func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		}
	}

	switch goos {
	case "darwin":
		// The key is absent in light mode, which makes defaults exit non-zero.
		out, err := run("defaults", "read", "-g", "AppleInterfaceStyle")
		if err != nil {
			return theme.Light, true
		}
		if strings.EqualFold(strings.TrimSpace(string(out)), "dark") {
			return theme.Dark, true
		}
		return theme.Light, true
	case "linux", "freebsd", "openbsd":
		out, err := run("gsettings", "get", "org.gnome.desktop.interface", "color-scheme")
		if err != nil {
			return "", false
		}
		scheme := strings.Trim(strings.TrimSpace(string(out)), "'\"")
		switch scheme {
		case "prefer-dark":
			return theme.Dark, true
		case "prefer-light", "default":
			return theme.Light, true
		}
		return "", false
	}
	return "", false
}

// Resolver asks detectors in order; the first that can tell wins.
type Resolver []Detector

func (Resolver) Name() string { return "resolver" }

func (r Resolver) Detect() (theme.Preference, bool) {
	for _, d := range r {
		if p, ok := d.Detect(); ok && p.Valid() {
			return p, true
		}
	}
	return "", false
}

// DefaultResolver returns the detectors used outside tests.
func DefaultResolver() Resolver {
	return Resolver{EnvDetector{}, PlatformDetector{}, &TerminalDetector{}}
}
