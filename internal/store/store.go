// Package store persists the theme preference record so it survives restarts
// and can be observed by other processes sharing the same file.
package store

import (
	"errors"
	"fmt"

	"github.com/wilbur182/themesync/internal/theme"
)

// ThemeKey is the fixed key the theme record lives under.
const ThemeKey = "theme"

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store is a string key/value store.
type Store interface {
	// Get returns the value for key. ok is false when the key was never set.
	Get(key string) (value string, ok bool, err error)
	// Set writes value under key. Writing the current value is a no-op.
	Set(key, value string) error
	Close() error
}

// Located is implemented by stores backed by a file other processes can
// watch for changes.
type Located interface {
	Path() string
}

// LoadTheme reads the persisted theme. ok is false when nothing usable is
// stored; malformed values are treated the same as a missing record.
func LoadTheme(s Store) (p theme.Preference, ok bool, err error) {
	raw, found, err := s.Get(ThemeKey)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	p, perr := theme.Parse(raw)
	if perr != nil {
		return "", false, nil
	}
	return p, true, nil
}

// SaveTheme persists p under ThemeKey.
func SaveTheme(s Store, p theme.Preference) error {
	if !p.Valid() {
		return fmt.Errorf("store: save theme: %w: %q", theme.ErrInvalidPreference, p)
	}
	return s.Set(ThemeKey, p.String())
}

// Open opens a store for the configured driver.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "json":
		return OpenFile(path)
	case "sqlite", "sqlite3":
		return OpenSQLite(driver, path)
	}
	return nil, fmt.Errorf("store: unknown driver %q", driver)
}
