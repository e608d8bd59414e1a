package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Store drivers.
const (
	DriverJSON    = "json"
	DriverSQLite  = "sqlite"  // modernc.org/sqlite, pure Go
	DriverSQLite3 = "sqlite3" // github.com/mattn/go-sqlite3, cgo
)

// Config is the root configuration structure.
type Config struct {
	Store   StoreConfig   `json:"store" yaml:"store"`
	Backend BackendConfig `json:"backend" yaml:"backend"`
	Auth    AuthConfig    `json:"auth" yaml:"auth"`
	System  SystemConfig  `json:"system" yaml:"system"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	UI      UIConfig      `json:"ui" yaml:"ui"`
}

// StoreConfig selects where the persisted theme record lives.
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "json", "sqlite" or "sqlite3"
	Path   string `json:"path" yaml:"path"`     // supports ~ expansion
}

// BackendConfig points at the remote user-preference service.
type BackendConfig struct {
	URL     string        `json:"url" yaml:"url"` // empty disables backend sync
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// AuthConfig configures the session collaborator.
type AuthConfig struct {
	TokenFile  string `json:"tokenFile" yaml:"tokenFile"`
	SigningKey string `json:"signingKey,omitempty" yaml:"signingKey,omitempty"` // empty = parse tokens unverified
}

// SystemConfig configures platform dark-mode detection.
type SystemConfig struct {
	Disabled     bool          `json:"disabled" yaml:"disabled"`
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval"`
}

// ServerConfig configures the reference preference server.
type ServerConfig struct {
	Addr       string `json:"addr" yaml:"addr"`
	SigningKey string `json:"signingKey,omitempty" yaml:"signingKey,omitempty"`
}

// UIConfig configures UI appearance.
type UIConfig struct {
	Default string `json:"default" yaml:"default"` // hardcoded fallback theme
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DriverJSON,
			Path:   "~/.config/themesync/preferences.json",
		},
		Backend: BackendConfig{
			Timeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			TokenFile: "~/.config/themesync/token",
		},
		System: SystemConfig{
			PollInterval: 5 * time.Second,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
		},
		UI: UIConfig{
			Default: "dark",
		},
	}
}

// Validate checks the configuration for errors. Negative durations are reset
// to their defaults before the structural checks run.
func (c *Config) Validate() error {
	def := Default()
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = def.Backend.Timeout
	}
	if c.System.PollInterval <= 0 {
		c.System.PollInterval = def.System.PollInterval
	}
	if c.Store.Driver == "" {
		c.Store.Driver = def.Store.Driver
	}
	if c.UI.Default == "" {
		c.UI.Default = def.UI.Default
	}

	if err := validation.ValidateStruct(&c.Store,
		validation.Field(&c.Store.Driver, validation.Required, validation.In(DriverJSON, DriverSQLite, DriverSQLite3)),
		validation.Field(&c.Store.Path, validation.Required),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Backend,
		validation.Field(&c.Backend.URL, is.RequestURL),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.UI,
		validation.Field(&c.UI.Default, validation.In("light", "dark")),
	)
}
