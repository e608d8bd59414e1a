package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	testPathMu     sync.RWMutex
	testConfigPath string
)

// ConfigPath returns the default config location, ~/.config/themesync/config.json.
func ConfigPath() string {
	testPathMu.RLock()
	p := testConfigPath
	testPathMu.RUnlock()
	if p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "themesync", "config.json")
	}
	return filepath.Join(home, ".config", "themesync", "config.json")
}

// SetTestConfigPath redirects ConfigPath for tests.
func SetTestConfigPath(path string) {
	testPathMu.Lock()
	testConfigPath = path
	testPathMu.Unlock()
}

// ResetTestConfigPath undoes SetTestConfigPath.
func ResetTestConfigPath() {
	SetTestConfigPath("")
}

// Load reads the config from ConfigPath. A missing file yields the defaults.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path, then applies environment overrides.
// Files ending in .yaml or .yml are parsed as YAML, everything else as JSON.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ExpandPath(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	}
	sc := toSaveConfig(cfg)
	if err := json.Unmarshal(data, &sc); err != nil {
		return err
	}
	return fromSaveConfig(sc, cfg)
}

// applyEnv applies THEMESYNC_* overrides. Env takes precedence over the file.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("THEMESYNC_BACKEND_URL")); v != "" {
		cfg.Backend.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("THEMESYNC_STORE_PATH")); v != "" {
		cfg.Store.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("THEMESYNC_STORE_DRIVER")); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("THEMESYNC_SIGNING_KEY")); v != "" {
		cfg.Auth.SigningKey = v
		cfg.Server.SigningKey = v
	}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
