package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// saveConfig is the JSON-marshaling intermediary that uses string durations.
type saveConfig struct {
	Store   StoreConfig       `json:"store"`
	Backend saveBackendConfig `json:"backend"`
	Auth    AuthConfig        `json:"auth"`
	System  saveSystemConfig  `json:"system"`
	Server  ServerConfig      `json:"server"`
	UI      UIConfig          `json:"ui"`
}

type saveBackendConfig struct {
	URL     string `json:"url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type saveSystemConfig struct {
	Disabled     *bool  `json:"disabled,omitempty"`
	PollInterval string `json:"pollInterval,omitempty"`
}

// toSaveConfig converts Config to the JSON-serializable format.
func toSaveConfig(cfg *Config) saveConfig {
	disabled := cfg.System.Disabled
	return saveConfig{
		Store: cfg.Store,
		Backend: saveBackendConfig{
			URL:     cfg.Backend.URL,
			Timeout: cfg.Backend.Timeout.String(),
		},
		Auth: cfg.Auth,
		System: saveSystemConfig{
			Disabled:     &disabled,
			PollInterval: cfg.System.PollInterval.String(),
		},
		Server: cfg.Server,
		UI:     cfg.UI,
	}
}

// fromSaveConfig copies a decoded saveConfig back onto cfg.
func fromSaveConfig(sc saveConfig, cfg *Config) error {
	cfg.Store = sc.Store
	cfg.Auth = sc.Auth
	cfg.Server = sc.Server
	cfg.UI = sc.UI
	cfg.Backend.URL = sc.Backend.URL

	if sc.Backend.Timeout != "" {
		d, err := time.ParseDuration(sc.Backend.Timeout)
		if err != nil {
			return fmt.Errorf("backend.timeout: %w", err)
		}
		cfg.Backend.Timeout = d
	}
	if sc.System.Disabled != nil {
		cfg.System.Disabled = *sc.System.Disabled
	}
	if sc.System.PollInterval != "" {
		d, err := time.ParseDuration(sc.System.PollInterval)
		if err != nil {
			return fmt.Errorf("system.pollInterval: %w", err)
		}
		cfg.System.PollInterval = d
	}
	return nil
}

// Save writes the config to ConfigPath.
func Save(cfg *Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo writes the config as indented JSON to path.
func SaveTo(path string, cfg *Config) error {
	path = ExpandPath(path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	sc := toSaveConfig(cfg)
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SaveBackendURL updates only the backend URL in config and saves.
func SaveBackendURL(url string) error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	cfg.Backend.URL = url
	return Save(cfg)
}
