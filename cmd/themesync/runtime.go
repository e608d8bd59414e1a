package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/wilbur182/themesync/internal/auth"
	"github.com/wilbur182/themesync/internal/backend"
	"github.com/wilbur182/themesync/internal/config"
	"github.com/wilbur182/themesync/internal/coordinator"
	"github.com/wilbur182/themesync/internal/crosstab"
	"github.com/wilbur182/themesync/internal/fdmonitor"
	"github.com/wilbur182/themesync/internal/state"
	"github.com/wilbur182/themesync/internal/store"
	"github.com/wilbur182/themesync/internal/surface"
	"github.com/wilbur182/themesync/internal/system"
	"github.com/wilbur182/themesync/internal/theme"
)

// themeRuntime is one mounted theme context with its collaborators.
type themeRuntime struct {
	store    store.Store
	styles   *surface.Styles
	state    *state.State
	client   *backend.Client // nil when no backend is configured
	syncer   *backend.Syncer
	session  *auth.Session
	detector system.Detector
	coord    *coordinator.Coordinator
}

// openRuntime wires the store, surface, session and coordinator from cfg
// and mounts. listen starts the cross-process listener.
func openRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, listen bool) (*themeRuntime, error) {
	s, err := store.Open(cfg.Store.Driver, config.ExpandPath(cfg.Store.Path))
	if err != nil {
		return nil, err
	}

	rt := &themeRuntime{store: s, styles: surface.NewStyles()}
	if cfg.Backend.URL != "" {
		rt.client = backend.New(cfg.Backend.URL, cfg.Backend.Timeout)
		rt.syncer = backend.NewSyncer(rt.client, logger)
	}

	sessOpts := auth.Options{
		SigningKey: []byte(cfg.Auth.SigningKey),
		TokenFile:  config.ExpandPath(cfg.Auth.TokenFile),
		Logger:     logger,
	}
	if rt.client != nil {
		sessOpts.Syncer = rt.syncer
		sessOpts.Fetcher = rt.client
	}
	rt.session = auth.NewSession(sessOpts)
	if err := rt.session.Restore(); err != nil {
		logger.Warn("auth: restore session", "err", err)
	}

	stateOpts := state.Options{
		Reflector:   rt.styles,
		Store:       s,
		Logger:      logger,
		SyncTimeout: cfg.Backend.Timeout,
	}
	if rt.client != nil {
		stateOpts.Session = rt.session
	}
	rt.state = state.New(stateOpts)

	coordOpts := coordinator.Options{
		State:        rt.state,
		Store:        s,
		Reflector:    rt.styles,
		PollInterval: cfg.System.PollInterval,
		Backend:      rt.session,
		Default:      theme.Preference(cfg.UI.Default),
		Logger:       logger,
	}
	if !cfg.System.Disabled {
		rt.detector = system.DefaultResolver()
		coordOpts.Detector = rt.detector
	}
	if listen {
		l, err := crosstab.New(s, crosstab.Options{
			Logger:  logger,
			Monitor: fdmonitor.New(logger),
		})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open listener: %w", err)
		}
		coordOpts.Listener = l
	}
	rt.coord = coordinator.New(coordOpts)

	if err := rt.coord.Mount(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return rt, nil
}

// Close unmounts, waits for in-flight backend pushes and closes the store.
func (rt *themeRuntime) Close() {
	rt.coord.Unmount()
	rt.state.Wait()
	_ = rt.store.Close()
}

// storePath returns the store location for display.
func (rt *themeRuntime) storePath() string {
	if l, ok := rt.store.(store.Located); ok {
		return l.Path()
	}
	return ""
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
