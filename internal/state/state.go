// Package state holds the in-memory theme that the UI renders from. Every
// change flows through State so memory, the reflected surface, the persisted
// record and the backend are updated in a fixed order.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wilbur182/themesync/internal/store"
	"github.com/wilbur182/themesync/internal/surface"
	"github.com/wilbur182/themesync/internal/theme"
)

// Origin identifies what produced a change.
type Origin string

const (
	OriginSeed     Origin = "seed"
	OriginUser     Origin = "user"
	OriginCrossTab Origin = "crosstab"
	OriginSystem   Origin = "system"
	OriginBackend  Origin = "backend"
)

// persists reports whether changes from o are written to the store. System
// values stay implicit so they never pose as an explicit choice.
func (o Origin) persists() bool {
	return o != OriginSystem && o != OriginSeed
}

// pushes reports whether changes from o are pushed to the backend.
func (o Origin) pushes() bool {
	return o == OriginUser
}

// Change is delivered to subscribers after every SetTheme, including
// same-value calls (Changed is false for those).
type Change struct {
	Previous theme.Preference
	Current  theme.Preference
	Origin   Origin
	Changed  bool
}

// Session is the part of the auth collaborator State depends on.
type Session interface {
	IsAuthenticated() bool
	SyncThemeWithBackend(ctx context.Context, p theme.Preference) error
}

// Options configures a State.
type Options struct {
	Reflector surface.Reflector
	Store     store.Store
	Session   Session // nil disables backend sync
	Logger    *slog.Logger
	// SyncTimeout bounds each detached backend sync. Default 10s.
	SyncTimeout time.Duration
}

// State is the authoritative in-memory theme.
type State struct {
	mu     sync.Mutex
	theme  theme.Preference
	loaded bool

	reflector   surface.Reflector
	store       store.Store
	session     Session
	logger      *slog.Logger
	syncTimeout time.Duration

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int

	inflight sync.WaitGroup
}

// New creates a State. It reports theme.Default and IsThemeLoaded false until
// MarkLoaded is called.
func New(opts Options) *State {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.SyncTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &State{
		theme:       theme.Default,
		reflector:   opts.Reflector,
		store:       opts.Store,
		session:     opts.Session,
		logger:      logger,
		syncTimeout: timeout,
		subs:        make(map[int]func(Change)),
	}
}

// Theme returns the current preference.
func (s *State) Theme() theme.Preference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// IsThemeLoaded reports whether the initial seed has been applied. Once true
// it never reverts.
func (s *State) IsThemeLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// MarkLoaded seeds the state with its first-load value and reflects it. Only
// the first call has any effect.
func (s *State) MarkLoaded(seed theme.Preference) bool {
	if !seed.Valid() {
		seed = theme.Default
	}

	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return false
	}
	prev := s.theme
	s.theme = seed
	s.loaded = true
	if s.reflector != nil {
		s.reflector.Reflect(seed)
	}
	s.mu.Unlock()

	s.notify(Change{Previous: prev, Current: seed, Origin: OriginSeed, Changed: true})
	return true
}

// SetTheme sets the preference on behalf of the user.
func (s *State) SetTheme(p theme.Preference) error {
	return s.Apply(p, OriginUser)
}

// ToggleTheme flips the preference and returns the new value.
func (s *State) ToggleTheme() theme.Preference {
	s.mu.Lock()
	next := s.theme.Toggle()
	s.applyLocked(next, OriginUser)
	return next
}

// Apply sets the preference on behalf of origin. Setting the current value
// has no side effects beyond notifying subscribers.
func (s *State) Apply(p theme.Preference, origin Origin) error {
	if !p.Valid() {
		return fmt.Errorf("state: set theme: %w: %q", theme.ErrInvalidPreference, p)
	}
	s.mu.Lock()
	s.applyLocked(p, origin)
	return nil
}

// applyLocked performs the ordered side effects and releases s.mu before
// notifying subscribers and dispatching the backend sync.
func (s *State) applyLocked(p theme.Preference, origin Origin) {
	prev := s.theme
	changed := prev != p

	if changed {
		// 1. memory
		s.theme = p
		// 2. reflection
		if s.reflector != nil {
			s.reflector.Reflect(p)
		}
	}
	// 3. persistence. A same-value user call still makes sure the record
	// exists (an implicit system value becomes explicit); the store skips
	// the write when the record already matches.
	if s.store != nil && origin.persists() && (changed || origin == OriginUser) {
		if err := store.SaveTheme(s.store, p); err != nil {
			s.logger.Warn("theme: persist failed", "theme", p, "origin", origin, "err", err)
		}
	}
	s.mu.Unlock()

	s.logger.Debug("theme: set", "theme", p, "previous", prev, "origin", origin, "changed", changed)
	s.notify(Change{Previous: prev, Current: p, Origin: origin, Changed: changed})

	// 4. backend, detached
	if changed && origin.pushes() {
		s.dispatchSync(p)
	}
}

// dispatchSync pushes p to the backend on a detached goroutine when the
// session is authenticated. Failures are logged and dropped.
func (s *State) dispatchSync(p theme.Preference) {
	if s.session == nil || !s.session.IsAuthenticated() {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
		defer cancel()
		if err := s.session.SyncThemeWithBackend(ctx, p); err != nil {
			s.logger.Warn("theme: backend sync failed", "theme", p, "err", err)
		}
	}()
}

// Wait blocks until every detached backend sync has finished.
func (s *State) Wait() {
	s.inflight.Wait()
}

// Subscribe registers fn for every change and returns a function that
// unregisters it. fn runs on the goroutine that made the change, after the
// state lock is released, so it may call back into State.
func (s *State) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *State) notify(c Change) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Change), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Reflect re-applies the in-memory theme to the surface without any other
// side effect. Used to heal drift.
func (s *State) Reflect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reflector != nil {
		s.reflector.Reflect(s.theme)
	}
}
