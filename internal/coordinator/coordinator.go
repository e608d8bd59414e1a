// Package coordinator keeps memory, the reflected surface, the persisted
// record and the system scheme converged on one theme.
//
// Precedence: memory beats reflection, and the store only seeds memory at
// mount. After that the store is a sink, except for writes made by other
// processes, which arrive as cross-process notifications.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wilbur182/themesync/internal/auth"
	"github.com/wilbur182/themesync/internal/crosstab"
	"github.com/wilbur182/themesync/internal/state"
	"github.com/wilbur182/themesync/internal/store"
	"github.com/wilbur182/themesync/internal/surface"
	"github.com/wilbur182/themesync/internal/system"
	"github.com/wilbur182/themesync/internal/theme"
)

// ErrAlreadyMounted is returned by Mount when the coordinator is mounted.
var ErrAlreadyMounted = errors.New("coordinator: already mounted")

// Backend is the part of the auth session used for the login flow.
type Backend interface {
	IsAuthenticated() bool
	FetchTheme(ctx context.Context) (theme.Preference, error)
}

// Options configures a Coordinator. State, Store and Reflector are required;
// the rest are optional.
type Options struct {
	State     *state.State
	Store     store.Store
	Reflector surface.Reflector // the same reflector State writes to

	Listener     crosstab.Source
	Detector     system.Detector
	PollInterval time.Duration
	Backend      Backend

	// Default seeds memory when nothing is persisted or detected.
	Default theme.Preference
	Logger  *slog.Logger
}

// Coordinator owns the listeners for one mounted State.
type Coordinator struct {
	state     *state.State
	store     store.Store
	reflector surface.Reflector
	listener  crosstab.Source
	signal    *system.Signal
	poll      time.Duration
	backend   Backend
	fallback  theme.Preference
	logger    *slog.Logger

	// lifeMu serializes Mount and Unmount.
	lifeMu      sync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup

	mu         sync.Mutex
	mounted    bool
	explicit   bool
	systemSet  bool
	systemPref theme.Preference
}

// New returns an unmounted Coordinator.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fallback := opts.Default
	if !fallback.Valid() {
		fallback = theme.Default
	}
	c := &Coordinator{
		state:     opts.State,
		store:     opts.Store,
		reflector: opts.Reflector,
		listener:  opts.Listener,
		poll:      opts.PollInterval,
		backend:   opts.Backend,
		fallback:  fallback,
		logger:    logger,
	}
	if opts.Detector != nil {
		c.signal = system.NewSignal(opts.Detector, logger)
	}
	return c
}

// Mount seeds the state, reconciles once and starts the cross-process and
// system listeners. The listeners stop when ctx is done or on Unmount.
func (c *Coordinator) Mount(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return ErrAlreadyMounted
	}
	c.mounted = true
	c.mu.Unlock()

	seed := c.seed()
	if c.state.MarkLoaded(seed) {
		c.logger.Debug("coordinator: seeded", "theme", seed)
	}

	c.unsubscribe = c.state.Subscribe(c.onChange)
	c.Reconcile()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	var notes <-chan crosstab.Notification
	if c.listener != nil {
		ch, err := c.listener.Watch(ctx)
		if err != nil {
			// Cross-process updates are best effort; the local state still works.
			c.logger.Warn("coordinator: cross-process listener unavailable", "err", err)
		} else {
			notes = ch
		}
	}
	var schemes <-chan theme.Preference
	if c.signal != nil {
		schemes = c.signal.Watch(ctx, c.poll)
	}
	if notes != nil || schemes != nil {
		c.wg.Add(1)
		go c.run(ctx, notes, schemes)
	}
	return nil
}

// seed picks the initial value: persisted, then system, then the default.
func (c *Coordinator) seed() theme.Preference {
	persisted, ok, err := store.LoadTheme(c.store)
	if err != nil {
		c.logger.Warn("coordinator: read persisted theme", "err", err)
	}
	if ok {
		c.mu.Lock()
		c.explicit = true
		c.mu.Unlock()
		return persisted
	}
	if c.signal != nil {
		if p, ok := c.signal.Current(); ok {
			c.mu.Lock()
			c.systemPref, c.systemSet = p, true
			c.mu.Unlock()
			return p
		}
	}
	return c.fallback
}

func (c *Coordinator) run(ctx context.Context, notes <-chan crosstab.Notification, schemes <-chan theme.Preference) {
	defer c.wg.Done()
	for notes != nil || schemes != nil {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			c.handleNotification(n)
		case p, ok := <-schemes:
			if !ok {
				schemes = nil
				continue
			}
			c.mu.Lock()
			c.systemPref, c.systemSet = p, true
			c.mu.Unlock()
			c.Reconcile()
		}
	}
}

// handleNotification applies another process's write when it names the
// theme key, parses, and differs from memory.
func (c *Coordinator) handleNotification(n crosstab.Notification) {
	if n.Key != store.ThemeKey || n.Deleted {
		return
	}
	p, err := theme.Parse(n.NewValue)
	if err != nil {
		c.logger.Debug("coordinator: ignoring malformed cross-process value", "value", n.NewValue)
		return
	}
	if p == c.state.Theme() {
		return
	}
	if err := c.state.Apply(p, state.OriginCrossTab); err != nil {
		c.logger.Debug("coordinator: apply cross-process value", "err", err)
	}
}

func (c *Coordinator) onChange(ch state.Change) {
	switch ch.Origin {
	case state.OriginUser, state.OriginCrossTab, state.OriginBackend:
		c.mu.Lock()
		c.explicit = true
		c.mu.Unlock()
	}
	c.Reconcile()
}

// Reconcile adopts the system scheme while no explicit choice exists, then
// forces the surface back to memory if it drifted. It is a no-op before
// Mount.
func (c *Coordinator) Reconcile() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	explicit := c.explicit
	sys, sysOK := c.systemPref, c.systemSet
	c.mu.Unlock()

	if !explicit && c.hasPersisted() {
		c.mu.Lock()
		c.explicit = true
		c.mu.Unlock()
		explicit = true
	}
	if !explicit && sysOK && sys != c.state.Theme() {
		// Notifies subscribers, which re-enters Reconcile with memory == sys.
		if err := c.state.Apply(sys, state.OriginSystem); err != nil {
			c.logger.Debug("coordinator: apply system scheme", "err", err)
		}
		return
	}

	if c.reflector == nil {
		return
	}
	reflected, ok := c.reflector.Reflected()
	if !ok || reflected != c.state.Theme() {
		c.logger.Debug("coordinator: healing surface drift", "reflected", reflected, "theme", c.state.Theme())
		c.state.Reflect()
	}
}

func (c *Coordinator) hasPersisted() bool {
	_, ok, err := store.LoadTheme(c.store)
	return err == nil && ok
}

// AdoptBackendTheme fetches the signed-in user's saved theme and applies it.
func (c *Coordinator) AdoptBackendTheme(ctx context.Context) error {
	if c.backend == nil || !c.backend.IsAuthenticated() {
		return auth.ErrNotAuthenticated
	}
	p, err := c.backend.FetchTheme(ctx)
	if err != nil {
		return fmt.Errorf("coordinator: adopt backend theme: %w", err)
	}
	return c.state.Apply(p, state.OriginBackend)
}

// Unmount stops the listeners, waits for them to exit and unsubscribes from
// state. Calling it more than once is harmless.
func (c *Coordinator) Unmount() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.wg.Wait()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}
