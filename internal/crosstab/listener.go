// Package crosstab notices when another process changes the persisted
// preference store and reports the new value, the way browsers broadcast
// storage events to other tabs of the same origin.
package crosstab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/wilbur182/themesync/internal/fdmonitor"
	"github.com/wilbur182/themesync/internal/store"
)

// DefaultDebounce coalesces the burst of events a single write produces.
const DefaultDebounce = 100 * time.Millisecond

// Notification reports a change to one key of a shared store.
type Notification struct {
	Key         string
	NewValue    string
	OldValue    string
	Deleted     bool   // NewValue is absent
	StorageArea string // path of the store that changed
}

// Source produces notifications until ctx is cancelled, then closes the
// channel. *Listener implements it.
type Source interface {
	Watch(ctx context.Context) (<-chan Notification, error)
}

// Options configures a Listener.
type Options struct {
	Key      string // defaults to store.ThemeKey
	Debounce time.Duration
	Logger   *slog.Logger
	// Monitor, when set, is checked each time a watcher is opened.
	Monitor *fdmonitor.Monitor
}

// Listener watches the file behind a store.
type Listener struct {
	store    store.Store
	path     string
	key      string
	debounce time.Duration
	logger   *slog.Logger
	monitor  *fdmonitor.Monitor
}

// New returns a Listener for s, which must be file backed.
func New(s store.Store, opts Options) (*Listener, error) {
	located, ok := s.(store.Located)
	if !ok {
		return nil, errors.New("crosstab: store is not file backed")
	}
	key := opts.Key
	if key == "" {
		key = store.ThemeKey
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		store:    s,
		path:     located.Path(),
		key:      key,
		debounce: debounce,
		logger:   logger,
		monitor:  opts.Monitor,
	}, nil
}

// Watch starts watching. The watcher and its goroutine are released when ctx
// is cancelled; the returned channel is closed after that.
func (l *Listener) Watch(ctx context.Context) (<-chan Notification, error) {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("crosstab: create %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("crosstab: new watcher: %w", err)
	}
	// Watch the directory, not the file: atomic renames replace the inode.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("crosstab: watch %s: %w", dir, err)
	}

	if l.monitor != nil {
		l.monitor.Check("crosstab watch " + dir)
	}

	w := &watch{
		Listener: l,
		watcher:  watcher,
		out:      make(chan Notification, 8),
	}
	w.lastHash, _ = l.hashFile()
	w.lastValue, w.lastPresent = l.read()

	go w.run(ctx)
	return w.out, nil
}

// relevant reports whether an event path belongs to the store. SQLite
// journals are included because a commit may only touch them first.
func (l *Listener) relevant(name string) bool {
	if name == l.path {
		return true
	}
	return strings.HasPrefix(name, l.path+"-")
}

func (l *Listener) hashFile() (uint64, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(data), true
}

func (l *Listener) read() (string, bool) {
	v, ok, err := l.store.Get(l.key)
	if err != nil {
		l.logger.Debug("crosstab: read failed", "path", l.path, "err", err)
		return "", false
	}
	return v, ok
}

type watch struct {
	*Listener
	watcher *fsnotify.Watcher
	out     chan Notification

	lastHash    uint64
	lastValue   string
	lastPresent bool
}

func (w *watch) run(ctx context.Context) {
	defer close(w.out)
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("crosstab: watcher error", "path", w.path, "err", err)

		case <-fire:
			fire = nil
			n, changed := w.check()
			if !changed {
				continue
			}
			select {
			case w.out <- n:
			case <-ctx.Done():
				return
			}
		}
	}
}

// check re-reads the store and reports whether the watched key changed since
// the last notification.
func (w *watch) check() (Notification, bool) {
	hash, exists := w.hashFile()
	if exists && hash == w.lastHash {
		return Notification{}, false
	}
	w.lastHash = hash

	value, present := w.read()
	if present == w.lastPresent && value == w.lastValue {
		return Notification{}, false
	}

	n := Notification{
		Key:         w.key,
		NewValue:    value,
		OldValue:    w.lastValue,
		Deleted:     !present,
		StorageArea: w.path,
	}
	w.lastValue, w.lastPresent = value, present
	return n, true
}
