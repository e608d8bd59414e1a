package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/wilbur182/themesync/internal/auth"
	"github.com/wilbur182/themesync/internal/crosstab"
	"github.com/wilbur182/themesync/internal/state"
	"github.com/wilbur182/themesync/internal/store"
	"github.com/wilbur182/themesync/internal/surface"
	"github.com/wilbur182/themesync/internal/theme"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeSource struct {
	ch chan crosstab.Notification
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan crosstab.Notification)}
}

func (f *fakeSource) Watch(ctx context.Context) (<-chan crosstab.Notification, error) {
	out := make(chan crosstab.Notification)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-f.ch:
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *fakeSource) send(t *testing.T, n crosstab.Notification) {
	t.Helper()
	select {
	case f.ch <- n:
	case <-time.After(5 * time.Second):
		t.Fatal("listener not consuming notifications")
	}
}

type fakeDetector struct {
	mu   sync.Mutex
	pref theme.Preference
	ok   bool
}

func (*fakeDetector) Name() string { return "fake" }

func (d *fakeDetector) Detect() (theme.Preference, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pref, d.ok
}

func (d *fakeDetector) set(p theme.Preference) {
	d.mu.Lock()
	d.pref, d.ok = p, true
	d.mu.Unlock()
}

type fixture struct {
	state *state.State
	store *store.Memory
	doc   *surface.Document
	coord *Coordinator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{store: store.NewMemory(), doc: surface.NewDocument()}
	if opts.Store != nil {
		f.store = opts.Store.(*store.Memory)
	}
	f.state = state.New(state.Options{Reflector: f.doc, Store: f.store, Logger: quietLogger()})
	opts.State = f.state
	opts.Store = f.store
	opts.Reflector = f.doc
	opts.Logger = quietLogger()
	f.coord = New(opts)
	t.Cleanup(f.coord.Unmount)
	return f
}

func seeded(t *testing.T, p theme.Preference) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	if err := m.Set(store.ThemeKey, p.String()); err != nil {
		t.Fatal(err)
	}
	return m
}

func persisted(t *testing.T, s store.Store) (theme.Preference, bool) {
	t.Helper()
	p, ok, err := store.LoadTheme(s)
	if err != nil {
		t.Fatal(err)
	}
	return p, ok
}

func TestMountSeedPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		stored   theme.Preference
		system   theme.Preference
		fallback theme.Preference
		want     theme.Preference
	}{
		{"persisted beats system", theme.Light, theme.Dark, "", theme.Light},
		{"system when nothing persisted", "", theme.Dark, theme.Light, theme.Dark},
		{"fallback when nothing detected", "", "", theme.Light, theme.Light},
		{"package default without fallback", "", "", "", theme.Default},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{Default: tt.fallback}
			if tt.stored != "" {
				opts.Store = seeded(t, tt.stored)
			}
			if tt.system != "" {
				opts.Detector = &fakeDetector{pref: tt.system, ok: true}
				opts.PollInterval = time.Hour
			}
			f := newFixture(t, opts)

			if f.state.IsThemeLoaded() {
				t.Fatal("loaded before mount")
			}
			if err := f.coord.Mount(context.Background()); err != nil {
				t.Fatalf("Mount() error: %v", err)
			}
			if !f.state.IsThemeLoaded() {
				t.Error("not loaded after mount")
			}
			if got := f.state.Theme(); got != tt.want {
				t.Errorf("Theme() = %q, want %q", got, tt.want)
			}
			if got, ok := f.doc.Reflected(); !ok || got != tt.want {
				t.Errorf("Reflected() = %q, %v, want %q", got, ok, tt.want)
			}
		})
	}
}

func TestMountSystemValueIsNotPersisted(t *testing.T) {
	f := newFixture(t, Options{
		Detector:     &fakeDetector{pref: theme.Dark, ok: true},
		PollInterval: time.Hour,
	})
	if err := f.coord.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.state.Theme() != theme.Dark {
		t.Fatalf("Theme() = %q, want dark", f.state.Theme())
	}
	if _, ok := persisted(t, f.store); ok {
		t.Error("system value must stay implicit")
	}
}

func TestMountTwice(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.coord.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.coord.Mount(context.Background()); !errors.Is(err, ErrAlreadyMounted) {
		t.Fatalf("second Mount() = %v, want ErrAlreadyMounted", err)
	}
	f.coord.Unmount()
	f.coord.Unmount()
	if err := f.coord.Mount(context.Background()); err != nil {
		t.Fatalf("Mount() after Unmount error: %v", err)
	}
}

func TestCrossProcessValueApplied(t *testing.T) {
	src := newFakeSource()
	f := newFixture(t, Options{Store: seeded(t, theme.Light), Listener: src})
	if err := f.coord.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var changes []state.Change
	unsub := f.state.Subscribe(func(c state.Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	defer unsub()

	src.send(t, crosstab.Notification{Key: store.ThemeKey, NewValue: "dark", OldValue: "light"})
	eventually(t, "dark theme", func() bool { return f.state.Theme() == theme.Dark })

	if got, _ := f.doc.Reflected(); got != theme.Dark {
		t.Errorf("Reflected() = %q, want dark", got)
	}
	if got, _ := persisted(t, f.store); got != theme.Dark {
		t.Errorf("persisted = %q, want dark", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 || changes[0].Origin != state.OriginCrossTab {
		t.Errorf("changes = %+v, want one crosstab change", changes)
	}
}

func TestCrossProcessValuesIgnored(t *testing.T) {
	src := newFakeSource()
	f := newFixture(t, Options{Store: seeded(t, theme.Light), Listener: src})
	if err := f.coord.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var changes []state.Change
	unsub := f.state.Subscribe(func(c state.Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	defer unsub()

	for _, n := range []crosstab.Notification{
		{Key: store.ThemeKey, NewValue: "purple"},
		{Key: store.ThemeKey, NewValue: ""},
		{Key: store.ThemeKey, Deleted: true},
		{Key: store.ThemeKey, NewValue: "light"},
		{Key: "locale", NewValue: "dark"},
	} {
		src.send(t, n)
	}
	// Notifications are handled in order, so once this lands the rest have
	// been processed.
	src.send(t, crosstab.Notification{Key: store.ThemeKey, NewValue: "DARK"})
	eventually(t, "dark theme", func() bool { return f.state.Theme() == theme.Dark })

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 {
		t.Errorf("got %d changes, want 1: %+v", len(changes), changes)
	}
}

func TestReconcileHealsDrift(t *testing.T) {
	f := newFixture(t, Options{Store: seeded(t, theme.Dark)})
	if err := f.coord.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}

	drifts := []struct {
		name  string
		drift func(d *surface.Document)
	}{
		{"wrong class", func(d *surface.Document) {
			d.RemoveClass(surface.DarkClass)
			d.AddClass(surface.LightClass)
		}},
		{"both classes", func(d *surface.Document) {
			d.AddClass(surface.LightClass)
		}},
		{"no class", func(d *surface.Document) {
			d.RemoveClass(surface.DarkClass)
		}},
	}
	for _, tt := range drifts {
		t.Run(tt.name, func(t *testing.T) {
			f.doc.AddClass("sidebar-open")
			tt.drift(f.doc)
			f.coord.Reconcile()

			if got, ok := f.doc.Reflected(); !ok || got != theme.Dark {
				t.Errorf("Reflected() = %q, %v, want dark", got, ok)
			}
			if !f.doc.HasClass("sidebar-open") {
				t.Error("unrelated class removed")
			}
			if f.state.Theme() != theme.Dark {
				t.Error("reflection must not change memory")
			}
		})
	}
}

func TestReconcileAfterEveryChange(t *testing.T) {
	f := newFixture(t, Options{Store: seeded(t, theme.Light)})
	if err := f.coord.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Something else clobbers the surface, then a same-value set arrives.
	f.doc.RemoveClass(surface.LightClass)
	if err := f.state.SetTheme(theme.Light); err != nil {
		t.Fatal(err)
	}
	if got, ok := f.doc.Reflected(); !ok || got != theme.Light {
		t.Errorf("Reflected() = %q, %v, want light", got, ok)
	}
}

func TestSystemFollowedUntilExplicitChoice(t *testing.T) {
	det := &fakeDetector{pref: theme.Light, ok: true}
	f := newFixture(t, Options{Detector: det, PollInterval: 10 * time.Millisecond})
	if err := f.coord.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.state.Theme() != theme.Light {
		t.Fatalf("Theme() = %q, want light", f.state.Theme())
	}

	det.set(theme.Dark)
	eventually(t, "system dark", func() bool { return f.state.Theme() == theme.Dark })
	if _, ok := persisted(t, f.store); ok {
		t.Error("system value must not be persisted")
	}

	if err := f.state.SetTheme(theme.Light); err != nil {
		t.Fatal(err)
	}
	det.set(theme.Light)
	det.set(theme.Dark)
	time.Sleep(100 * time.Millisecond)

	if got := f.state.Theme(); got != theme.Light {
		t.Errorf("Theme() = %q, want the explicit light", got)
	}
	if got, _ := persisted(t, f.store); got != theme.Light {
		t.Errorf("persisted = %q, want light", got)
	}
}

func TestSystemIgnoredWhenPersisted(t *testing.T) {
	det := &fakeDetector{pref: theme.Dark, ok: true}
	f := newFixture(t, Options{Store: seeded(t, theme.Light), Detector: det, PollInterval: 10 * time.Millisecond})
	if err := f.coord.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	det.set(theme.Light)
	det.set(theme.Dark)
	time.Sleep(100 * time.Millisecond)
	if got := f.state.Theme(); got != theme.Light {
		t.Errorf("Theme() = %q, want light", got)
	}
}

type fakeBackend struct {
	authenticated bool
	pref          theme.Preference
	err           error
}

func (b *fakeBackend) IsAuthenticated() bool { return b.authenticated }

func (b *fakeBackend) FetchTheme(context.Context) (theme.Preference, error) {
	return b.pref, b.err
}

func TestAdoptBackendTheme(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		f := newFixture(t, Options{Backend: &fakeBackend{}})
		_ = f.coord.Mount(context.Background())
		if err := f.coord.AdoptBackendTheme(context.Background()); !errors.Is(err, auth.ErrNotAuthenticated) {
			t.Errorf("AdoptBackendTheme() = %v, want ErrNotAuthenticated", err)
		}
	})

	t.Run("fetch error", func(t *testing.T) {
		boom := errors.New("boom")
		f := newFixture(t, Options{Store: seeded(t, theme.Light), Backend: &fakeBackend{authenticated: true, err: boom}})
		_ = f.coord.Mount(context.Background())
		if err := f.coord.AdoptBackendTheme(context.Background()); !errors.Is(err, boom) {
			t.Errorf("AdoptBackendTheme() = %v, want wrapped boom", err)
		}
		if f.state.Theme() != theme.Light {
			t.Error("theme changed after failed fetch")
		}
	})

	t.Run("applies and persists", func(t *testing.T) {
		f := newFixture(t, Options{Store: seeded(t, theme.Light), Backend: &fakeBackend{authenticated: true, pref: theme.Dark}})
		_ = f.coord.Mount(context.Background())

		var origin state.Origin
		unsub := f.state.Subscribe(func(c state.Change) { origin = c.Origin })
		defer unsub()

		if err := f.coord.AdoptBackendTheme(context.Background()); err != nil {
			t.Fatalf("AdoptBackendTheme() error: %v", err)
		}
		if f.state.Theme() != theme.Dark || origin != state.OriginBackend {
			t.Errorf("Theme() = %q origin %q, want dark from backend", f.state.Theme(), origin)
		}
		if got, _ := persisted(t, f.store); got != theme.Dark {
			t.Errorf("persisted = %q, want dark", got)
		}
	})
}

func TestUnmountStopsListeners(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "prefs.json")
	s, err := store.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	l, err := crosstab.New(s, crosstab.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	doc := surface.NewDocument()
	st := state.New(state.Options{Reflector: doc, Store: s, Logger: quietLogger()})
	c := New(Options{
		State:        st,
		Store:        s,
		Reflector:    doc,
		Listener:     l,
		Detector:     &fakeDetector{pref: theme.Dark, ok: true},
		PollInterval: 10 * time.Millisecond,
		Logger:       quietLogger(),
	})

	if err := c.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	st.ToggleTheme()
	c.Unmount()
	c.Unmount()
}

// Two independent processes sharing one JSON store converge.
func TestTwoProcessesConverge(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "prefs.json")
	type proc struct {
		state *state.State
		doc   *surface.Document
		coord *Coordinator
	}
	start := func() proc {
		s, err := store.OpenFile(path)
		if err != nil {
			t.Fatal(err)
		}
		l, err := crosstab.New(s, crosstab.Options{Debounce: 20 * time.Millisecond, Logger: quietLogger()})
		if err != nil {
			t.Fatal(err)
		}
		doc := surface.NewDocument()
		st := state.New(state.Options{Reflector: doc, Store: s, Logger: quietLogger()})
		c := New(Options{State: st, Store: s, Reflector: doc, Listener: l, Default: theme.Light, Logger: quietLogger()})
		if err := c.Mount(context.Background()); err != nil {
			t.Fatal(err)
		}
		return proc{st, doc, c}
	}

	a, b := start(), start()
	defer a.coord.Unmount()
	defer b.coord.Unmount()

	if err := a.state.SetTheme(theme.Dark); err != nil {
		t.Fatal(err)
	}
	eventually(t, "b to follow a", func() bool { return b.state.Theme() == theme.Dark })
	if got, _ := b.doc.Reflected(); got != theme.Dark {
		t.Errorf("b Reflected() = %q, want dark", got)
	}

	b.state.ToggleTheme()
	eventually(t, "a to follow b", func() bool { return a.state.Theme() == theme.Light })
}
