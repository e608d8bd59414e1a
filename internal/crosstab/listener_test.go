package crosstab

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/wilbur182/themesync/internal/fdmonitor"
	"github.com/wilbur182/themesync/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func expectNotification(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatal("notification channel closed")
		}
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return Notification{}
}

func expectQuiet(t *testing.T, ch <-chan Notification, d time.Duration) {
	t.Helper()
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification: %+v", n)
	case <-time.After(d):
	}
}

func TestListenerReportsOtherProcessWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "prefs.json")
	ours, _ := store.OpenFile(path)
	theirs, _ := store.OpenFile(path)

	l, err := New(ours, Options{Debounce: 20 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := l.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}

	if err := theirs.Set(store.ThemeKey, "dark"); err != nil {
		t.Fatal(err)
	}
	n := expectNotification(t, ch)
	if n.Key != store.ThemeKey || n.NewValue != "dark" || n.OldValue != "" || n.StorageArea != path {
		t.Fatalf("unexpected notification: %+v", n)
	}

	if err := theirs.Set(store.ThemeKey, "light"); err != nil {
		t.Fatal(err)
	}
	n = expectNotification(t, ch)
	if n.NewValue != "light" || n.OldValue != "dark" {
		t.Fatalf("unexpected notification: %+v", n)
	}

	cancel()
	for range ch {
	}
}

func TestListenerIgnoresOtherKeys(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "prefs.json")
	s, _ := store.OpenFile(path)
	l, _ := New(s, Options{Debounce: 20 * time.Millisecond, Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := l.Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Set("locale", "fr"); err != nil {
		t.Fatal(err)
	}
	expectQuiet(t, ch, 300*time.Millisecond)

	cancel()
	for range ch {
	}
}

func TestListenerPassesMalformedValuesThrough(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "prefs.json")
	s, _ := store.OpenFile(path)
	l, _ := New(s, Options{Debounce: 20 * time.Millisecond, Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := l.Watch(ctx)

	// Validation is the consumer's job; the listener reports raw values.
	if err := s.Set(store.ThemeKey, "purple"); err != nil {
		t.Fatal(err)
	}
	if n := expectNotification(t, ch); n.NewValue != "purple" {
		t.Fatalf("unexpected notification: %+v", n)
	}

	cancel()
	for range ch {
	}
}

func TestListenerSQLiteStore(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "prefs.db")
	ours, err := store.OpenSQLite("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ours.Close()
	theirs, err := store.OpenSQLite("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer theirs.Close()

	l, _ := New(ours, Options{Debounce: 20 * time.Millisecond, Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := l.Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := theirs.Set(store.ThemeKey, "light"); err != nil {
		t.Fatal(err)
	}
	if n := expectNotification(t, ch); n.NewValue != "light" {
		t.Fatalf("unexpected notification: %+v", n)
	}

	cancel()
	for range ch {
	}
}

func TestListenerClosesOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := store.OpenFile(filepath.Join(t.TempDir(), "prefs.json"))
	l, _ := New(s, Options{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := l.Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestNewRequiresFileBackedStore(t *testing.T) {
	if _, err := New(store.NewMemory(), Options{}); err == nil {
		t.Fatal("expected error for in-memory store")
	}
}

func TestListenerReleasesDescriptors(t *testing.T) {
	defer goleak.VerifyNone(t)
	if fdmonitor.Count() < 0 {
		t.Skip("fd directory not readable")
	}

	s, _ := store.OpenFile(filepath.Join(t.TempDir(), "prefs.json"))
	l, _ := New(s, Options{Logger: quietLogger(), Monitor: fdmonitor.New(quietLogger())})

	before := fdmonitor.Count()
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := l.Watch(ctx)
		if err != nil {
			t.Fatal(err)
		}
		cancel()
		for range ch {
		}
	}
	if after := fdmonitor.Count(); after > before {
		t.Errorf("open descriptors grew from %d to %d", before, after)
	}
}
