package fdmonitor

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestCount(t *testing.T) {
	count := Count()
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		if count != -1 {
			t.Errorf("Count() = %d on %s, want -1", count, runtime.GOOS)
		}
		return
	}
	// Sandboxed environments may hide the fd directory.
	t.Logf("Current FD count: %d", count)
}

func TestCountSeesNewFile(t *testing.T) {
	before := Count()
	if before < 0 {
		t.Skip("fd directory not readable")
	}
	f, err := os.Create(filepath.Join(t.TempDir(), "prefs.json"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if after := Count(); after <= before {
		t.Errorf("Count() = %d after opening a file, was %d", after, before)
	}
}

func TestCheckRateLimited(t *testing.T) {
	if Count() < 0 {
		t.Skip("fd directory not readable")
	}
	m := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Warning, m.Critical = 1, 1<<20
	m.Interval = time.Hour

	count, warned := m.Check("test")
	if count <= 0 || !warned {
		t.Fatalf("Check() = %d, %v, want a warning", count, warned)
	}
	if _, warned := m.Check("test"); warned {
		t.Error("second check within the interval should be cached")
	}
}

func TestCategory(t *testing.T) {
	tests := map[string]string{
		"anon_inode:inotify":         "watcher",
		"pipe:[1234]":                "pipe",
		"socket:[99]":                "socket",
		"/home/u/prefs.json":         "json",
		"/home/u/prefs.db":           "database",
		"/home/u/prefs.db-wal":       "database",
		"/home/u/.config/other.conf": "file",
	}
	for target, want := range tests {
		if got := category(target); got != want {
			t.Errorf("category(%q) = %q, want %q", target, got, want)
		}
	}
}
