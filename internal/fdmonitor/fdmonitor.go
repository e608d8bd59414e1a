// Package fdmonitor counts open file descriptors so long-running watchers
// can notice when they leak inotify handles or database files.
package fdmonitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultWarningThreshold is the FD count that triggers a warning.
	DefaultWarningThreshold = 200
	// DefaultCriticalThreshold is the FD count that triggers a critical warning.
	DefaultCriticalThreshold = 500
	// MinCheckInterval prevents checking too frequently.
	MinCheckInterval = 10 * time.Second
)

// Monitor rate-limits FD checks and logs when thresholds are crossed.
type Monitor struct {
	Warning  int
	Critical int
	Interval time.Duration
	Logger   *slog.Logger

	mu        sync.Mutex
	lastCheck time.Time
	lastCount int
}

// New returns a Monitor with the default thresholds.
func New(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		Warning:  DefaultWarningThreshold,
		Critical: DefaultCriticalThreshold,
		Interval: MinCheckInterval,
		Logger:   logger,
	}
}

func fdDir() string {
	switch runtime.GOOS {
	case "darwin":
		return "/dev/fd"
	case "linux":
		return fmt.Sprintf("/proc/%d/fd", os.Getpid())
	}
	return ""
}

// Count returns the current number of open file descriptors for this process.
// On non-Linux/macOS platforms, returns -1.
func Count() int {
	dir := fdDir()
	if dir == "" {
		return -1
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return -1
	}
	return len(entries)
}

// Check logs a warning when the FD count exceeds a threshold. Calls within
// Interval of the previous one return the cached count. where names the
// caller in the log.
func (m *Monitor) Check(where string) (count int, warned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastCheck.IsZero() && time.Since(m.lastCheck) < m.Interval {
		return m.lastCount, false
	}

	count = Count()
	if count < 0 {
		return count, false
	}
	m.lastCheck = time.Now()
	m.lastCount = count

	switch {
	case count >= m.Critical:
		m.Logger.Warn("critical FD count", "count", count, "threshold", m.Critical, "where", where, "breakdown", Breakdown())
		return count, true
	case count >= m.Warning:
		m.Logger.Warn("high FD count", "count", count, "threshold", m.Warning, "where", where)
		return count, true
	}
	return count, false
}

// Breakdown groups open descriptors by kind. On non-Linux/macOS platforms,
// returns an empty map.
func Breakdown() map[string]int {
	info := make(map[string]int)
	dir := fdDir()
	if dir == "" {
		return info
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return info
	}

	for _, e := range entries {
		target, err := os.Readlink(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		info[category(target)]++
	}
	return info
}

func category(target string) string {
	switch {
	case strings.Contains(target, "inotify"):
		return "watcher"
	case strings.Contains(target, "pipe"):
		return "pipe"
	case strings.HasPrefix(target, "socket"), strings.HasPrefix(target, "["):
		return "socket"
	case strings.HasSuffix(target, "-wal"), strings.HasSuffix(target, "-journal"):
		return "database"
	}
	switch filepath.Ext(target) {
	case ".json":
		return "json"
	case ".db", ".sqlite", ".sqlite3":
		return "database"
	}
	return "file"
}
