package system

import (
	"context"
	"log/slog"
	"time"

	"github.com/wilbur182/themesync/internal/theme"
)

// DefaultPollInterval is used when Watch is given a non-positive interval.
const DefaultPollInterval = 5 * time.Second

// Signal turns a Detector into a stream of changes.
type Signal struct {
	detector Detector
	logger   *slog.Logger
}

// NewSignal wraps d. A nil logger uses slog.Default().
func NewSignal(d Detector, logger *slog.Logger) *Signal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signal{detector: d, logger: logger}
}

// Current returns the detected preference right now.
func (s *Signal) Current() (theme.Preference, bool) {
	return s.detector.Detect()
}

// Watch polls the detector every interval and sends each new value. The
// value at the time of the call is the baseline and is not sent. The channel
// is closed once ctx is done.
func (s *Signal) Watch(ctx context.Context, interval time.Duration) <-chan theme.Preference {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	out := make(chan theme.Preference, 1)
	last, _ := s.detector.Detect()

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p, ok := s.detector.Detect()
				if !ok || p == last {
					continue
				}
				s.logger.Debug("system: scheme changed", "detector", s.detector.Name(), "theme", p)
				last = p
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
