package backend

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wilbur182/themesync/internal/theme"
)

// Pusher is the request the Syncer sequences. *Client implements it.
type Pusher interface {
	UpdateTheme(ctx context.Context, token string, p theme.Preference, seq uint64) error
}

// SyncResult describes one completed push.
type SyncResult struct {
	Seq   uint64
	Theme theme.Preference
	Stale bool // a later push had already been acknowledged
	Err   error
}

// Syncer numbers pushes with a monotonically increasing sequence and tracks
// the latest acknowledged one. In-flight pushes are never cancelled; a
// completion older than the last acknowledgement is flagged stale and does
// not move LastSynced.
type Syncer struct {
	pusher Pusher
	logger *slog.Logger

	mu        sync.Mutex
	seq       uint64
	ackedSeq  uint64
	ackedPref theme.Preference
	failures  int
}

// NewSyncer wraps p.
func NewSyncer(p Pusher, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{pusher: p, logger: logger}
}

// Push issues one update for pref and waits for it. It is not retried.
func (s *Syncer) Push(ctx context.Context, token string, pref theme.Preference) SyncResult {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	err := s.pusher.UpdateTheme(ctx, token, pref, seq)

	s.mu.Lock()
	defer s.mu.Unlock()
	res := SyncResult{Seq: seq, Theme: pref, Err: err}
	if err != nil {
		s.failures++
		return res
	}
	if seq < s.ackedSeq {
		res.Stale = true
		s.logger.Debug("theme: stale backend ack", "seq", seq, "acked", s.ackedSeq, "theme", pref)
		return res
	}
	s.ackedSeq = seq
	s.ackedPref = pref
	return res
}

// LastSynced returns the preference of the newest acknowledged push.
func (s *Syncer) LastSynced() (pref theme.Preference, seq uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ackedPref, s.ackedSeq, s.ackedSeq > 0
}

// Failures returns the number of failed pushes.
func (s *Syncer) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}
