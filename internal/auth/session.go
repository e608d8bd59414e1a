// Package auth owns the login session the theme core reads from. The theme
// layers only ask whether the session is authenticated and ask it to push a
// preference to the backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wilbur182/themesync/internal/backend"
	"github.com/wilbur182/themesync/internal/theme"
)

var (
	// ErrNotAuthenticated is returned by backend operations without a live session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTokenExpired is returned when logging in with an expired token.
	ErrTokenExpired = errors.New("token expired")
	// ErrBackendDisabled is returned when no backend URL is configured.
	ErrBackendDisabled = errors.New("backend sync disabled")
)

// Fetcher reads the preference stored on the backend. *backend.Client
// implements it.
type Fetcher interface {
	FetchTheme(ctx context.Context, token string) (theme.Preference, error)
}

// Options configures a Session.
type Options struct {
	Syncer  *backend.Syncer // nil disables pushes
	Fetcher Fetcher         // nil disables fetches
	// SigningKey verifies HS256 tokens. Empty accepts tokens unverified; the
	// backend remains the authority on their validity.
	SigningKey []byte
	// TokenFile persists the token across runs. Empty keeps it in memory.
	TokenFile string
	Logger    *slog.Logger
	Now       func() time.Time
}

// Session holds a bearer token and the claims parsed from it.
type Session struct {
	mu        sync.RWMutex
	token     string
	subject   string
	expiresAt time.Time

	syncer     *backend.Syncer
	fetcher    Fetcher
	signingKey []byte
	tokenFile  string
	logger     *slog.Logger
	now        func() time.Time
}

// NewSession returns a logged-out session.
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		syncer:     opts.Syncer,
		fetcher:    opts.Fetcher,
		signingKey: opts.SigningKey,
		tokenFile:  opts.TokenFile,
		logger:     logger,
		now:        now,
	}
}

// Login validates token and makes it the active session. The token is
// written to the token file when one is configured.
func (s *Session) Login(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("auth: login: %w: empty token", ErrNotAuthenticated)
	}

	claims, err := s.parse(token)
	if err != nil {
		return fmt.Errorf("auth: login: %w", err)
	}

	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
		if !exp.After(s.now()) {
			return fmt.Errorf("auth: login: %w", ErrTokenExpired)
		}
	}

	s.mu.Lock()
	s.token = token
	s.subject = claims.Subject
	s.expiresAt = exp
	s.mu.Unlock()

	if s.tokenFile != "" {
		if err := writeToken(s.tokenFile, token); err != nil {
			s.logger.Warn("auth: persist token failed", "path", s.tokenFile, "err", err)
		}
	}
	s.logger.Debug("auth: logged in", "subject", claims.Subject)
	return nil
}

// Restore logs in with the token stored in the token file, if any. A missing
// or expired token leaves the session logged out without error.
func (s *Session) Restore() error {
	if s.tokenFile == "" {
		return nil
	}
	data, err := os.ReadFile(s.tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: restore: %w", err)
	}
	if err := s.Login(string(data)); err != nil {
		if errors.Is(err, ErrTokenExpired) {
			s.logger.Debug("auth: stored token expired")
			return nil
		}
		return err
	}
	return nil
}

// Logout drops the session and removes the token file.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.token = ""
	s.subject = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if s.tokenFile != "" {
		if err := os.Remove(s.tokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("auth: logout: %w", err)
		}
	}
	return nil
}

// IsAuthenticated reports whether a token is held and has not expired.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return false
	}
	return s.expiresAt.IsZero() || s.expiresAt.After(s.now())
}

// Subject returns the user the session belongs to.
func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

// Token returns the bearer token, or "" when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SyncThemeWithBackend pushes p once. Callers treat it as fire-and-forget.
func (s *Session) SyncThemeWithBackend(ctx context.Context, p theme.Preference) error {
	if s.syncer == nil {
		return ErrBackendDisabled
	}
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	res := s.syncer.Push(ctx, s.Token(), p)
	return res.Err
}

// FetchTheme reads the backend's stored preference for this user.
func (s *Session) FetchTheme(ctx context.Context) (theme.Preference, error) {
	if s.fetcher == nil {
		return "", ErrBackendDisabled
	}
	if !s.IsAuthenticated() {
		return "", ErrNotAuthenticated
	}
	return s.fetcher.FetchTheme(ctx, s.Token())
}

func (s *Session) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if len(s.signingKey) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	// Expiry is checked by Login against the injectable clock.
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func writeToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0600)
}
