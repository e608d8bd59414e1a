// Package prefserver is a small user-preferences service speaking the same
// protocol the backend client expects. It keeps preferences in memory and is
// meant for development and tests.
package prefserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wilbur182/themesync/internal/backend"
	"github.com/wilbur182/themesync/internal/theme"
)

const subjectKey = "subject"

var (
	errMissingToken = errors.New("missing or malformed bearer token")
	errNotFound     = errors.New("no preference stored")
)

// Options configures a Server.
type Options struct {
	SigningKey []byte
	Logger     *slog.Logger
	Now        func() time.Time
}

type record struct {
	theme     theme.Preference
	updatedAt time.Time
	seq       uint64
}

// Server serves GET and PUT on backend.PreferencesPath.
type Server struct {
	app    *fiber.App
	key    []byte
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	prefs map[string]record
}

// New builds the fiber app. A signing key is required.
func New(opts Options) (*Server, error) {
	if len(opts.SigningKey) == 0 {
		return nil, errors.New("prefserver: signing key required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		key:    opts.SigningKey,
		logger: logger,
		now:    now,
		prefs:  make(map[string]record),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "themesync-prefserver",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.logRequests)

	s.app.Get(backend.PreferencesPath, s.requireToken, s.getPreferences)
	s.app.Put(backend.PreferencesPath, s.requireToken, s.putPreferences)
	return s, nil
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Preference returns the stored preference for subject.
func (s *Server) Preference(subject string) (theme.Preference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.prefs[subject]
	return r.theme, ok
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	s.logger.Debug("prefserver: request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"request_id", c.Get(backend.HeaderRequestID),
		"duration", time.Since(start),
	)
	return err
}

func (s *Server) requireToken(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return fiber.NewError(fiber.StatusUnauthorized, errMissingToken.Error())
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
	}
	if claims.Subject == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "token has no subject")
	}

	c.Locals(subjectKey, claims.Subject)
	return c.Next()
}

func (s *Server) getPreferences(c *fiber.Ctx) error {
	subject, _ := c.Locals(subjectKey).(string)

	s.mu.RLock()
	r, ok := s.prefs[subject]
	s.mu.RUnlock()
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, errNotFound.Error())
	}
	return c.JSON(backend.PreferencesResponse{
		Theme:     r.theme.String(),
		UpdatedAt: r.updatedAt.UnixMilli(),
	})
}

func (s *Server) putPreferences(c *fiber.Ctx) error {
	subject, _ := c.Locals(subjectKey).(string)

	var req backend.PreferencesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if err := validateRequest(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	p, _ := theme.Parse(req.Theme)
	// Sequences are per client process, so they are recorded for logs only
	// and the last write wins.
	seq, _ := strconv.ParseUint(c.Get(backend.HeaderSyncSequence), 10, 64)

	r := record{theme: p, updatedAt: s.now().UTC(), seq: seq}
	s.mu.Lock()
	s.prefs[subject] = r
	s.mu.Unlock()

	s.logger.Info("prefserver: preference updated", "subject", subject, "theme", p, "seq", seq)
	return c.JSON(backend.PreferencesResponse{Theme: p.String(), UpdatedAt: r.updatedAt.UnixMilli()})
}

func validateRequest(req *backend.PreferencesRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Theme,
			validation.Required,
			validation.By(func(v interface{}) error {
				s, _ := v.(string)
				if _, err := theme.Parse(s); err != nil {
					return err
				}
				return nil
			}),
		),
	)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("prefserver: request failed", "path", c.Path(), "err", err)
	}
	return c.Status(code).JSON(backend.ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}
