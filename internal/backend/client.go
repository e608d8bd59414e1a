// Package backend pushes the theme preference to, and fetches it from, the
// remote user-preference service. Pushes are best effort.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wilbur182/themesync/internal/theme"
)

// ErrUnexpectedStatus wraps every non-2xx response.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Client talks to the preference endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client for baseURL with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UpdateTheme sends a single PUT carrying p. seq is echoed in
// X-Sync-Sequence so the service (and logs) can order concurrent pushes.
func (c *Client) UpdateTheme(ctx context.Context, token string, p theme.Preference, seq uint64) error {
	body, err := json.Marshal(PreferencesRequest{Theme: p.String()})
	if err != nil {
		return fmt.Errorf("backend: update theme: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url(PreferencesPath), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: update theme: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSyncSequence, strconv.FormatUint(seq, 10))
	c.authorize(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: update theme: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseErrorResponse("update theme", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchTheme returns the preference stored for the session's user.
func (c *Client) FetchTheme(ctx context.Context, token string) (theme.Preference, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(PreferencesPath), nil)
	if err != nil {
		return "", fmt.Errorf("backend: fetch theme: %w", err)
	}
	c.authorize(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend: fetch theme: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.parseErrorResponse("fetch theme", resp)
	}

	var out PreferencesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("backend: fetch theme: decode response: %w", err)
	}
	p, err := theme.Parse(out.Theme)
	if err != nil {
		return "", fmt.Errorf("backend: fetch theme: %w", err)
	}
	return p, nil
}

func (c *Client) authorize(req *http.Request, token string) {
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) parseErrorResponse(operation string, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: %s: %w %d: read error body: %v", operation, ErrUnexpectedStatus, resp.StatusCode, err)
	}

	var apiErr ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("backend: %s: %w %d: %s", operation, ErrUnexpectedStatus, resp.StatusCode, apiErr.Error)
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("backend: %s: %w %d", operation, ErrUnexpectedStatus, resp.StatusCode)
	}
	return fmt.Errorf("backend: %s: %w %d: %s", operation, ErrUnexpectedStatus, resp.StatusCode, msg)
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}
