package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wilbur182/themesync/internal/theme"
)

func TestUpdateTheme(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.URL.Path != PreferencesPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization: %q", got)
		}
		if got := r.Header.Get(HeaderSyncSequence); got != "7" {
			t.Errorf("unexpected sequence: %q", got)
		}
		if r.Header.Get(HeaderRequestID) == "" {
			t.Error("missing request id")
		}

		var req PreferencesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.Theme != "dark" {
			t.Errorf("unexpected theme: %q", req.Theme)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(server.URL+"/", time.Second)
	if err := c.UpdateTheme(context.Background(), "tok", theme.Dark, 7); err != nil {
		t.Fatalf("UpdateTheme returned error: %v", err)
	}
}

func TestUpdateThemeErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"database down","code":17}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	err := c.UpdateTheme(context.Background(), "tok", theme.Light, 1)
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
	if !strings.Contains(err.Error(), "database down") || !strings.Contains(err.Error(), "500") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestUpdateThemePlainErrorBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	err := New(server.URL, time.Second).UpdateTheme(context.Background(), "", theme.Light, 1)
	if err == nil || !strings.Contains(err.Error(), "401: nope") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateThemeUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := New(url, time.Second).UpdateTheme(context.Background(), "tok", theme.Dark, 1)
	if err == nil || !strings.Contains(err.Error(), "request failed") {
		t.Fatalf("expected request failure, got %v", err)
	}
}

func TestFetchTheme(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"theme":"light","updatedAt":123}`))
	}))
	defer server.Close()

	got, err := New(server.URL, time.Second).FetchTheme(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FetchTheme returned error: %v", err)
	}
	if got != theme.Light {
		t.Fatalf("FetchTheme = %q, want light", got)
	}
}

func TestFetchThemeInvalidValue(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"theme":"purple"}`))
	}))
	defer server.Close()

	_, err := New(server.URL, time.Second).FetchTheme(context.Background(), "tok")
	if !errors.Is(err, theme.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
}
