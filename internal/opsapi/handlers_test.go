package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/JOBOYA/ghostline/internal/logging"
)

type stubStats struct {
	total, dropped, written uint64
}

func (s *stubStats) FramesTotal() uint64   { return s.total }
func (s *stubStats) FramesDropped() uint64 { return s.dropped }
func (s *stubStats) BytesWritten() uint64  { return s.written }

type stubLimiter struct {
	remaining int
}

func (s *stubLimiter) Allow() bool {
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	return true
}

type stubRotator struct {
	location string
	err      error
	calls    int
}

func (s *stubRotator) Rotate(ctx context.Context) (string, error) {
	s.calls++
	return s.location, s.err
}

func TestHealthHandlerReturnsJSON(t *testing.T) {
	fixed := time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), TimeSource: func() time.Time { return fixed }})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	handlers.HealthHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("unexpected status %q", payload.Status)
	}
	if payload.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp %q", payload.Timestamp)
	}
}

func TestMetricsHandlerEmitsCounters(t *testing.T) {
	stats := &stubStats{total: 5, dropped: 1, written: 1024}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Stats: stats})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handlers.MetricsHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"ghostline_frames_total 5",
		"ghostline_frames_dropped_total 1",
		"ghostline_bytes_written_total 1024",
	} {
		if !containsLine(body, want) {
			t.Fatalf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestRotateHandlerDeniesWithoutToken(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), AdminToken: "secret", Rotator: &stubRotator{}})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/rotate", nil)
	handlers.RotateHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRotateHandlerDeniesWhenAdminDisabled(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Rotator: &stubRotator{}})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/rotate", nil)
	handlers.RotateHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRotateHandlerAppliesRateLimit(t *testing.T) {
	limiter := &stubLimiter{remaining: 0}
	handlers := NewHandlerSet(Options{
		Logger:      logging.NewTestLogger(),
		AdminToken:  "secret",
		Rotator:     &stubRotator{location: "run.ghostline"},
		RateLimiter: limiter,
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/rotate", nil)
	req.Header.Set("X-Admin-Token", "secret")
	handlers.RotateHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}

func TestRotateHandlerSucceeds(t *testing.T) {
	rotator := &stubRotator{location: "20260730-120000-abc.ghostline"}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), AdminToken: "secret", Rotator: rotator})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/rotate", nil)
	req.URL.RawQuery = url.Values{"token": {"secret"}}.Encode()
	handlers.RotateHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if rotator.calls != 1 {
		t.Fatalf("expected rotator to be invoked once, got %d", rotator.calls)
	}
	var payload struct {
		Status   string `json:"status"`
		Location string `json:"location"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Location != rotator.location {
		t.Fatalf("unexpected location %q", payload.Location)
	}
}

func TestRotateHandlerRejectsNonPost(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), AdminToken: "secret"})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/rotate", nil)
	handlers.RotateHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestRotateHandlerSurfacesRotatorError(t *testing.T) {
	rotator := &stubRotator{err: errors.New("disk full")}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), AdminToken: "secret", Rotator: rotator})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/rotate", nil)
	req.Header.Set("X-Admin-Token", "secret")
	handlers.RotateHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func containsLine(body, want string) bool {
	for _, line := range splitLines(body) {
		if line == want {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
