// Package opsapi implements ghostline's operator-facing HTTP surface: health
// and Prometheus metrics endpoints plus an admin-token-gated, rate-limited
// rotate trigger. It is served on its own loopback listener, separate from
// the recording/replay proxies, since the recording proxy forwards every
// path to upstream and the replay proxy answers every path other than
// GET /status from its cache, so neither reserves paths for operational use.
package opsapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JOBOYA/ghostline/internal/logging"
)

// StatsProvider exposes the recording proxy's lifetime counters.
type StatsProvider interface {
	FramesTotal() uint64
	FramesDropped() uint64
	BytesWritten() uint64
}

// StatsFunc adapts a no-argument snapshot function, such as a wrapper around
// recorder.Proxy.Stats, into a StatsProvider.
type StatsFunc func() (framesTotal, framesDropped, bytesWritten uint64)

// FramesTotal implements StatsProvider.
func (f StatsFunc) FramesTotal() uint64 { total, _, _ := f(); return total }

// FramesDropped implements StatsProvider.
func (f StatsFunc) FramesDropped() uint64 { _, dropped, _ := f(); return dropped }

// BytesWritten implements StatsProvider.
func (f StatsFunc) BytesWritten() uint64 { _, _, written := f(); return written }

// Rotator closes the current container and begins a new one, returning the
// path of the container it just finalized.
type Rotator interface {
	Rotate(ctx context.Context) (string, error)
}

// RotatorFunc adapts a function into a Rotator.
type RotatorFunc func(ctx context.Context) (string, error)

// Rotate implements Rotator.
func (f RotatorFunc) Rotate(ctx context.Context) (string, error) { return f(ctx) }

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Stats       StatsProvider
	Rotator     Rotator
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
	StartedAt   time.Time
}

// HandlerSet bundles ghostline's operator handlers.
type HandlerSet struct {
	logger      *logging.Logger
	stats       StatsProvider
	rotator     Rotator
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
	startedAt   time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = now()
	}
	return &HandlerSet{
		logger:      logger,
		stats:       opts.Stats,
		rotator:     opts.Rotator,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
		startedAt:   startedAt,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/healthz", h.HealthHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/admin/rotate", h.RotateHandler())
}

// HealthHandler reports that the ops surface is reachable.
func (h *HandlerSet) HealthHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "ok",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// MetricsHandler emits Prometheus-compatible text metrics for the recording proxy.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		uptime := h.now().Sub(h.startedAt).Seconds()
		fmt.Fprintf(w, "# HELP ghostline_uptime_seconds Process uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE ghostline_uptime_seconds gauge\n")
		fmt.Fprintf(w, "ghostline_uptime_seconds %.0f\n", uptime)

		if h.stats == nil {
			return
		}
		fmt.Fprintf(w, "# HELP ghostline_frames_total Frames successfully appended to containers since startup.\n")
		fmt.Fprintf(w, "# TYPE ghostline_frames_total counter\n")
		fmt.Fprintf(w, "ghostline_frames_total %d\n", h.stats.FramesTotal())

		fmt.Fprintf(w, "# HELP ghostline_frames_dropped_total Frames that failed to append and were dropped.\n")
		fmt.Fprintf(w, "# TYPE ghostline_frames_dropped_total counter\n")
		fmt.Fprintf(w, "ghostline_frames_dropped_total %d\n", h.stats.FramesDropped())

		fmt.Fprintf(w, "# HELP ghostline_bytes_written_total Total request+response bytes captured.\n")
		fmt.Fprintf(w, "# TYPE ghostline_bytes_written_total counter\n")
		fmt.Fprintf(w, "ghostline_bytes_written_total %d\n", h.stats.BytesWritten())
	}
}

// RotateHandler authorises and triggers container rotation.
func (h *HandlerSet) RotateHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "admin_rotate"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("rotate denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("rotate denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("rotate denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.rotator == nil {
			reqLogger.Warn("rotate denied: no rotator configured")
			http.Error(w, "rotation is unavailable", http.StatusServiceUnavailable)
			return
		}
		location, err := h.rotator.Rotate(r.Context())
		if err != nil {
			reqLogger.Error("rotate trigger failed", logging.Error(err))
			http.Error(w, "failed to rotate container", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("container rotated", logging.String("location", location))
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Location: location})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
