// Package replayer implements ghostline's replay proxy: it preloads every
// frame from a container into a hash-keyed cache and serves cached
// responses back to a client that believes it is talking to the original
// upstream.
package replayer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/JOBOYA/ghostline/internal/container"
	"github.com/JOBOYA/ghostline/internal/frame"
	"github.com/JOBOYA/ghostline/internal/logging"
)

// statusResponse is served from GET /status.
type statusResponse struct {
	OK            bool   `json:"ok"`
	CachedFrames  int    `json:"cached_frames"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
}

// missResponse is served whenever a request hash has no cached frame.
type missResponse struct {
	Error       string `json:"error"`
	RequestHash string `json:"request_hash"`
}

// Cache is an in-memory, hash-keyed lookup table of every frame in a container.
type Cache struct {
	mu     sync.Mutex
	frames map[[32]byte]frame.Frame
	hits   uint64
	misses uint64
}

// LoadCache reads every frame from the container at path into memory. When
// the container contains duplicate request hashes, the earliest frame (by
// index) wins and later duplicates are ignored — this must be enforced
// explicitly since map insertion order does not by itself mean "first wins".
func LoadCache(path string) (*Cache, error) {
	reader, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	count := reader.FrameCount()
	frames := make(map[[32]byte]frame.Frame, count)
	for i := 0; i < count; i++ {
		f, err := reader.GetFrame(i)
		if err != nil {
			return nil, err
		}
		if _, exists := frames[f.RequestHash]; !exists {
			frames[f.RequestHash] = f
		}
	}
	return &Cache{frames: frames}, nil
}

func (c *Cache) lookup(hash [32]byte) (frame.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.frames[hash]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return f, ok
}

func (c *Cache) snapshot() statusResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return statusResponse{OK: true, CachedFrames: len(c.frames), Hits: c.hits, Misses: c.misses}
}

// Server serves cached responses for replayed requests.
type Server struct {
	cache *Cache
	log   *logging.Logger
}

// NewServer constructs a replay Server around an already-loaded cache.
func NewServer(cache *Cache, log *logging.Logger) *Server {
	if log == nil {
		log = logging.L()
	}
	return &Server{cache: cache, log: log}
}

// ServeHTTP implements the replay surface: GET /status for cache stats,
// everything else is hashed and looked up against the preloaded cache.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/status" {
		writeJSON(w, http.StatusOK, s.cache.snapshot())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hash := frame.HashRequest(body)

	f, ok := s.cache.lookup(hash)
	if !ok {
		s.log.Info("replay miss", logging.String("method", r.Method), logging.String("path", r.URL.Path))
		w.Header().Set("content-type", "application/json")
		w.Header().Set("x-ghostline-replay", "miss")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(missResponse{
			Error:       "no cached response for this request",
			RequestHash: hex.EncodeToString(hash[:]),
		})
		return
	}

	s.log.Info("replay hit",
		logging.String("method", r.Method),
		logging.String("path", r.URL.Path),
		logging.Uint64("latency_ms", f.LatencyMS),
	)
	w.Header().Set("content-type", "application/json")
	w.Header().Set("x-ghostline-replay", "true")
	w.Header().Set("x-ghostline-latency-ms", fmt.Sprintf("%d", f.LatencyMS))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.ResponseBytes)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Run binds addr on loopback and serves s until ctx is cancelled.
func Run(ctx context.Context, addr string, s *Server, log *logging.Logger) error {
	if log == nil {
		log = logging.L()
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host != "127.0.0.1" && host != "localhost" && host != "::1" {
		return fmt.Errorf("replayer: refusing to bind non-loopback address %q", addr)
	}

	server := &http.Server{Addr: addr, Handler: s}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("replay proxy shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
