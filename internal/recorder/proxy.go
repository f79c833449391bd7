// Package recorder implements ghostline's recording proxy: a transparent
// reverse proxy, bound to loopback only, that forwards every request to an
// upstream target and appends a Frame of the exchange to a container file.
package recorder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JOBOYA/ghostline/internal/config"
	"github.com/JOBOYA/ghostline/internal/container"
	"github.com/JOBOYA/ghostline/internal/events"
	"github.com/JOBOYA/ghostline/internal/frame"
	"github.com/JOBOYA/ghostline/internal/logging"
	"github.com/google/uuid"
)

// ScrubFunc transforms captured request bytes before they are persisted to
// the container. It never affects the bytes actually forwarded upstream.
type ScrubFunc func([]byte) []byte

// hopByHopRequestHeaders are stripped from the outbound request, matching the
// original proxy's header filter.
var hopByHopRequestHeaders = map[string]struct{}{
	"host":              {},
	"connection":        {},
	"transfer-encoding": {},
}

// hopByHopResponseHeaders are stripped from the response written back to the caller.
var hopByHopResponseHeaders = map[string]struct{}{
	"transfer-encoding": {},
	"connection":        {},
}

// Stats captures the proxy's lifetime counters for the ops/metrics surface.
type Stats struct {
	FramesTotal   uint64
	FramesDropped uint64
	BytesWritten  uint64
}

// Proxy is an http.Handler that records every exchange it forwards.
type Proxy struct {
	target    string
	client    *http.Client
	log       *logging.Logger
	bus       *events.Bus
	scrub     ScrubFunc
	outputDir string

	writerMu      sync.Mutex
	writer        *container.Writer
	sidecar       *sidecar
	containerPath string

	framesTotal   atomic.Uint64
	framesDropped atomic.Uint64
	bytesWritten  atomic.Uint64
}

// Option configures optional Proxy behavior.
type Option func(*Proxy)

// WithScrub installs a hook applied to request bytes before they are persisted.
func WithScrub(fn ScrubFunc) Option {
	return func(p *Proxy) { p.scrub = fn }
}

// New creates a Proxy that forwards to cfg.Upstream and records into a new
// container file inside cfg.OutputDir. It returns the proxy and the path of
// the container file it just created.
func New(cfg *config.Config, log *logging.Logger, bus *events.Bus, opts ...Option) (*Proxy, string, error) {
	if log == nil {
		log = logging.L()
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, "", err
	}

	writer, sc, containerPath, err := createContainerFiles(cfg.OutputDir)
	if err != nil {
		return nil, "", err
	}

	p := &Proxy{
		target:        strings.TrimRight(cfg.Upstream, "/"),
		client:        &http.Client{},
		log:           log,
		bus:           bus,
		outputDir:     cfg.OutputDir,
		writer:        writer,
		sidecar:       sc,
		containerPath: containerPath,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, containerPath, nil
}

// createContainerFiles creates a fresh container and its companion sidecar
// inside dir, stamped with the current time, returning the writer, sidecar
// and the container's path.
func createContainerFiles(dir string) (*container.Writer, *sidecar, string, error) {
	now := time.Now().UTC()
	stem := fmt.Sprintf("%s-%s", now.Format("20060102-150405"), uuid.New().String())
	containerPath := filepath.Join(dir, stem+".ghostline")
	sidecarPath := filepath.Join(dir, stem+".events.jsonl.sz")

	writer, err := container.Create(containerPath, container.Header{StartedAt: uint64(now.UnixMilli())})
	if err != nil {
		return nil, nil, "", err
	}
	sc, err := newSidecar(sidecarPath)
	if err != nil {
		_ = writer.Finish()
		return nil, nil, "", err
	}
	return writer, sc, containerPath, nil
}

// ServeHTTP forwards req to the upstream target and records the exchange.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.RequestURI()
	requestBytes, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	outboundReq, err := http.NewRequestWithContext(r.Context(), r.Method, p.target+path, bytes.NewReader(requestBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for name, values := range r.Header {
		if _, skip := hopByHopRequestHeaders[strings.ToLower(name)]; skip {
			continue
		}
		for _, v := range values {
			outboundReq.Header.Add(name, v)
		}
	}

	start := time.Now()
	resp, err := p.client.Do(outboundReq)
	if err != nil {
		p.log.Warn("upstream request failed", logging.Error(err), logging.String("path", path))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	latencyMS := uint64(time.Since(start).Milliseconds())

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		p.log.Warn("reading upstream response failed", logging.Error(err), logging.String("path", path))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	capturedRequest := requestBytes
	if p.scrub != nil {
		capturedRequest = p.scrub(requestBytes)
	}
	nowMS := uint64(time.Now().UnixMilli())
	f := frame.New(capturedRequest, responseBytes, latencyMS, nowMS)

	index := p.framesTotal.Load()
	p.appendFrame(f)

	summary := events.FrameSummary{
		Index:        index,
		Timestamp:    int64(nowMS),
		RequestSize:  len(requestBytes),
		ResponseSize: len(responseBytes),
		LatencyMS:    latencyMS,
	}
	if p.sidecar != nil {
		if err := p.sidecar.Append(summary); err != nil {
			p.log.Warn("sidecar append failed", logging.Error(err))
		}
	}
	if p.bus != nil {
		p.bus.Publish(summary)
	}

	for name, values := range resp.Header {
		if _, skip := hopByHopResponseHeaders[strings.ToLower(name)]; skip {
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("x-ghostline-proxy", "true")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(responseBytes)
}

func (p *Proxy) appendFrame(f frame.Frame) {
	p.writerMu.Lock()
	defer p.writerMu.Unlock()
	if err := p.writer.Append(f); err != nil {
		p.framesDropped.Add(1)
		p.log.Warn("container append failed", logging.Error(err))
		return
	}
	p.framesTotal.Add(1)
	p.bytesWritten.Add(uint64(len(f.RequestBytes) + len(f.ResponseBytes)))
}

// Rotate finalizes the active container and sidecar and opens a fresh pair in
// their place, without restarting the process. It forces a container
// boundary the same way a process restart would, and returns the path of the
// container that was just finalized.
func (p *Proxy) Rotate(_ context.Context) (string, error) {
	p.writerMu.Lock()
	defer p.writerMu.Unlock()

	finishedPath := p.containerPath
	if err := p.writer.Finish(); err != nil {
		return "", fmt.Errorf("finalizing container: %w", err)
	}
	if p.sidecar != nil {
		if err := p.sidecar.Close(); err != nil {
			return "", fmt.Errorf("closing sidecar: %w", err)
		}
	}

	writer, sc, containerPath, err := createContainerFiles(p.outputDir)
	if err != nil {
		return "", fmt.Errorf("opening next container: %w", err)
	}
	p.writer = writer
	p.sidecar = sc
	p.containerPath = containerPath
	return finishedPath, nil
}

// Stats returns a snapshot of the proxy's lifetime counters.
func (p *Proxy) Stats() Stats {
	return Stats{
		FramesTotal:   p.framesTotal.Load(),
		FramesDropped: p.framesDropped.Load(),
		BytesWritten:  p.bytesWritten.Load(),
	}
}

// Shutdown finalizes the container and closes the sidecar. It must be called
// exactly once, after the HTTP server has stopped accepting new requests.
func (p *Proxy) Shutdown(_ context.Context) error {
	p.writerMu.Lock()
	defer p.writerMu.Unlock()
	writerErr := p.writer.Finish()
	var sidecarErr error
	if p.sidecar != nil {
		sidecarErr = p.sidecar.Close()
	}
	if writerErr != nil {
		return writerErr
	}
	return sidecarErr
}
