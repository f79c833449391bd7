package recorder

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/JOBOYA/ghostline/internal/logging"
)

const shutdownGrace = 10 * time.Second

// Run binds addr on loopback and serves p until ctx is cancelled, then
// gracefully drains in-flight requests and finalizes the container.
func Run(ctx context.Context, addr string, p *Proxy, log *logging.Logger) error {
	if log == nil {
		log = logging.L()
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host != "127.0.0.1" && host != "localhost" && host != "::1" {
		return fmt.Errorf("recorder: refusing to bind non-loopback address %q", addr)
	}

	server := &http.Server{Addr: addr, Handler: p}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		log.Info("recording proxy shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	stats := p.Stats()
	log.Info("recording proxy stopped",
		logging.Uint64("frames_total", stats.FramesTotal),
		logging.Uint64("frames_dropped", stats.FramesDropped),
		logging.Uint64("bytes_written", stats.BytesWritten),
	)
	return p.Shutdown(context.Background())
}
