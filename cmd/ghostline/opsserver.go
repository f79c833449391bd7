package main

import (
	"context"
	"net/http"
	"time"

	"github.com/JOBOYA/ghostline/internal/logging"
	"github.com/JOBOYA/ghostline/internal/opsapi"
)

func newOpsMux(handlers *opsapi.HandlerSet) *http.ServeMux {
	mux := http.NewServeMux()
	handlers.Register(mux)
	return mux
}

// runOpsServer serves the ops/admin HTTP surface until ctx is cancelled. It
// logs rather than returns errors since it runs alongside the primary
// recording or replay server and must not take the process down with it.
func runOpsServer(ctx context.Context, addr string, mux *http.ServeMux, log *logging.Logger) {
	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Warn("ops server stopped unexpectedly", logging.Error(err))
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("ops server shutdown failed", logging.Error(err))
		}
	}
}
