package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/taskgridgo/internal/api"
)

// shutdownTimeout bounds the graceful drain of an HTTP server.
const shutdownTimeout = 5 * time.Second

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// serveHealthcheck runs the health and metrics server until ctx ends.
func (a *App) serveHealthcheck(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.healthHandler)
	mux.Handle("/metrics", a.metrics.Handler())

	addr := fmt.Sprintf(":%d", a.cfg.HealthcheckPort)
	a.logger.Info("🩺 Health check server starting.", "address", fmt.Sprintf("http://localhost%s/healthz", addr))
	return a.serve(ctx, "healthcheck", &http.Server{Addr: addr, Handler: mux})
}

// serveAPI runs the run API server until ctx ends.
func (a *App) serveAPI(ctx context.Context) error {
	server := api.New(a.logger, a.store, a.bus, a.submit)

	addr := fmt.Sprintf(":%d", a.cfg.APIPort)
	a.logger.Info("🌐 API server starting.", "address", fmt.Sprintf("http://localhost%s/v1/runs", addr))
	return a.serve(ctx, "api", &http.Server{Addr: addr, Handler: server.Router()})
}

// serve runs srv until it fails or ctx ends, then drains it gracefully.
func (a *App) serve(ctx context.Context, name string, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server failed: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Debug("Shutting down server.", "server", name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s server shutdown failed: %w", name, err)
	}
	a.logger.Debug("Server shut down gracefully.", "server", name)
	return nil
}
