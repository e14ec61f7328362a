package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/specialistvlad/bootreplay/internal/session"
)

// healthHandler reports OK with the active artifact fingerprint, or 503
// while nothing has booted.
func (a *App) healthHandler(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
		art := sess.Active()
		if art == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "NO ARTIFACT")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK %s\n", art.Fingerprint())
	}
}

// startHealthcheck runs the health check server when a port is configured
// and returns a function that shuts it down.
func (a *App) startHealthcheck(ctx context.Context, sess *session.Session) func() {
	if a.config.HealthcheckPort <= 0 {
		a.logger.Debug("Health check server not started: disabled")
		return func() {}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler(sess))
	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Health check server shutdown failed", "error", err)
		}
	}
}
