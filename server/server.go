// Package server exposes the operational HTTP surface: liveness, a status
// summary, and Prometheus metrics. Requests get correlation IDs injected
// for consistent logging.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mahdighaemi123/GoftarGPT/storage"
	"github.com/mahdighaemi123/GoftarGPT/telemetry"
)

type Handlers struct {
	store     *storage.Store
	vips      *storage.VIPSet
	startedAt time.Time
}

// NewMux returns the HTTP handler with all routes.
func NewMux(store *storage.Store, vips *storage.VIPSet) http.Handler {
	h := &Handlers{store: store, vips: vips, startedAt: time.Now()}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/status", h.HandleStatus)
	return withCorrelation(mux)
}

// HandleHealthz responds to liveness probes by checking that the state
// directory is still usable.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleStatus returns a lightweight status summary: cursor position, VIP
// membership size, and uptime.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	offset, _ := h.store.LoadOffset()
	resp := map[string]any{
		"offset":         offset,
		"vip_users":      h.vips.Len(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"poll":           telemetry.SnapshotPollStats(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("failed to encode status response", slog.Any("err", err))
	}
}

// withCorrelation injects a request-scoped correlation id, honoring one
// supplied by the caller.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.NewString()
		}
		w.Header().Set("X-Correlation-ID", corr)
		next.ServeHTTP(w, r.WithContext(telemetry.WithCorrelation(r.Context(), corr)))
	})
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, store *storage.Store, vips *storage.VIPSet, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(store, vips),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
