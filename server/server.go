// Package server exposes the management HTTP API: health, metrics, and
// list/mutate endpoints over the same records the chat surface drives.
// Mutations go through the same save/render paths as the chat commands so
// bound messages stay consistent regardless of which surface changed the
// record. Includes permissive CORS for development and injects correlation
// IDs into request contexts for consistent logging.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/guildkeeper/telemetry"
)

// NewMux returns the HTTP handler with all routes.
func NewMux(h *Handlers) http.Handler {
	authCfg := loadAuthConfig()
	corsCfg := loadCORSConfig()

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/readyz", h.HandleReadyz)

	mux.HandleFunc("/streams", h.HandleStreams)
	mux.HandleFunc("/streams/", h.HandleStreamByKey)
	mux.HandleFunc("/streams/preview", h.HandleStreamPreview)

	mux.HandleFunc("/checkins", h.HandleCheckIns)
	mux.HandleFunc("/checkins/", h.HandleCheckInByChannel)

	mux.HandleFunc("/tickets", h.HandleTickets)
	mux.HandleFunc("/tickets/", h.HandleTicketByChannel)
	mux.HandleFunc("/ticket-menus", h.HandleTicketMenus)
	mux.HandleFunc("/ticket-menus/", h.HandleTicketMenuByID)

	mux.HandleFunc("/papers", h.HandlePapers)
	mux.HandleFunc("/papers/prune", h.HandlePapersPrune)
	mux.HandleFunc("/papers/", h.HandlePaperByKey)

	mux.HandleFunc("/permissions", h.HandlePermissions)
	mux.HandleFunc("/permissions/", h.HandlePermissionByUser)

	// Mutations require the admin token when one is configured.
	protected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.URL.Path != "/healthz" && r.URL.Path != "/readyz" {
			adminAuth(mux, authCfg).ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	// Correlation ID and tracing wrapper.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path)
		defer span.End()

		telemetry.LogWith(ctx, slog.Default()).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		protected.ServeHTTP(rec, r.WithContext(ctx))

		if rec.statusCode >= 500 {
			telemetry.SpanError(span, &httpStatusError{rec.statusCode})
		} else {
			telemetry.SpanOK(span)
		}
	})
	return withCORSConfig(handler, corsCfg)
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return "HTTP " + strings.TrimSpace(http.StatusText(e.code)) }

// statusRecorder wraps ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context
// cancellation.
func Start(ctx context.Context, h *Handlers, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(h),
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

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
