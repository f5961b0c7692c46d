// Package server exposes the operational HTTP surface: health, readiness,
// monitor status, the cached snapshot, metrics, and admin watch management.
// Every request carries a correlation ID for consistent logging.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/live-signal/telemetry"
)

// NewMux returns the HTTP handler with all routes. ctx bounds the admin rate
// limiter's cleanup goroutine.
func NewMux(ctx context.Context, h *Handlers, auth *AuthConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(correlationMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HandleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.HandleReadyz).Methods(http.MethodGet)
	r.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", h.HandleSnapshot).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	limiter := newIPRateLimiter(ctx, loadRateLimiterConfig())
	admin.Use(func(next http.Handler) http.Handler { return adminAuth(next, auth) })
	admin.Use(func(next http.Handler) http.Handler { return rateLimitMiddleware(next, limiter) })
	admin.HandleFunc("/watches", h.HandleListWatches).Methods(http.MethodGet)
	admin.HandleFunc("/watches", h.HandleAddWatch).Methods(http.MethodPost)
	admin.HandleFunc("/watches", h.HandleRemoveWatch).Methods(http.MethodDelete)
	admin.HandleFunc("/refresh", h.HandleRefresh).Methods(http.MethodPost)

	return r
}

// correlationMiddleware reuses or generates X-Correlation-ID and wraps the
// request in a trace span.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+route,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(route),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, handler http.Handler, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
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
