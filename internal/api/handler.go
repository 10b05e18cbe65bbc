package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabletalk/tabletalk/internal/assistant"
	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/query"
)

const (
	welcomeMessage  = "Welcome to our Website"
	notFoundMessage = "Route not found"
	maxBodyBytes    = 8 << 20
)

type ReadinessCheck func(ctx context.Context) error

// Assistant is the pipeline behind the question and table routes.
type Assistant interface {
	Ask(ctx context.Context, tableName, question string) (string, error)
	Show(ctx context.Context, tableName, question string) (query.Result, error)
	Plot(ctx context.Context, tableName, question string) (assistant.PlotResult, error)
	Provision(ctx context.Context, raw string) (catalog.TableDef, error)
	Drop(ctx context.Context, tableName string) error
	Restore(ctx context.Context, tableName string) (catalog.TableDef, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthValidator     auth.APIKeyValidator
	DependencyTimeout time.Duration
	Assistant         Assistant
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{assistant: deps.Assistant, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeEnvelope(r.Context(), w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(r.Context(), w, http.StatusOK, welcomeMessage)
	})

	reader := guarded(cfg, deps, logger, auth.RoleReader, auth.RoleAdmin)
	admin := guarded(cfg, deps, logger, auth.RoleAdmin)
	mux.Handle("POST /dbQuery", reader(http.HandlerFunc(h.handleAsk)))
	mux.Handle("POST /dbQuery/show", reader(http.HandlerFunc(h.handleShow)))
	mux.Handle("POST /dbQuery/plot", reader(http.HandlerFunc(h.handlePlot)))
	mux.Handle("POST /metaData", admin(http.HandlerFunc(h.handleProvision)))
	mux.Handle("POST /metaData/drop", admin(http.HandlerFunc(h.handleDrop)))
	mux.Handle("POST /metaData/restore", admin(http.HandlerFunc(h.handleRestore)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(r.Context(), w, http.StatusNotFound, notFoundMessage)
	})

	return chain(mux,
		observability.TraceMiddleware,
		observability.RequestMiddleware(logger),
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-API-Key", "X-Trace-ID"},
			ExposedHeaders: []string{"X-Trace-ID"},
			MaxAge:         300,
		}),
	)
}

// guarded wraps a route with authentication and a role check when the
// configuration requires it.
func guarded(cfg config.Config, deps Dependencies, logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	if !cfg.Auth.Required {
		return func(next http.Handler) http.Handler { return next }
	}
	if deps.AuthValidator == nil {
		logger.Error("auth required but no API key validator configured")
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(r.Context(), w, http.StatusInternalServerError, "authentication is required by configuration but not set up")
			})
		}
	}
	authenticate := auth.Middleware(logger, deps.AuthValidator, denyEnvelope)
	authorize := auth.RequireAnyRole(denyEnvelope, roles...)
	return func(next http.Handler) http.Handler {
		return chain(next, authenticate, authorize)
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// Envelope is the confirmation and error body.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	HTTPStatus string `json:"httpStatus"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	TraceID    string `json:"traceId,omitempty"`
}

func newEnvelope(ctx context.Context, status int, message string) Envelope {
	return Envelope{
		StatusCode: status,
		HTTPStatus: statusName(status),
		Message:    message,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		TraceID:    observability.TraceIDFromContext(ctx),
	}
}

// statusName renders a status as BAD_REQUEST, GATEWAY_TIMEOUT and so on.
func statusName(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeEnvelope(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, newEnvelope(ctx, status, message))
}

func denyEnvelope(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeEnvelope(r.Context(), w, status, message)
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
