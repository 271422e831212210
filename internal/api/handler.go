// Package api is the HTTP surface of the service: dataset management,
// natural-language querying, and raw SQL querying, plus health, readiness
// and metrics endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benturneroffice365-web/jetdb/internal/auth"
	"github.com/benturneroffice365-web/jetdb/internal/catalog"
	"github.com/benturneroffice365-web/jetdb/internal/config"
	"github.com/benturneroffice365-web/jetdb/internal/nlq"
	"github.com/benturneroffice365-web/jetdb/internal/observability"
	"github.com/benturneroffice365-web/jetdb/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

// QuestionGateway answers one natural-language question against a dataset.
type QuestionGateway interface {
	Answer(ctx context.Context, locator, question string) (nlq.Answer, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Catalog           catalog.Repository
	ObjectStore       storage.ObjectStore
	Gateway           QuestionGateway
	Executor          nlq.Executor
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
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
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"POST /v1/datasets", func(w http.ResponseWriter, r *http.Request) {
			handleUploadDataset(cfg, deps, w, r)
		}},
		{"GET /v1/datasets", func(w http.ResponseWriter, r *http.Request) {
			handleListDatasets(deps, w, r)
		}},
		{"GET /v1/datasets/{dataset}", func(w http.ResponseWriter, r *http.Request) {
			handleGetDataset(deps, w, r)
		}},
		{"DELETE /v1/datasets/{dataset}", func(w http.ResponseWriter, r *http.Request) {
			handleDeleteDataset(deps, w, r)
		}},
		{"GET /v1/datasets/{dataset}/data", func(w http.ResponseWriter, r *http.Request) {
			handleDatasetPreview(deps, w, r)
		}},
		{"POST /v1/query/natural", func(w http.ResponseWriter, r *http.Request) {
			handleNaturalQuery(cfg, deps, w, r)
		}},
		{"POST /v1/query/sql", func(w http.ResponseWriter, r *http.Request) {
			handleSQLQuery(deps, w, r)
		}},
	}

	protected := http.NewServeMux()
	for _, route := range routes {
		protected.HandleFunc(route.pattern, route.handler)
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, route := range routes {
		mux.Handle(route.pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckCatalog(repo catalog.Repository) ReadinessCheck {
	return func(ctx context.Context) error {
		if repo == nil {
			return errors.New("catalog is not configured")
		}
		return repo.HealthCheck(ctx)
	}
}

// CheckObjectStore probes the object store with a Stat on a marker key. The
// marker does not have to exist; only a transport or service failure marks
// the store unavailable.
func CheckObjectStore(store storage.ObjectStore) ReadinessCheck {
	const markerKey = ".jetdb-ready"
	return func(ctx context.Context) error {
		if store == nil {
			return errors.New("object store is not configured")
		}
		if _, err := store.Stat(ctx, markerKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("object store unavailable: %w", err)
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
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

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// userFromRequest resolves the dataset owner for the call: the authenticated
// identity when present, otherwise the X-User-ID header for deployments
// running without auth.
func userFromRequest(r *http.Request) (string, error) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if strings.TrimSpace(identity.UserID) != "" {
			return identity.UserID, nil
		}
	}
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		return "", fmt.Errorf("user context is required")
	}
	return userID, nil
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
