// Package http assembles the public HTTP surface: middleware chain, domain
// handler mounts, and the small read-only endpoints that do not warrant a
// handler package of their own.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tally/internal/audit"
	ledgerhandler "tally/internal/ledger/handler"
	"tally/internal/platform/metrics"
	processorhandler "tally/internal/processor/handler"
	ratelimitmw "tally/internal/ratelimit/middleware"
	"tally/internal/ratelimit/models"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/httputil"
	"tally/pkg/platform/middleware/auth"
	"tally/pkg/platform/middleware/metadata"
)

type Deps struct {
	Ledger    ledgerhandler.Service
	Gate      processorhandler.Gate
	Audit     audit.Store
	Limiter   ratelimitmw.Limiter
	Auditor   ratelimitmw.AuditRecorder
	Validator *auth.Validator
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// NewRouter wires the full middleware chain. Authenticated business routes
// sit behind JWT auth and the api limiter class; the webhook endpoint is
// HMAC-authenticated instead and gets the tighter auth class, since it is
// the only surface open to unauthenticated callers.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(metadata.RequestMetadata)
	r.Use(instrument(d.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(ratelimitmw.Limit(d.Limiter, models.ClassAuth, d.Auditor))
		processorhandler.New(d.Gate, d.Logger).Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(ratelimitmw.Limit(d.Limiter, models.ClassAPI, d.Auditor))
		r.Use(auth.RequireAuth(d.Validator, d.Logger))

		ledgerhandler.New(d.Ledger, d.Logger).Register(r)
		r.Get("/audit/records", handleAuditQuery(d.Audit))
	})

	return r
}

func handleAuditQuery(store audit.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := audit.Query{
			ResourceID: r.URL.Query().Get("resource_id"),
			OrgID:      r.URL.Query().Get("org_id"),
			Limit:      100,
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 || limit > 1000 {
				httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be between 1 and 1000"))
				return
			}
			q.Limit = limit
		}
		for _, bound := range []struct {
			param string
			dst   *time.Time
		}{
			{"from", &q.From},
			{"to", &q.To},
		} {
			if raw := r.URL.Query().Get(bound.param); raw != "" {
				t, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					httputil.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "%s must be RFC 3339", bound.param))
					return
				}
				*bound.dst = t
			}
		}

		records, err := store.Query(r.Context(), q)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit records"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
	}
}

func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
			m.HTTPDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
		})
	}
}
