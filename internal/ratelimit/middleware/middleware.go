package middleware

import (
	"context"
	"net/http"
	"strconv"

	"tally/internal/audit"
	"tally/internal/ratelimit/models"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/httputil"
	"tally/pkg/platform/middleware/metadata"
)

type Limiter interface {
	Check(ctx context.Context, class models.Class, callerID string) models.Result
}

type AuditRecorder interface {
	Record(ctx context.Context, rec audit.Record)
}

// Limit enforces the class ceiling for every request passing through it.
// Callers are identified by client IP, which the metadata middleware must
// have resolved earlier in the chain.
func Limit(limiter Limiter, class models.Class, auditor AuditRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			callerID := metadata.GetClientIP(ctx)

			result := limiter.Check(ctx, class, callerID)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			if !result.ResetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
			}

			if !result.Allowed {
				retryAfter := int(result.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				if auditor != nil {
					auditor.Record(ctx, audit.Record{
						Action:       audit.ActionRateLimitExceeded,
						ResourceType: "rate_limit",
						ResourceID:   models.Key(class, callerID),
						RequestID:    metadata.GetRequestID(ctx),
					})
				}
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
