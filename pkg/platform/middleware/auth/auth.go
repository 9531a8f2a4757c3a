// Package auth extracts the calling actor from a bearer token issued by the
// hosted auth backend. This core does not mint tokens; it only needs a
// trustworthy actor and organization identity for audit records and
// rate-limit keys.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"tally/pkg/platform/middleware/metadata"
)

// Claims are the token claims this core relies on.
type Claims struct {
	UserID string
	OrgID  string
}

type contextKeyUserID struct{}
type contextKeyOrgID struct{}

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(contextKeyUserID{}).(string)
	if !ok {
		return ""
	}
	return userID
}

// GetOrgID retrieves the authenticated organization ID from the context.
func GetOrgID(ctx context.Context) string {
	orgID, ok := ctx.Value(contextKeyOrgID{}).(string)
	if !ok {
		return ""
	}
	return orgID
}

// WithActor injects actor identity into a context. For tests.
func WithActor(ctx context.Context, userID, orgID string) context.Context {
	ctx = context.WithValue(ctx, contextKeyUserID{}, userID)
	return context.WithValue(ctx, contextKeyOrgID{}, orgID)
}

// Validator validates bearer tokens and returns the actor claims.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ValidateToken parses and verifies an HS256 token, returning actor claims.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	orgID, _ := claims["org"].(string)

	return &Claims{UserID: sub, OrgID: orgID}, nil
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, errCode, errDesc))
}

// RequireAuth rejects requests without a valid bearer token and stores actor
// identity in the request context.
func RequireAuth(validator *Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", metadata.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyUserID{}, claims.UserID)
			ctx = context.WithValue(ctx, contextKeyOrgID{}, claims.OrgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
