package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"authz-service/internal/ratelimit"
	"authz-service/internal/service"
	"authz-service/internal/token"
)

type contextKey string

const claimsContextKey contextKey = "access_claims"

// ClaimsFromContext returns the verified access claims attached by the
// Authenticate middleware.
func ClaimsFromContext(ctx context.Context) (*token.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.AccessClaims)
	return claims, ok
}

// Authenticate verifies the Bearer token and attaches its claims to the
// request context. Expired tokens get a distinct error code so clients know
// to run the refresh flow instead of re-authenticating.
func Authenticate(authService *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || bearer == "" {
				writeUnauthorized(w, "MISSING_TOKEN", "Authorization bearer token is required")
				return
			}

			claims, err := authService.VerifyAccess(bearer)
			if err != nil {
				code := "INVALID_TOKEN"
				if errors.Is(err, token.ErrTokenExpired) {
					code = "TOKEN_EXPIRED"
				}
				writeUnauthorized(w, code, "Access token verification failed")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit counts the request against the caller's quota tiers and rejects
// with the standardized denial payload once a tier is exhausted. The
// identity is the verified user ID when Authenticate ran earlier in the
// chain, the remote address otherwise.
func RateLimit(authService *service.AuthService, logger *zap.Logger, windows ...ratelimit.Window) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := r.RemoteAddr
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				identity = claims.UserID
			}

			result, err := authService.CheckRateLimit(r.Context(), identity, windows...)
			if err != nil {
				// Fail-open was already applied inside the evaluator; an
				// error here means the policy is fail-closed.
				logger.Error("rate limit check failed",
					zap.String("identity", identity),
					zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(Response{
					Success: false,
					Error:   "rate limit store unavailable",
					Message: "Request rejected while the quota store is unreachable",
				})
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

			if !result.Allowed {
				retryAfter := ratelimit.RetryAfterSeconds(result.ResetAt, time.Now())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(ratelimit.BuildDenial(
					retryAfter, result.Limit, result.Remaining,
					ratelimit.DenialOptions{
						Window:    result.Window,
						ResetAt:   result.ResetAt,
						Operation: r.Method + " " + r.URL.Path,
					},
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   code,
		Message: message,
	})
}
