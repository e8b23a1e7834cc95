package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/dormship-backend/api/responses"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
)

// WindowCounter counts hits in fixed windows.
type WindowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy caps mutating requests per caller within Window.
type RateLimitPolicy struct {
	Name   string
	Window time.Duration
	Limit  int
}

// RateLimit throttles POST, PUT, PATCH and DELETE per authenticated user, or
// per remote address before Auth has run. Reads are not counted. When the
// counter is unreachable requests pass.
func RateLimit(policy RateLimitPolicy, counter WindowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if counter == nil || policy.Window <= 0 || policy.Limit <= 0 {
			return next
		}
		limit := strconv.Itoa(policy.Limit)
		retryAfter := strconv.Itoa(int(policy.Window.Round(time.Second).Seconds()))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			allowed, used, err := counter.FixedWindowAllow(ctx, policy.Name+":"+callerKey(r), int64(policy.Limit), policy.Window)
			if err != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "rate_limit.counter_unavailable")
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(policy.Limit) - used
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				logg.Warn(logg.WithFields(ctx, map[string]any{"policy": policy.Name, "used": used}), "rate_limit.blocked")
				responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeRateLimit, "at most %d changes per %s", policy.Limit, policy.Window))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerKey prefers the authenticated user. RemoteAddr has already been
// rewritten by chi's RealIP when the router runs behind a proxy.
func callerKey(r *http.Request) string {
	if id, ok := IdentityFrom(r.Context()); ok {
		return "user:" + id.UserID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
