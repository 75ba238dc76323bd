package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kuitang/notelytic/internal/obs"
)

// DefaultRetryAfterSeconds is the Retry-After value sent with 429 responses.
const DefaultRetryAfterSeconds = 1

// Middleware enforces the class budget for the user returned by getUserID.
// Requests without a user id pass through; the route guard rejects them.
//
// Rejected requests get 429 with Retry-After and X-RateLimit-Remaining: 0.
// Allowed requests carry the approximate remaining tokens.
func Middleware(limiter *RateLimiter, class Class, getUserID func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := getUserID(r)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			l := limiter.GetLimiter(userID, class)
			if !l.Allow() {
				obs.From(r.Context()).Warn("rate_limited", "class", class.String(), "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "too many requests",
					"code":  "resource_exhausted",
				})
				return
			}

			remaining := int(l.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}
