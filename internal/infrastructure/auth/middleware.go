package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Middleware is the per-request capability gate for protected routes. It
// accepts only a currently valid, non-expired access token and passes no
// claim data to downstream handlers.
func Middleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.Fields(authHeader)
			if len(parts) != 2 {
				writeUnauthorized(w, "Unauthorized: missing or invalid authorization token.")
				return
			}

			claims, err := tokens.VerifyAccess(parts[1])
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					writeUnauthorized(w, "Access token signature has expired. Please regenerate a new signature for the access token.")
					return
				}
				slog.Warn("access token validation failed", "error", err)
				writeUnauthorized(w, "Access token validation failed.")
				return
			}

			// Re-checked manually on top of the library's own expiry
			// validation; the two may tolerate clock skew differently.
			if !time.Now().Before(claims.ExpiresAt.Time) {
				writeUnauthorized(w, "Sorry, the access token expired. Please obtain a new access token using the refresh token.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"code":    http.StatusUnauthorized,
			"message": message,
		},
	})
}
