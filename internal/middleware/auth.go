package middleware

import (
	"crypto/subtle"
	"net/http"

	"market-escrow-api/internal/service"
	"market-escrow-api/pkg/apierror"
)

// AdminAuthConfig holds configuration for the admin auth middleware.
type AdminAuthConfig struct {
	// LoginKey is the static admin key; always accepted via X-Login-Key.
	LoginKey string
	// TokenService validates X-Token session tokens. May be nil when
	// Redis is not configured; the middleware then accepts only the key.
	TokenService *service.TokenService
}

// NewAdminAuth creates the admin route guard. Requests pass with a valid
// X-Login-Key header or a live X-Token session.
func NewAdminAuth(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.LoginKey != "" {
				key := r.Header.Get("X-Login-Key")
				if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(cfg.LoginKey)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			token := r.Header.Get("X-Token")
			if token != "" && cfg.TokenService != nil {
				if err := cfg.TokenService.ValidateToken(r.Context(), token); err == nil {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, apierror.Unauthorized("admin credentials required"))
		})
	}
}

func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}
