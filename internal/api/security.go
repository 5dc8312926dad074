package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// SecurityConfig configures SecurityMiddleware. Origins match exactly; an
// empty AllowedOrigins list means no cross-origin caller is admitted.
type SecurityConfig struct {
	AllowedOrigins []string
	APIKey         string          // optional; when set, X-API-Key is checked
	RequireKeyFor  map[string]bool // request path -> key required
}

// SecurityMiddleware sets the baseline response headers, answers CORS
// preflights for allowed origins, and enforces the optional API key on the
// paths configured to require it.
func SecurityMiddleware(cfg SecurityConfig, next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" {
			if _, ok := allowed[origin]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type,Accept,X-API-Key")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		if cfg.APIKey != "" && cfg.RequireKeyFor[r.URL.Path] {
			if !keyMatches(r.Header.Get("X-API-Key"), cfg.APIKey) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func keyMatches(got, want string) bool {
	if len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
