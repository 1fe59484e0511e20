package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig lists the browser origins allowed to call the farm API. An
// empty origin list allows any origin.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAgeSecs       int
}

var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	corsHeaders = []string{"Content-Type", "Authorization", "X-API-Key", HeaderRequestID}
)

func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	headers := strings.Join(append(append([]string{}, corsHeaders...), cfg.AllowedHeaders...), ", ")
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	wildcard := len(cfg.AllowedOrigins) == 0
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		if origin == "*" {
			wildcard = true
		}
		origins[origin] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			if origin != "" {
				_, listed := origins[strings.ToLower(origin)]
				switch {
				case listed:
					h.Set("Access-Control-Allow-Origin", origin)
				case wildcard && !cfg.AllowCredentials:
					h.Set("Access-Control-Allow-Origin", "*")
				case wildcard:
					h.Set("Access-Control-Allow-Origin", origin)
				}
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				h.Set("Access-Control-Expose-Headers", HeaderRequestID)
			}
			if r.Method != http.MethodOptions || origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", headers)
			if cfg.MaxAgeSecs > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAgeSecs))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
