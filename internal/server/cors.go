package server

import (
	"net/http"
	"strings"
)

// CORSConfig lists the origins allowed to call the API with credentials.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

func normalizeOrigins(origins []string) map[string]struct{} {
	normalized := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSuffix(strings.TrimSpace(origin), "/")
		if trimmed == "" {
			continue
		}
		normalized[strings.ToLower(trimmed)] = struct{}{}
	}
	return normalized
}

func corsMiddleware(cfg CORSConfig, next http.Handler) http.Handler {
	allowed := normalizeOrigins(cfg.AllowedOrigins)
	if len(allowed) == 0 {
		return next
	}
	_, allowAny := allowed["*"]

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSuffix(strings.TrimSpace(r.Header.Get("Origin")), "/")
		if origin != "" {
			_, ok := allowed[strings.ToLower(origin)]
			if ok || allowAny {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if r.Method == http.MethodOptions {
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
					w.Header().Set("Access-Control-Max-Age", "600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
