// Package server assembles the HTTP stack: middleware chain, rate limiting,
// and the listener lifecycle.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"clipstream/internal/observability/logging"
)

// Config describes the assembled HTTP server.
type Config struct {
	Addr      string
	Handler   http.Handler
	Logger    *slog.Logger
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	// TrustForwardedHeaders enables client IP extraction from
	// X-Forwarded-For for rate limiting keys.
	TrustForwardedHeaders bool

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server wraps http.Server with the configured middleware chain.
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New builds the middleware chain around the provided handler.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := newRateLimiter(cfg.RateLimit)

	handler := cfg.Handler
	handler = rateLimitMiddleware(limiter, cfg.TrustForwardedHeaders, logger, handler)
	handler = corsMiddleware(cfg.CORS, handler)
	handler = securityHeadersMiddleware(cfg.Security, handler)
	handler = logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger})(handler)
	handler = requestIDMiddleware(handler)

	readHeaderTimeout := cfg.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

// ListenAndServe starts serving until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS starts serving over TLS.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	s.logger.Info("https server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServeTLS(certFile, keyFile)
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

func rateLimitMiddleware(limiter *rateLimiter, trustForwarded bool, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.AllowRequest() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		if r.Method == http.MethodPost && r.URL.Path == "/api/v1/users/login" {
			allowed, retryAfter, err := limiter.AllowLogin(clientIP(r, trustForwarded))
			if err != nil {
				logger.Warn("login throttle check failed", "error", err)
			} else if !allowed {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", retryAfter.Round(time.Second).String())
				}
				http.Error(w, "too many login attempts", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
