// Command server starts the Clipstream API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"clipstream/internal/api"
	"clipstream/internal/auth"
	"clipstream/internal/media"
	"clipstream/internal/observability/logging"
	"clipstream/internal/server"
	"clipstream/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")

	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")

	accessSecret := flag.String("access-token-secret", "", "access token signing secret")
	refreshSecret := flag.String("refresh-token-secret", "", "refresh token signing secret")
	accessExpiry := flag.String("access-token-expiry", "", "access token lifetime (e.g. 15m, 1d)")
	refreshExpiry := flag.String("refresh-token-expiry", "", "refresh token lifetime (e.g. 10d)")

	corsOrigin := flag.String("cors-origin", "", "comma separated allowed CORS origins")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	trustForwarded := flag.Bool("rate-trust-forwarded-headers", false, "trust proxy-provided client IP headers")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisUsername := flag.String("rate-redis-username", "", "Redis username for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")

	mediaDriver := flag.String("media-driver", "", "media storage driver (s3 or fs)")
	mediaDir := flag.String("media-dir", "", "directory for filesystem media storage")
	objectEndpoint := flag.String("object-endpoint", "", "object storage endpoint (e.g. http://127.0.0.1:9000)")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket name")
	objectPublicURL := flag.String("object-public-url", "", "public base URL for stored media")

	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CLIPSTREAM_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CLIPSTREAM_LOG_FORMAT")),
	})

	serverMode := modeValue(*mode, os.Getenv("CLIPSTREAM_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("CLIPSTREAM_ADDR"))

	issuer, err := buildTokenIssuer(*accessSecret, *refreshSecret, *accessExpiry, *refreshExpiry)
	if err != nil {
		logger.Error("invalid token configuration", "error", err)
		os.Exit(1)
	}

	store, err := buildStore(storeSettings{
		driver:          firstNonEmpty(*storageDriver, os.Getenv("CLIPSTREAM_STORAGE_DRIVER")),
		dataPath:        firstNonEmpty(*dataPath, os.Getenv("CLIPSTREAM_DATA")),
		dsn:             firstNonEmpty(*postgresDSN, os.Getenv("CLIPSTREAM_POSTGRES_DSN")),
		maxConns:        resolveInt(*postgresMaxConns, os.Getenv("CLIPSTREAM_POSTGRES_MAX_CONNS")),
		minConns:        resolveInt(*postgresMinConns, os.Getenv("CLIPSTREAM_POSTGRES_MIN_CONNS")),
		maxConnLifetime: resolveDuration(*postgresMaxConnLifetime, os.Getenv("CLIPSTREAM_POSTGRES_MAX_CONN_LIFETIME")),
		maxConnIdle:     resolveDuration(*postgresMaxConnIdle, os.Getenv("CLIPSTREAM_POSTGRES_MAX_CONN_IDLE")),
		healthInterval:  resolveDuration(*postgresHealthInterval, os.Getenv("CLIPSTREAM_POSTGRES_HEALTH_INTERVAL")),
		appName:         firstNonEmpty(*postgresAppName, os.Getenv("CLIPSTREAM_POSTGRES_APP_NAME")),
	}, logger)
	if err != nil {
		logger.Error("failed to initialise storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	mediaStore, err := buildMediaStore(mediaSettings{
		driver:    firstNonEmpty(*mediaDriver, os.Getenv("CLIPSTREAM_MEDIA_DRIVER")),
		dir:       firstNonEmpty(*mediaDir, os.Getenv("CLIPSTREAM_MEDIA_DIR")),
		endpoint:  firstNonEmpty(*objectEndpoint, os.Getenv("CLIPSTREAM_OBJECT_ENDPOINT")),
		region:    firstNonEmpty(*objectRegion, os.Getenv("CLIPSTREAM_OBJECT_REGION")),
		accessKey: firstNonEmpty(*objectAccessKey, os.Getenv("CLIPSTREAM_OBJECT_ACCESS_KEY")),
		secretKey: firstNonEmpty(*objectSecretKey, os.Getenv("CLIPSTREAM_OBJECT_SECRET_KEY")),
		bucket:    firstNonEmpty(*objectBucket, os.Getenv("CLIPSTREAM_OBJECT_BUCKET")),
		publicURL: firstNonEmpty(*objectPublicURL, os.Getenv("CLIPSTREAM_OBJECT_PUBLIC_URL")),
	})
	if err != nil {
		logger.Error("failed to initialise media storage", "error", err)
		os.Exit(1)
	}

	sessions := auth.NewSessionManager(store, issuer,
		auth.WithSessionLogger(logging.WithComponent(logger, "sessions")))

	handler := api.NewHandler(store, sessions, mediaStore, logging.WithComponent(logger, "api"))
	if serverMode == "production" {
		handler.CookiePolicy = api.CookiePolicy{
			SameSite:   http.SameSiteStrictMode,
			SecureMode: api.CookieSecureAlways,
		}
	}

	srv := server.New(server.Config{
		Addr:    listenAddr,
		Handler: handler.Routes(),
		Logger:  logging.WithComponent(logger, "http"),
		CORS: server.CORSConfig{
			AllowedOrigins:   splitAndTrim(firstNonEmpty(*corsOrigin, os.Getenv("CLIPSTREAM_CORS_ORIGIN"))),
			AllowCredentials: true,
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, os.Getenv("CLIPSTREAM_RATE_GLOBAL_RPS")),
			GlobalBurst:   resolveInt(*globalBurst, os.Getenv("CLIPSTREAM_RATE_GLOBAL_BURST")),
			LoginLimit:    resolveInt(*loginLimit, os.Getenv("CLIPSTREAM_RATE_LOGIN_LIMIT")),
			LoginWindow:   resolveDuration(*loginWindow, os.Getenv("CLIPSTREAM_RATE_LOGIN_WINDOW")),
			RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("CLIPSTREAM_RATE_REDIS_ADDR")),
			RedisUsername: firstNonEmpty(*redisUsername, os.Getenv("CLIPSTREAM_RATE_REDIS_USERNAME")),
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("CLIPSTREAM_RATE_REDIS_PASSWORD")),
			RedisTimeout:  resolveDuration(*redisTimeout, os.Getenv("CLIPSTREAM_RATE_REDIS_TIMEOUT")),
		},
		TrustForwardedHeaders: resolveBool(*trustForwarded, os.Getenv("CLIPSTREAM_RATE_TRUST_FORWARDED_HEADERS")),
	})

	errs := make(chan error, 1)
	go func() {
		certPath := firstNonEmpty(*tlsCert, os.Getenv("CLIPSTREAM_TLS_CERT"))
		keyPath := firstNonEmpty(*tlsKey, os.Getenv("CLIPSTREAM_TLS_KEY"))
		if certPath != "" && keyPath != "" {
			errs <- srv.ListenAndServeTLS(certPath, keyPath)
			return
		}
		errs <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}
	}
}

type storeSettings struct {
	driver          string
	dataPath        string
	dsn             string
	maxConns        int
	minConns        int
	maxConnLifetime time.Duration
	maxConnIdle     time.Duration
	healthInterval  time.Duration
	appName         string
}

func buildStore(settings storeSettings, logger *slog.Logger) (storage.Repository, error) {
	driver := strings.ToLower(strings.TrimSpace(settings.driver))
	if driver == "" {
		if settings.dsn != "" {
			driver = "postgres"
		} else {
			driver = "json"
		}
	}
	switch driver {
	case "json":
		return storage.NewStorage(settings.dataPath)
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := storage.RunMigrations(ctx, settings.dsn); err != nil {
			return nil, err
		}
		return storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			DSN:             settings.dsn,
			MaxConns:        int32(settings.maxConns),
			MinConns:        int32(settings.minConns),
			MaxConnLifetime: settings.maxConnLifetime,
			MaxConnIdleTime: settings.maxConnIdle,
			HealthCheck:     settings.healthInterval,
			ApplicationName: settings.appName,
		}, logging.WithComponent(logger, "storage"))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", settings.driver)
	}
}

type mediaSettings struct {
	driver    string
	dir       string
	endpoint  string
	region    string
	accessKey string
	secretKey string
	bucket    string
	publicURL string
}

func buildMediaStore(settings mediaSettings) (media.Store, error) {
	driver := strings.ToLower(strings.TrimSpace(settings.driver))
	if driver == "" {
		if settings.bucket != "" {
			driver = "s3"
		} else {
			driver = "fs"
		}
	}
	switch driver {
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return media.NewS3Store(ctx, media.S3Config{
			Endpoint:      settings.endpoint,
			Region:        settings.region,
			AccessKey:     settings.accessKey,
			SecretKey:     settings.secretKey,
			Bucket:        settings.bucket,
			PublicBaseURL: settings.publicURL,
		})
	case "fs":
		dir := settings.dir
		if dir == "" {
			dir = "media"
		}
		return media.NewFSStore(dir)
	default:
		return nil, fmt.Errorf("unknown media driver %q", settings.driver)
	}
}

func buildTokenIssuer(accessSecret, refreshSecret, accessExpiry, refreshExpiry string) (*auth.TokenIssuer, error) {
	access := firstNonEmpty(accessSecret, os.Getenv("CLIPSTREAM_ACCESS_TOKEN_SECRET"), os.Getenv("ACCESS_TOKEN_SECRET"))
	refresh := firstNonEmpty(refreshSecret, os.Getenv("CLIPSTREAM_REFRESH_TOKEN_SECRET"), os.Getenv("REFRESH_TOKEN_SECRET"))
	cfg := auth.TokenConfig{
		AccessSecret:  []byte(access),
		RefreshSecret: []byte(refresh),
	}
	if value := firstNonEmpty(accessExpiry, os.Getenv("CLIPSTREAM_ACCESS_TOKEN_EXPIRY"), os.Getenv("ACCESS_TOKEN_EXPIRY")); value != "" {
		ttl, err := auth.ParseExpiry(value)
		if err != nil {
			return nil, err
		}
		cfg.AccessTTL = ttl
	}
	if value := firstNonEmpty(refreshExpiry, os.Getenv("CLIPSTREAM_REFRESH_TOKEN_EXPIRY"), os.Getenv("REFRESH_TOKEN_EXPIRY")); value != "" {
		ttl, err := auth.ParseExpiry(value)
		if err != nil {
			return nil, err
		}
		cfg.RefreshTTL = ttl
	}
	return auth.NewTokenIssuer(cfg)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func modeValue(flagValue, envValue string) string {
	mode := strings.ToLower(firstNonEmpty(flagValue, envValue))
	if mode != "production" {
		return "development"
	}
	return mode
}

func resolveListenAddr(flagValue, mode, envValue string) string {
	if addr := firstNonEmpty(flagValue, envValue); addr != "" {
		return addr
	}
	if mode == "production" {
		return ":8080"
	}
	return "127.0.0.1:8080"
}

func resolveInt(flagValue int, envValue string) int {
	if flagValue != 0 {
		return flagValue
	}
	if trimmed := strings.TrimSpace(envValue); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil {
			return parsed
		}
	}
	return 0
}

func resolveFloat(flagValue float64, envValue string) float64 {
	if flagValue != 0 {
		return flagValue
	}
	if trimmed := strings.TrimSpace(envValue); trimmed != "" {
		if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return parsed
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envValue string) time.Duration {
	if flagValue != 0 {
		return flagValue
	}
	if trimmed := strings.TrimSpace(envValue); trimmed != "" {
		if parsed, err := time.ParseDuration(trimmed); err == nil {
			return parsed
		}
	}
	return 0
}

func resolveBool(flagValue bool, envValue string) bool {
	if flagValue {
		return true
	}
	if trimmed := strings.TrimSpace(envValue); trimmed != "" {
		if parsed, err := strconv.ParseBool(trimmed); err == nil {
			return parsed
		}
	}
	return false
}
