package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultPostgresMaxConns        = int32(8)
	defaultPostgresMinConns        = int32(0)
	defaultPostgresMaxConnLifetime = time.Hour
	defaultPostgresMaxConnIdle     = 30 * time.Minute
	defaultPostgresHealthInterval  = time.Minute
	defaultPostgresQueryTimeout    = 5 * time.Second
	defaultPostgresAppName         = "clipstream"
)

// PostgresConfig tunes the pgx connection pool backing PostgresRepository.
// Zero-valued fields fall back to conservative defaults.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	HealthCheck     time.Duration
	AcquireTimeout  time.Duration
	QueryTimeout    time.Duration
	ApplicationName string
}

func (cfg PostgresConfig) poolConfig() (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres DSN is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultPostgresMaxConns
	}
	minConns := cfg.MinConns
	if minConns < 0 {
		minConns = defaultPostgresMinConns
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns

	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	} else {
		poolCfg.MaxConnLifetime = defaultPostgresMaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	} else {
		poolCfg.MaxConnIdleTime = defaultPostgresMaxConnIdle
	}
	if cfg.HealthCheck > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheck
	} else {
		poolCfg.HealthCheckPeriod = defaultPostgresHealthInterval
	}

	appName := cfg.ApplicationName
	if appName == "" {
		appName = defaultPostgresAppName
	}
	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = appName

	return poolCfg, nil
}

func (cfg PostgresConfig) queryTimeout() time.Duration {
	if cfg.QueryTimeout > 0 {
		return cfg.QueryTimeout
	}
	return defaultPostgresQueryTimeout
}
