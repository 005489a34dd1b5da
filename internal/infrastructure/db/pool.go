package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"crypto-dashboard/internal/config"
)

// clamp keeps pool sizes usable whatever the configuration says.
func clamp(cfg config.DatabaseConfig) config.DatabaseConfig {
	if cfg.MaxConns < 1 {
		cfg.MaxConns = 1
	}
	if cfg.MinConns < 0 {
		cfg.MinConns = 0
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	return cfg
}

// ensureSSLMode adds sslmode=require to remote database URLs that do not
// choose a mode. Local hosts are left alone.
func ensureSSLMode(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil || u.Host == "" {
		// pgx surfaces the connection error.
		return dbURL
	}

	q := u.Query()
	if q.Get("sslmode") != "" || isLocal(u.Hostname()) {
		return dbURL
	}
	q.Set("sslmode", "require")
	u.RawQuery = q.Encode()
	return strings.TrimSpace(u.String())
}

func isLocal(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// NewPool opens a pgx pool for cfg.URL and pings it.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	cfg = clamp(cfg)

	poolCfg, err := pgxpool.ParseConfig(ensureSSLMode(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
