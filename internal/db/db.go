// Package db opens the Postgres connection pool and owns the DSN
// construction shared by the server, the migrator and the test
// harness.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/codearena-oj/apiserver/config"
	_ "github.com/lib/pq"
)

const (
	driverName  = "postgres"
	pingTimeout = 5 * time.Second

	connMaxIdleTime = 2 * time.Minute
	connMaxLifetime = 30 * time.Minute
	maxIdleConns    = 5
	maxOpenConns    = 25
)

// BuildDSN renders a postgres:// connection URL from config.
func BuildDSN(cfg config.DatabaseConfig) string {
	sslmode := "disable"
	if cfg.UseSSL {
		sslmode = "require"
	}

	u := url.URL{
		Scheme:   driverName,
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		User:     url.UserPassword(cfg.User, cfg.Password),
		Path:     cfg.DBName,
		RawQuery: url.Values{"sslmode": []string{sslmode}}.Encode(),
	}
	return u.String()
}

// Open connects to Postgres, applies pool limits and verifies the
// connection with a bounded ping.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	pool, err := sql.Open(driverName, BuildDSN(cfg.Database))
	if err != nil {
		return nil, err
	}

	pool.SetConnMaxIdleTime(connMaxIdleTime)
	pool.SetConnMaxLifetime(connMaxLifetime)
	pool.SetMaxIdleConns(maxIdleConns)
	pool.SetMaxOpenConns(maxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return pool, nil
}
