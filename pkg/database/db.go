package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var ErrNoDSN = errors.New("database: DATABASE_URL is not set")

type Config struct {
	DSN            string
	MaxConns       int
	Timeout        time.Duration
	TimeZone       string
	ClientEncoding string
}

// ConfigFromEnv reads DB config from environment variables. The local mirror
// is optional, so there is no default DSN.
func ConfigFromEnv() Config {
	max := 5
	if v, err := strconv.Atoi(os.Getenv("DATABASE_MAX_CONNS")); err == nil && v > 0 {
		max = v
	}
	return Config{
		DSN:            strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MaxConns:       max,
		Timeout:        5 * time.Second,
		TimeZone:       os.Getenv("DATABASE_TIMEZONE"),
		ClientEncoding: os.Getenv("DATABASE_CLIENT_ENCODING"),
	}
}

// Connect opens a Postgres pool, pings it and applies session settings.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, ErrNoDSN
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	for _, stmt := range sessionSettings(cfg) {
		if _, err := db.ExecContext(pingCtx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("session setting %q: %w", stmt, err)
		}
	}
	return db, nil
}

func sessionSettings(cfg Config) []string {
	var out []string
	if cfg.TimeZone != "" {
		out = append(out, "SET TIME ZONE "+quoteLiteral(cfg.TimeZone))
	}
	if cfg.ClientEncoding != "" {
		out = append(out, "SET client_encoding = "+quoteLiteral(cfg.ClientEncoding))
	}
	return out
}

// quoteLiteral escapes single quotes and wraps the value in single quotes
// so it can be used in SET statements, which take no placeholders.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
