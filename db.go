package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	cfg "github.com/example/healthtracker/internal/config"
	"github.com/example/healthtracker/internal/identity"
	"github.com/example/healthtracker/internal/logging"
	"github.com/example/healthtracker/internal/revocation"
	"github.com/example/healthtracker/internal/store"
	"github.com/redis/go-redis/v9"
)

// openStore builds the store selected by DB_ADAPTER. Postgres is migrated
// before it is connected.
func openStore(ctx context.Context, c *cfg.Config, log logging.Logger) (store.Store, error) {
	switch c.DBAdapter {
	case "sqlite":
		if dir := filepath.Dir(c.SQLiteFile); dir != "." && c.SQLiteFile != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		s, err := store.NewSQLiteStore(ctx, c.SQLiteFile)
		if err != nil {
			return nil, err
		}
		log.Info(ctx, "using sqlite database", "file", c.SQLiteFile)
		return s, nil
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres config: %w", err)
		}
		if err := store.ApplyMigrations(ctx, dsn, log); err != nil {
			return nil, err
		}
		s, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		log.Info(ctx, "connected to postgres database")
		return s, nil
	case "memory":
		log.Warn(ctx, "using in-memory database (not recommended for production)")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}
}

// openDenylist connects to redis when REDIS_ADDR is set and falls back to an
// in-process denylist otherwise.
func openDenylist(ctx context.Context, c *cfg.Config, log logging.Logger) (revocation.Denylist, func(), error) {
	if c.RedisAddr == "" {
		log.Info(ctx, "using in-memory token denylist")
		return revocation.NewMemoryDenylist(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	d := revocation.NewRedisDenylist(client)
	if err := d.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", c.RedisAddr, err)
	}
	log.Info(ctx, "using redis token denylist", "addr", c.RedisAddr)
	return d, func() { _ = client.Close() }, nil
}

func seedRoles(ctx context.Context, ids *identity.Manager, roles []string, log logging.Logger) error {
	if len(roles) == 0 {
		return nil
	}
	if err := ids.EnsureRoles(ctx, roles...); err != nil {
		return err
	}
	log.Debug(ctx, "roles seeded", "roles", roles)
	return nil
}
