// Package app assembles the backing stores shared by the binaries. Each
// store degrades to an in-process implementation when its URL is unset.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/bulkmail/internal/analytics"
	"github.com/ignite/bulkmail/internal/config"
	"github.com/ignite/bulkmail/internal/pkg/distlock"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	"github.com/ignite/bulkmail/internal/repository/memory"
	"github.com/ignite/bulkmail/internal/repository/postgres"
	"github.com/ignite/bulkmail/internal/service/suppression"
	"github.com/ignite/bulkmail/internal/settings"
)

// Deps holds the wired stores and services.
type Deps struct {
	DB           *sql.DB
	Redis        *redis.Client
	Settings     *settings.Resolver
	Suppressions *suppression.Service
	Cursors      analytics.CursorStore
	Locks        distlock.Factory
}

// Open connects to PostgreSQL and Redis when configured and wires the
// services on top of whatever is available.
func Open(ctx context.Context, cfg *config.Config) (*Deps, error) {
	d := &Deps{}

	var (
		repo  suppression.Repository = memory.NewSuppressionRepo()
		store settings.Store         = settings.NewMapStore(nil)
	)
	if cfg.Database.URL != "" {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		db, err := postgres.Open(openCtx, cfg.Database.URL, cfg.Database.MaxOpenConns)
		cancel()
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		d.DB = db
		repo = postgres.NewSuppressionRepo(db)
		store = postgres.NewSettingsRepo(db)
		logger.Info("postgres connected", "max_open_conns", cfg.Database.MaxOpenConns)
	} else {
		logger.Warn("DATABASE_URL not set, suppression list is in-memory only")
	}

	d.Cursors = analytics.NewMemoryCursorStore()
	if cfg.Redis.URL != "" {
		client, err := connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("redis unavailable, cursors are in-memory", "error", err)
		} else {
			d.Redis = client
			d.Cursors = analytics.NewRedisCursorStore(client)
		}
	}

	d.Settings = settings.NewResolver(store)
	d.Suppressions = suppression.NewService(repo)
	d.Locks = distlock.NewFactory(d.Redis, d.DB, analytics.SchedulerConfigFrom(cfg.Analytics).LockTTL)
	return d, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	var client *redis.Client
	if opts, err := redis.ParseURL(url); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: url})
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Close releases the connections.
func (d *Deps) Close() {
	if d.Redis != nil {
		d.Redis.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
