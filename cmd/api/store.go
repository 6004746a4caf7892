package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/accountgate/internal/config"
	"github.com/geocoder89/accountgate/internal/db"
	"github.com/geocoder89/accountgate/internal/directory"
	"github.com/geocoder89/accountgate/internal/observability"
	"github.com/geocoder89/accountgate/internal/redisclient"
	"github.com/geocoder89/accountgate/internal/repo/memory"
	"github.com/geocoder89/accountgate/internal/repo/postgres"
	"github.com/geocoder89/accountgate/internal/repo/redisrepo"
	"github.com/geocoder89/accountgate/internal/repo/sqlite"
	"github.com/geocoder89/accountgate/internal/security"
)

type backend struct {
	store directory.Store
	ping  func(ctx context.Context) error
	close func()
}

// openStore connects the configured driver and applies migrations where the
// driver has a schema.
func openStore(ctx context.Context, log *slog.Logger, cfg config.Config, prom *observability.Prom) (backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:            cfg.DBURL,
			MaxConns:       int32(cfg.DBMaxConns),
			ConnectTimeout: cfg.DBConnectTimeout,
		})
		if err != nil {
			return backend{}, err
		}

		if err := db.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return backend{}, err
		}

		repo := postgres.NewAccountsRepo(pool, prom)
		log.Info("postgres store ready", "max_conns", pool.Config().MaxConns)

		return backend{store: repo, ping: repo.Ping, close: pool.Close}, nil

	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return backend{}, err
		}

		if err := db.MigrateSQLite(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return backend{}, err
		}

		repo := sqlite.NewAccountsRepo(sqlDB, prom)
		log.Info("sqlite store ready", "path", cfg.SQLitePath)

		return backend{store: repo, ping: repo.Ping, close: func() { _ = sqlDB.Close() }}, nil

	case config.DriverRedis:
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()

		if err := rc.Ping(pctx); err != nil {
			_ = rc.Close()
			return backend{}, fmt.Errorf("ping redis: %w", err)
		}

		repo := redisrepo.NewAccountsRepo(rc.Raw(), prom)
		log.Info("redis store ready", "addr", cfg.RedisAddr)

		return backend{store: repo, ping: repo.Ping, close: func() { _ = rc.Close() }}, nil

	case config.DriverMemory:
		repo := memory.NewAccountsRepo()
		log.Warn("memory store in use, accounts are lost on restart")

		return backend{store: repo, ping: repo.Ping, close: func() {}}, nil
	}

	return backend{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newHasher(cfg config.Config) directory.Hasher {
	if cfg.PasswordHasher == config.HasherArgon2id {
		return security.NewArgon2Hasher(security.DefaultArgon2Params())
	}
	return security.NewBcryptHasher(cfg.BcryptCost)
}
