package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/orderdesk/internal/cache"
	"github.com/jogardn/orderdesk/internal/circuitbreaker"
	"github.com/jogardn/orderdesk/internal/config"
	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/internal/store/gormstore"
	"github.com/jogardn/orderdesk/internal/store/rest"
	"github.com/jogardn/orderdesk/internal/store/sqlstore"
)

const dbAttempts = 30

func newLogger(lc config.LogConfig) (*logrus.Logger, error) {
	l := logrus.New()
	if lc.Format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	l.SetLevel(level)
	return l, nil
}

// backend is an opened order table. schema is nil when the backend has no
// schema of its own to create.
type backend struct {
	name   string
	table  store.Table
	schema func(ctx context.Context) error
	close  func() error
}

func openBackend(ctx context.Context, name, dsn string, breakers *circuitbreaker.Manager) (*backend, error) {
	nop := func() error { return nil }

	switch name {
	case config.BackendMemory:
		return &backend{name: name, table: store.NewMemory(), close: nop}, nil

	case config.BackendSQLite, config.BackendPostgres:
		dialect, err := sqlstore.DialectFor(name)
		if err != nil {
			return nil, err
		}
		db, err := sqlstore.Open(ctx, dialect, dsn, dbAttempts, logger)
		if err != nil {
			return nil, err
		}
		s := sqlstore.New(db, dialect, logger)
		return &backend{name: name, table: s, schema: s.CreateSchema, close: db.Close}, nil

	case config.BackendMySQL:
		gdb, err := gormstore.Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		s := gormstore.New(gdb)
		return &backend{name: name, table: s, schema: s.CreateSchema, close: sqlDB.Close}, nil

	case config.BackendREST:
		breaker := breakers.GetOrCreate("order-store", circuitbreaker.Config{
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
			IsFailure:   rest.IsFailure,
		})
		client := rest.NewClient(rest.Config{
			BaseURL: cfg.REST.URL,
			APIKey:  cfg.REST.Key,
			Table:   cfg.REST.Table,
			Timeout: cfg.REST.Timeout,
		}, breaker, logger)
		return &backend{name: name, table: client, close: nop}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}

func openCache(ctx context.Context) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		c, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, "orderdesk")
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to Redis")
		return c, nil
	case config.CacheNone:
		return cache.Nop{}, nil
	default:
		return cache.NewMemory(), nil
	}
}
