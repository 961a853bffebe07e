package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pevans/collect/category"
	"github.com/pevans/collect/config"
	"github.com/pevans/collect/content"
	"github.com/pevans/collect/database"
	"github.com/pevans/collect/fetch"
	"github.com/pevans/collect/gateway"
	"github.com/pevans/collect/history"
	"github.com/pevans/collect/lock"
	"github.com/pevans/collect/mapping"
	"github.com/pevans/collect/metrics"
	"github.com/pevans/collect/node"
	"github.com/pevans/collect/pipeline"
	"github.com/pevans/collect/staging"
	"github.com/pevans/collect/transform"
	"go.uber.org/zap"
)

// app holds every store and service built from the configuration.
type app struct {
	db         *sql.DB
	redis      *redis.Client
	nodes      *node.Store
	history    *history.Store
	staging    *staging.Store
	categories *category.Store
	content    *content.Store
	metrics    *metrics.Metrics
	controller *pipeline.Controller
}

func openApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := ensureDir(cfg.Storage.DSN); err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	a := &app{db: db, metrics: metrics.New()}
	if err := a.init(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var err error
	if a.nodes, err = node.NewStore(a.db); err != nil {
		return err
	}
	if a.history, err = history.NewStore(a.db); err != nil {
		return err
	}
	if a.staging, err = staging.NewStore(a.db); err != nil {
		return err
	}
	if a.categories, err = category.NewStore(a.db, cfg.Mapping.CategoryCacheTTL); err != nil {
		return err
	}
	if err := a.categories.Seed(ctx, cfg.Categories); err != nil {
		return err
	}

	var gw gateway.Gateway
	switch cfg.Gateway.Type {
	case config.GatewayHTTP:
		gw = gateway.NewHTTPGateway(cfg.Gateway.URL, cfg.Gateway.Token, cfg.Gateway.Timeout)
	default:
		if a.content, err = content.NewStore(cfg.Storage.ContentDir); err != nil {
			return err
		}
		gw = gateway.NewContentGateway(a.content, requiredFields(cfg.Gateway.Required))
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Lock.Type == config.LockRedis {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = lock.NewRedis(a.redis, cfg.Lock.Prefix, cfg.Lock.TTL, logger)
	}

	p := pipeline.New(pipeline.Deps{
		Nodes:   a.nodes,
		History: a.history,
		Staging: a.staging,
		Fetcher: fetch.NewHTTPFetcher(cfg.Fetch, logger),
		Mapper:  mapping.New(transform.NewRegistry(), a.categories),
		Gateway: gw,
		Locker:  locker,
		Metrics: a.metrics,
		Logger:  logger,
	}, cfg.PipelineOptions())
	a.controller = pipeline.NewController(p)

	return nil
}

// Close closes the database and the Redis client.
func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}

// findNode resolves a node by ID or by name.
func (a *app) findNode(ctx context.Context, ref string) (*node.Node, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return a.nodes.Get(ctx, id)
	}

	nodes, err := a.nodes.List(ctx, node.Filter{})
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		if nodes[i].Name == ref {
			return &nodes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", node.ErrNodeNotFound, ref)
}

func requiredFields(in map[string][]string) map[node.TargetKind][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[node.TargetKind][]string, len(in))
	for kind, fields := range in {
		out[node.TargetKind(kind)] = fields
	}
	return out
}

// ensureDir creates the parent directory of a database file.
func ensureDir(dsn string) error {
	dir := dirOf(dsn)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
