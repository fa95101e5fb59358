package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/supportdesk/internal/kv"
	"github.com/wuwenbin0122/supportdesk/internal/utils"
)

// OpenStore connects the key-value backend selected by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *utils.Config, logger *zap.Logger) (kv.Store, error) {
	switch cfg.StoreBackend {
	case utils.BackendMemory, "":
		logger.Info("store: using in-memory backend")
		return kv.NewMemory(), nil

	case utils.BackendRedis:
		store, err := NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("store: using redis backend", zap.String("prefix", cfg.Redis.KeyPrefix))
		return store, nil

	case utils.BackendMongo:
		store, err := NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("mongo: ping: %w", err)
		}
		logger.Info("store: using mongo backend",
			zap.String("database", cfg.Mongo.Database),
			zap.String("collection", cfg.Mongo.Collection),
		)
		return store, nil

	case utils.BackendPostgres:
		store, err := NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("postgres: ping: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("store: using postgres backend", zap.String("host", cfg.Postgres.Host))
		return store, nil

	default:
		return nil, fmt.Errorf("store: unsupported backend %q", cfg.StoreBackend)
	}
}
