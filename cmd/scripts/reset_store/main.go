package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/supportdesk/internal/db"
	"github.com/wuwenbin0122/supportdesk/internal/storage"
	"github.com/wuwenbin0122/supportdesk/internal/utils"
)

func main() {
	_ = godotenv.Load()

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.RequirePersistentStore(); err != nil {
		log.Fatalf("reset_store: nothing to reset: %v", err)
	}

	logger := utils.MustNewLogger(cfg.Logging)
	defer func() { _ = utils.SyncLogger(logger) }()

	ctx := context.Background()
	store, err := db.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store: failed to open", zap.Error(err))
	}
	defer store.Close()

	repo := storage.NewRepository(store, logger)
	if err := repo.Reset(ctx); err != nil {
		logger.Fatal("store: reset failed", zap.Error(err))
	}
	if err := repo.Initialize(ctx); err != nil {
		logger.Fatal("store: reseed failed", zap.Error(err))
	}

	logger.Info("store reset and reseeded", zap.String("backend", cfg.StoreBackend))
}
