package main

import (
	"context"
	"encoding/json"
	"fmt"
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
		log.Fatalf("inspect_store: nothing to inspect: %v", err)
	}

	logger := utils.Logger()
	defer func() { _ = utils.SyncLogger(logger) }()

	ctx := context.Background()
	store, err := db.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store: failed to open", zap.Error(err))
	}
	defer store.Close()

	dump, err := storage.NewRepository(store, logger).Dump(ctx)
	if err != nil {
		logger.Fatal("store: dump failed", zap.Error(err))
	}

	for _, key := range storage.Keys {
		raw, ok := dump[key]
		if !ok {
			fmt.Printf("%s: <absent>\n", key)
			continue
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			fmt.Printf("%s: <invalid json> %s\n", key, raw)
			continue
		}
		pretty, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			logger.Fatal("format record", zap.String("key", key), zap.Error(err))
		}
		fmt.Printf("%s:\n%s\n", key, pretty)
	}
}
