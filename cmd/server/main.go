package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/supportdesk/internal/api"
	"github.com/wuwenbin0122/supportdesk/internal/auth"
	"github.com/wuwenbin0122/supportdesk/internal/chat"
	"github.com/wuwenbin0122/supportdesk/internal/db"
	"github.com/wuwenbin0122/supportdesk/internal/storage"
	"github.com/wuwenbin0122/supportdesk/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to build: %v", err)
	}
	defer func() { _ = utils.SyncLogger(logger) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store: failed to open", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store: close error", zap.Error(err))
		}
	}()

	repo := storage.NewRepository(store, logger.Named("storage"))
	if err := repo.Initialize(ctx); err != nil {
		logger.Fatal("store: failed to seed", zap.Error(err))
	}

	authService, err := auth.NewService(repo, logger.Named("auth"))
	if err != nil {
		logger.Fatal("auth: failed to initialise", zap.Error(err))
	}
	if err := authService.Restore(ctx); err != nil {
		logger.Fatal("auth: failed to restore session", zap.Error(err))
	}

	chatService := chat.NewService(repo, authService, logger.Named("chat"))
	if err := chatService.Start(ctx); err != nil {
		logger.Fatal("chat: failed to start", zap.Error(err))
	}
	defer chatService.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      setupRouter(authService, chatService, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server crashed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
}

func setupRouter(authService *auth.Service, chatService *chat.Service, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(api.RequestLogger(logger.Named("http")), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api.NewHandler(authService, chatService, logger.Named("api")).RegisterRoutes(router)

	return router
}
