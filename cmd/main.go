package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/auth"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/config"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/crypto"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/handler"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/hub"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/presence"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/pubsub"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/relay"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/rooms"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/store"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/database"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/log"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().Int("port", cfg.Server.Port).Msg("starting chat relay")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	gormStore := store.NewGormStore(db)
	if err := gormStore.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Blob storage
	var blobs storage.Storage
	switch cfg.Storage.Driver {
	case "s3":
		blobs, err = storage.NewS3Storage(ctx, cfg.Storage.S3)
	default:
		blobs, err = storage.NewLocalStorage(cfg.Storage.Local)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to initialize blob storage")
	}

	// Content cipher
	keys, err := crypto.NewStaticKeyProvider(cfg.Crypto.Key)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid content key")
	}
	cipher := crypto.NewCipher(keys)

	// Hub and optional cross-instance bridge
	wsHub := hub.NewHub()
	if cfg.Redis.Enabled {
		bridge, err := pubsub.NewRedisBridge(cfg.Redis, uuid.New().String())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer bridge.Close()
		wsHub.SetBridge(bridge)
		go bridge.Run(ctx, wsHub.DeliverRemote)
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis bridge enabled")
	}
	go wsHub.Run()

	// Services
	tracker := presence.NewTracker(gormStore)
	roomSvc := rooms.NewService(gormStore)
	relaySvc := relay.NewService(wsHub, gormStore, blobs, cipher, tracker, cfg.History.Limit, cfg.Storage.URLTTL)
	verifier := auth.NewVerifier(cfg.Auth.TokenSecret)

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(log.GinMiddleware(*logger), gin.Recovery())

	handler.NewWSHandler(wsHub, relaySvc, verifier, cfg.WebSocket).RegisterRoutes(router)
	handler.NewHTTPHandler(roomSvc, tracker, verifier).RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("chat relay listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat relay")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("chat relay stopped")
}
