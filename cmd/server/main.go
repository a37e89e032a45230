package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/api"
	"github.com/wuwenbin0122/evalboard/internal/app"
	"github.com/wuwenbin0122/evalboard/internal/db"
	"github.com/wuwenbin0122/evalboard/internal/metrics"
	"github.com/wuwenbin0122/evalboard/internal/project"
	"github.com/wuwenbin0122/evalboard/internal/realtime"
	"github.com/wuwenbin0122/evalboard/internal/snapshot"
	"github.com/wuwenbin0122/evalboard/internal/utils"
	"github.com/wuwenbin0122/evalboard/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	baseLogger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to build: %v", err)
	}
	defer func() { _ = baseLogger.Sync() }()
	logger := baseLogger.Sugar()

	ctx := context.Background()

	var postgres *db.Postgres
	if cfg.Postgres.Configured() {
		postgres, err = db.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatalw("postgres: failed to connect", "error", err)
		}
		defer postgres.Close()

		if err := postgres.Ping(ctx); err != nil {
			logger.Fatalw("postgres: ping failed", "error", err)
		}
		if err := postgres.EnsureSchema(ctx, cfg.Realtime.PostgresChannel); err != nil {
			logger.Fatalw("postgres: ensure schema", "error", err)
		}
	} else {
		logger.Warn("postgres not configured; questions, communications and notifications are read-only and empty")
	}

	var mongoStore *db.Mongo
	if cfg.Mongo.URI != "" {
		mongoStore, err = db.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			logger.Fatalw("mongo: failed to connect", "error", err)
		}
		defer func() {
			if err := mongoStore.Close(context.Background()); err != nil {
				logger.Warnw("mongo: close error", "error", err)
			}
		}()

		if err := mongoStore.EnsureCollections(ctx); err != nil {
			logger.Fatalw("mongo: ensure collections", "error", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = db.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatalw("redis: failed to connect", "error", err)
		}
		defer redisClient.Close()
	}

	feed, publisher, err := buildFeed(cfg.Realtime, postgres, redisClient, utils.Component("realtime"))
	if err != nil {
		logger.Fatalw("realtime: failed to build feed", "backend", cfg.Realtime.Backend, "error", err)
	}
	if closer, ok := feed.(io.Closer); ok {
		defer closer.Close()
	}

	snapshots, err := snapshot.Open(ctx, cfg.Cache.SnapshotDSN)
	if err != nil {
		logger.Fatalw("snapshot: failed to open backend", "error", err)
	}

	opts := app.Options{
		Signal:          project.NewSignal(cfg.Cache.InitialProject),
		Snapshots:       snapshots,
		Feed:            feed,
		MaxSavedThreads: cfg.Cache.MaxSavedThreads,
		SwitchDebounce:  cfg.Cache.SwitchDebounce,
		ReloadDebounce:  cfg.Realtime.ReloadDebounce,
		SaveTimeout:     cfg.Cache.SaveTimeout,
		Logger:          utils.Component("dashboard"),
	}

	if postgres != nil {
		repoLogger := utils.Component("repository")
		opts.QuestionRemote = db.NewQuestionRepository(postgres.Pool, publisher, repoLogger)
		opts.CommunicationRemote = db.NewCommunicationRepository(postgres.Pool, publisher, repoLogger)
		opts.NotificationRemote = db.NewNotificationRepository(postgres.Pool, publisher, repoLogger)
	}
	if mongoStore != nil {
		opts.ConversationRemote = db.NewConversationRepository(mongoStore.Conversations)
	}

	var drafts *services.DraftService
	if cfg.LLM.Enabled() {
		chat := services.NewChatService(cfg.LLM, utils.Component("chat"))
		opts.Assistant = chat
		drafts = services.NewDraftService(chat, utils.Component("drafts"))
	} else {
		logger.Warn("llm not configured; chat and draft generation are disabled")
	}

	dashboard := app.New(opts)
	if err := dashboard.Start(ctx); err != nil {
		logger.Fatalw("dashboard: failed to start", "error", err)
	}
	defer func() {
		if err := dashboard.Close(); err != nil {
			logger.Warnw("dashboard: close error", "error", err)
		}
	}()

	deps := api.Dependencies{
		Dashboard:         dashboard,
		Drafts:            drafts,
		UploadConcurrency: cfg.Uploads.Concurrency,
		Logger:            utils.Component("api"),
	}
	if cfg.Uploads.Endpoint != "" {
		deps.Uploader = services.NewUploadService(cfg.Uploads, utils.Component("uploads"))
	}
	handler := api.NewHandler(deps)
	defer handler.Close()

	router := setupRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout: 15 * time.Second,
		// no write timeout: /api/realtime holds its connection open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Infow("server listening", "addr", server.Addr, "realtime", cfg.Realtime.Backend, "project", dashboard.Signal.Current())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server crashed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("graceful shutdown failed", "error", err)
	}

	logger.Info("server stopped cleanly")
}

// buildFeed picks the change feed and the publisher repositories write
// through. Postgres triggers and remote websocket servers publish on their
// own, so those backends get no publisher.
func buildFeed(cfg utils.RealtimeConfig, postgres *db.Postgres, redisClient *redis.Client, logger *zap.SugaredLogger) (realtime.Feed, realtime.Publisher, error) {
	switch cfg.Backend {
	case "postgres":
		if postgres == nil {
			return nil, nil, fmt.Errorf("postgres realtime backend requires a postgres connection")
		}
		return realtime.NewPostgresFeed(postgres.Pool, cfg.PostgresChannel, logger), nil, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("redis realtime backend requires REDIS_ADDR")
		}
		feed := realtime.NewRedisFeed(redisClient, cfg.RedisPrefix, logger)
		return feed, feed, nil
	case "websocket":
		return realtime.NewWebsocketFeed(cfg.WebsocketURL, nil, logger), nil, nil
	default:
		hub := realtime.NewHub()
		return hub, hub, nil
	}
}

func setupRouter(handler *api.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	handler.RegisterRoutes(router)

	return router
}
