package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scribeit/internal/api"
	"scribeit/internal/auth"
	"scribeit/internal/backend"
	"scribeit/internal/config"
	"scribeit/internal/dashboard"
	"scribeit/internal/logger"
	"scribeit/internal/redis"
	"scribeit/internal/storage"
	"scribeit/internal/summary"
	"scribeit/internal/upload"
	"scribeit/internal/worker"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	logger.Init("scribeit-web")

	cfg, err := config.Load(os.Getenv("SCRIBEIT_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("SCRIBEIT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info(ctx, "starting", logger.Fields{"db": dbType, "backend": cfg.Backend.BaseURL})

	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
	}

	client := backend.NewClient(cfg.Backend.BaseURL,
		time.Duration(cfg.Backend.TimeoutSeconds)*time.Second,
		time.Duration(cfg.Backend.UploadTimeout)*time.Second,
	)

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	})
	defer dispatcher.Stop()

	uploads := upload.NewManager(client, dispatcher, rdb)
	defer uploads.Shutdown()
	go func() {
		if err := uploads.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(ctx, "abandon listener stopped", err)
		}
	}()

	cipher, err := auth.TokenCipherFromEnv(cfg.BasicConfig.TokenEncryptionKeyEnv)
	if err != nil {
		log.Fatalf("init token cipher: %v", err)
	}
	if cipher == nil {
		logger.Warn(ctx, "token encryption key not set, access tokens are stored unsealed")
	}
	authService := auth.NewService(db, rdb, client,
		time.Duration(cfg.BasicConfig.SessionTTLMinutes)*time.Minute, cipher)
	if err := authService.StartJanitor(ctx, cfg.BasicConfig.SessionCleanupCron); err != nil {
		log.Fatalf("start session janitor: %v", err)
	}

	viewer := summary.NewViewer(client)
	poller := summary.NewPoller(viewer, time.Duration(cfg.BasicConfig.PollIntervalSeconds)*time.Second)
	handlers := api.NewHandler(authService, uploads, dashboard.NewService(client, rdb), viewer, poller, cfg.BasicConfig.SpoolDir)

	router := gin.New()
	router.Use(logger.Middleware(), gin.Recovery())
	handlers.RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.BasicConfig.ServerAddress, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "listening", logger.Fields{"addr": srv.Addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server stopped: %v", err)
	}
}
