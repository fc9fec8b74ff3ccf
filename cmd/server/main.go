// Package main runs the events HTTP server with the WebSocket change feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/intranet-events/backend/config"
	"github.com/intranet-events/backend/internal/auth"
	"github.com/intranet-events/backend/internal/clock"
	"github.com/intranet-events/backend/internal/events"
	"github.com/intranet-events/backend/internal/notifications"
	"github.com/intranet-events/backend/internal/realtime"
	"github.com/intranet-events/backend/internal/signups"
	"github.com/intranet-events/backend/pkg/database"
	"github.com/intranet-events/backend/pkg/queue"
	"github.com/intranet-events/backend/pkg/redis"
	"github.com/intranet-events/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	loc, err := cfg.Events.Location()
	if err != nil {
		logger.Fatal("timezone", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxConns),
		ConnectAttempts: 10,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PingAttempts: 10,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	clk := clock.Real(loc)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.Issuer)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	hub := realtime.NewHub(realtime.NewRedisPubSub(rdb.Client, logger), logger)
	if err := hub.Start(ctx); err != nil {
		logger.Fatal("realtime relay", zap.Error(err))
	}

	// Users
	userRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(userRepo, jwtService, logger)

	// Events
	eventRepo := events.NewRepository(pool)
	eventSvc := events.NewService(eventRepo, events.NewArbiter(cfg.Events.LockTimeout), clk, logger)
	eventSvc.SetHistoryLimit(cfg.Events.HistoryLimit)
	eventSvc.SetBroadcaster(hub)

	if cfg.AWS.ImagesBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.ImagesBucket,
			PublicBaseURL:   cfg.AWS.PublicBaseURL,
			PublicRead:      cfg.AWS.PublicRead,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			eventSvc.SetImageStore(s3Client)
		}
	}

	// Notifications
	dispatcher := notifications.NewDispatcher(userRepo, eventRepo, jobQueue, cfg.FrontendURL, loc, logger)
	if cfg.AMQP.URL != "" {
		dispatcher.SetPublisher(notifications.NewAMQPPublisher(cfg.AMQP.URL, logger))
	}
	eventSvc.SetNotifier(dispatcher)

	// Signups
	signupSvc := signups.NewService(signups.NewRepository(pool), clk, logger)
	signupSvc.SetLocation(loc)
	signupSvc.SetBroadcaster(hub)
	signupSvc.SetNotifier(dispatcher)

	router := newRouter(cfg, logger, routes{
		tokens:        jwtService,
		auth:          authHandler,
		events:        events.NewHandler(eventSvc, loc, logger),
		signups:       signups.NewHandler(signupSvc, logger),
		notifications: notifications.NewHandler(notifications.NewLogRepository(pool)),
		ws:            realtime.ServeWs(hub, jwtService),
		ping:          pool.Ping,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("timezone", loc.String()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if os.Getenv("LOG_LEVEL") == "debug" {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, _ := config.Build()
	return logger
}
