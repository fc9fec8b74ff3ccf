// Package main runs the background worker: queued email delivery and the
// periodic event status pass.
package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/intranet-events/backend/config"
	"github.com/intranet-events/backend/internal/clock"
	"github.com/intranet-events/backend/internal/events"
	"github.com/intranet-events/backend/internal/notifications"
	"github.com/intranet-events/backend/pkg/database"
	"github.com/intranet-events/backend/pkg/queue"
	"github.com/intranet-events/backend/pkg/redis"
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
		MaxConns:        4,
		ConnectAttempts: 10,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

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

	var mailer notifications.Mailer
	if cfg.Email.SMTPHost != "" {
		mailer = notifications.NewSMTPMailer(notifications.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUser,
			Password: cfg.Email.SMTPPass,
			From:     cfg.Email.SMTPFrom(),
		})
	} else {
		logger.Warn("SMTP_HOST not set, emails are only logged")
		mailer = notifications.NewLogMailer(logger)
	}
	emailWorker := notifications.NewWorker(queue.NewQueue(rdb.Client, logger), mailer, notifications.NewLogRepository(pool), clk, logger)

	eventSvc := events.NewService(events.NewRepository(pool), events.NewArbiter(cfg.Events.LockTimeout), clk, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		emailWorker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		runTransitions(ctx, eventSvc, cfg.Events.TransitionInterval, logger)
	}()
	logger.Info("worker started", zap.Duration("transition_interval", cfg.Events.TransitionInterval))

	<-ctx.Done()
	wg.Wait()
	logger.Info("worker stopped")
}

// runTransitions reconciles stored statuses on every tick. Reads resolve
// status lazily as well, so a missed tick only delays list filters.
func runTransitions(ctx context.Context, svc *events.Service, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := svc.TransitionStatuses(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error("status transition pass failed", zap.Error(err))
		case n > 0:
			logger.Info("event statuses updated", zap.Int("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
