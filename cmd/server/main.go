package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"historysync/internal/application/service/syncer"
	"historysync/internal/bootstrap"
	"historysync/internal/config"
	"historysync/internal/infrastructure/broker"
	infrahttp "historysync/internal/interfaces/http"
	"historysync/internal/scheduler"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger = cfg.Logger()

	app, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Fatalf("failed to init services: %v", err)
	}
	defer app.Close()

	trigger := func(ctx context.Context, req syncer.Request) error {
		_, err := app.Runner.Run(ctx, req)
		return err
	}

	var consumer *broker.Consumer
	if cfg.RabbitMQ.URL != "" {
		consumer, err = broker.NewConsumer(broker.ConsumerConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.RequestExchange,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Batch: broker.BatchConfig{
				Size:    cfg.RabbitMQ.BatchSize,
				Timeout: cfg.RabbitMQ.BatchTimeout,
			},
		}, trigger, logger)
		if err != nil {
			logger.Fatalf("failed to init request consumer: %v", err)
		}
		if err := consumer.Start(ctx); err != nil {
			logger.Fatalf("failed to start request consumer: %v", err)
		}
	}

	var daily *scheduler.Daily
	if cfg.Schedule.At != "" {
		daily, err = scheduler.NewDaily(ctx, cfg.Sync.Location(), cfg.Schedule.At, trigger, logger)
		if err != nil {
			logger.Fatalf("failed to schedule daily sync: %v", err)
		}
		daily.Start()
	}

	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	handler := infrahttp.NewHandler(ctx, app.Runner, app.Instruments, app.Records, app.Redis, cacheTTL, logger)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}

	go func() {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown error: %v", err)
	}
	if daily != nil {
		daily.Stop()
	}
	if consumer != nil {
		if err := consumer.Close(shutdownCtx); err != nil {
			logger.Errorf("request consumer shutdown error: %v", err)
		}
	}

	// Cancelled runs still finish their in-flight fetches and save before the
	// backends close.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Sync.TaskTimeout+10*time.Second)
	defer drainCancel()
	if err := handler.Wait(drainCtx); err != nil {
		logger.Errorf("background sync did not finish: %v", err)
	}
	logger.Info("server stopped")
}
