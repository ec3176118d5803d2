package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"luxuryestates/internal/config"
	"luxuryestates/internal/httpserver"
	"luxuryestates/internal/mqhandler"
	"luxuryestates/internal/repository"
	"luxuryestates/internal/service/alerting"
	"luxuryestates/pkg/circuitbreaker"
	"luxuryestates/pkg/db"
	"luxuryestates/pkg/logger"
	"luxuryestates/pkg/mailer"
	"luxuryestates/pkg/mq"
	"luxuryestates/pkg/otel"
	appredis "luxuryestates/pkg/redis"
	"luxuryestates/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger("luxuryestates-worker", cfg.Debug)
	defer log.Sync()

	log.Info("Starting luxuryestates worker...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
	)

	shutdownTracing, err := otel.Init("luxuryestates-worker", cfg.Otel, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis：fan-out 去重 + 重试计数
	rdb := appredis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, cfg.Alerts.DedupTTL(), log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// DLQ 发布
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	sender := mailer.NewBreakerSender(mailer.NewSMTPSender(cfg.Mail), circuitbreaker.DefaultConfig(), log)
	notifier := alerting.NewNotifier(sender, alerting.NewRenderer(cfg.App.ClientURL, cfg.App.PlaceholderImage), log)
	pipeline := alerting.NewPipeline(
		repository.NewAlertRepository(dbConn),
		repository.NewPropertyRepository(dbConn),
		notifier,
		log,
	).
		WithRecorder(repository.NewNotificationLogRepository(dbConn)).
		WithDeduper(deduper).
		WithBatchSize(cfg.Alerts.BatchSize).
		WithConcurrency(cfg.Alerts.FanoutConcurrency)

	alertCreatedHandler := mqhandler.NewAlertCreatedHandler(pipeline, retryCounter, publisher, cfg.MQ.MaxRetries, log)
	fanoutHandler := mqhandler.NewNotificationFanoutHandler(pipeline, retryCounter, publisher, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumers := []struct {
		queue      string
		routingKey string
		handle     mq.MessageHandler
	}{
		{"alert.created.q", mq.RoutingKeyAlertCreated, alertCreatedHandler.Handle},
		{"notification.fanout.q", mq.RoutingKeyNotificationFanout, fanoutHandler.Handle},
	}

	started := make([]*mq.Consumer, 0, len(consumers))
	for _, c := range consumers {
		log.Info("Initializing MQ consumer...",
			zap.String("queue", c.queue),
			zap.String("routing_key", c.routingKey),
		)
		consumer, err := mq.NewConsumer(cfg.MQ.URL, c.queue, c.routingKey, cfg.Worker.Prefetch, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.String("queue", c.queue), zap.Error(err))
		}
		defer consumer.Close()
		consumer.SetHandler(c.handle)
		started = append(started, consumer)

		go func(queue string) {
			if err := consumer.StartConsuming(ctx); err != nil {
				log.Fatal("Consumer failed", zap.String("queue", queue), zap.Error(err))
			}
		}(c.queue)
	}

	// HTTP Server (health checks + metrics)
	srv := &http.Server{
		Addr:    cfg.Worker.HealthPort,
		Handler: httpserver.NewHealthRouter(httpserver.Health{DB: dbConn, Mail: sender}).Engine,
	}
	go func() {
		log.Info("Health server starting", zap.String("addr", cfg.Worker.HealthPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("worker is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker gracefully...")
	for _, consumer := range started {
		consumer.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("worker shutdown complete")
}
