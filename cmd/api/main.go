package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"luxuryestates/internal/config"
	"luxuryestates/internal/handler"
	"luxuryestates/internal/httpserver"
	"luxuryestates/internal/repository"
	"luxuryestates/internal/service/alerting"
	"luxuryestates/internal/service/auth"
	"luxuryestates/internal/service/booking"
	"luxuryestates/internal/service/contact"
	"luxuryestates/internal/service/property"
	"luxuryestates/internal/service/review"
	"luxuryestates/pkg/circuitbreaker"
	"luxuryestates/pkg/db"
	"luxuryestates/pkg/logger"
	"luxuryestates/pkg/mailer"
	"luxuryestates/pkg/mq"
	"luxuryestates/pkg/otel"
	"luxuryestates/pkg/outbox"
	appredis "luxuryestates/pkg/redis"
	"luxuryestates/pkg/storage"
	"luxuryestates/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger("luxuryestates-api", cfg.Debug)
	defer log.Sync()

	log.Info("Starting luxuryestates api...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.Bool("alerts_async", cfg.Alerts.Async),
	)

	shutdownTracing, err := otel.Init("luxuryestates-api", cfg.Otel, log)
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

	// Redis
	rdb := appredis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Object storage
	var images property.ImageStore
	supabase, err := storage.NewSupabaseStore(cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		log.Warn("Object storage is not configured, uploads are disabled")
		images = storage.Disabled{}
	case err != nil:
		log.Fatal("Failed to init object storage", zap.Error(err))
	default:
		images = supabase
	}

	// Mail
	sender := mailer.NewBreakerSender(mailer.NewSMTPSender(cfg.Mail), circuitbreaker.DefaultConfig(), log)

	// Repositories
	userRepo := repository.NewUserRepository(dbConn)
	alertRepo := repository.NewAlertRepository(dbConn)
	propertyRepo := repository.NewPropertyRepository(dbConn)
	reviewRepo := repository.NewReviewRepository(dbConn)
	bookingRepo := repository.NewBookingRepository(dbConn)
	notificationLogRepo := repository.NewNotificationLogRepository(dbConn)
	outboxRepo := outbox.NewRepository(dbConn)

	// Alert pipeline
	notifier := alerting.NewNotifier(sender, alerting.NewRenderer(cfg.App.ClientURL, cfg.App.PlaceholderImage), log)
	pipeline := alerting.NewPipeline(alertRepo, propertyRepo, notifier, log).
		WithRecorder(notificationLogRepo).
		WithDeduper(util.NewDeduper(rdb, cfg.Alerts.DedupTTL(), log)).
		WithBatchSize(cfg.Alerts.BatchSize).
		WithConcurrency(cfg.Alerts.FanoutConcurrency)
	if cfg.Alerts.Async {
		pipeline = pipeline.WithQueue(alerting.NewOutboxQueue(outboxRepo))
	}

	// Services
	authService := auth.NewService(userRepo, cfg.JWT.Secret)
	propertyService := property.NewService(propertyRepo, pipeline, reviewRepo, images, log).
		WithCache(appredis.NewJSONCache(rdb, "search", cfg.Cache.SearchTTL()))
	reviewService := review.NewService(reviewRepo, log)
	bookingService := booking.NewService(booking.NewStripeGateway(cfg.Stripe, log), bookingRepo, propertyRepo, cfg.App.ClientURL, log)
	contactService := contact.NewService(sender, cfg.App.AgentInbox, log)
	replayService := outbox.NewReplayService(outboxRepo, publisher, cfg.Outbox.MaxRetries, log)

	// Outbox Dispatcher
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithMaxRetries(cfg.Outbox.MaxRetries).
		WithInterval(cfg.Outbox.Interval()).
		WithBatchSize(cfg.Outbox.BatchSize)
	go dispatcher.Start(ctx)

	// Router
	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:     handler.NewAuthHandler(authService, log),
		Alert:    handler.NewAlertHandler(pipeline, log),
		Property: handler.NewPropertyHandler(propertyService, log),
		Review:   handler.NewReviewHandler(reviewService, log),
		Booking:  handler.NewBookingHandler(bookingService, log),
		Contact:  handler.NewContactHandler(contactService, authService, log),
		Admin:    handler.NewAdminHandler(replayService, log),
	}, cfg.JWT.Secret, httpserver.Health{DB: dbConn, Mail: sender}, log)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down api gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("api shutdown complete")
}
