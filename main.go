package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "notify-backend/cmd/api"
	"notify-backend/internal/notification/delivery"
	"notify-backend/internal/notification/deliverylog"
	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/preference"
	"notify-backend/internal/notification/push"
	"notify-backend/internal/notification/realtime"
	"notify-backend/internal/notification/repository"
	"notify-backend/internal/notification/scheduler"
	"notify-backend/internal/notification/usecase"
	"notify-backend/internal/people"
	"notify-backend/pkg/config"
	"notify-backend/pkg/database"
	"notify-backend/pkg/expo"
	"notify-backend/pkg/fcm"
	"notify-backend/pkg/gmail"
	"notify-backend/pkg/logger"
	"notify-backend/pkg/mailer"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	// Initialize repositories (dependency injection)
	notificationRepo := repository.NewNotificationRepository(db)
	privateMessageRepo := repository.NewPrivateMessageRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	preferenceRepo := repository.NewPreferenceRepository(db)
	deliveryLogRepo := repository.NewDeliveryLogRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	personRepo := people.NewPersonRepository(db)

	deliveryLog := deliverylog.NewLogger(deliveryLogRepo, log)
	preferences := preference.NewStore(preferenceRepo)

	// Live channel: redis makes connections visible across instances
	attendance := func(_ context.Context, removed []domain.Connection) {
		for _, c := range removed {
			log.Debug("connection closed",
				zap.String("tenant_id", c.TenantID),
				zap.String("person_id", c.PersonID),
				zap.String("channel_id", c.ChannelID))
		}
	}
	var (
		registry  realtime.Registry
		transport realtime.Transport
		hub       *realtime.Hub
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		instanceID := uuid.NewString()
		redisRegistry := realtime.NewRedisRegistry(rdb, instanceID, attendance)
		registry = redisRegistry
		hub = realtime.NewHub(registry, log)
		relay := realtime.NewRedisRelay(hub, redisRegistry, log)
		log.Info("socket relay enabled", zap.String("instance_id", instanceID))
		go func() {
			if err := relay.Listen(ctx); err != nil {
				log.Error("socket relay stopped", zap.Error(err))
			}
		}()
		transport = relay
	} else {
		registry = realtime.NewMemoryRegistry(attendance)
		hub = realtime.NewHub(registry, log)
		transport = hub
	}
	go hub.Heartbeat(ctx)

	// Push provider
	var sender push.Sender
	switch cfg.PushProvider {
	case "fcm":
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.Fatal("failed to initialize FCM client", zap.Error(err))
		}
		sender = fcmClient
	default:
		sender = expo.NewClient(cfg.ExpoAccessToken)
	}
	dispatcher := push.NewDispatcher(sender, deviceRepo, deliveryLog, log, cfg.PushTimeout)

	deliverer := usecase.NewDeliverer(registry, transport, deviceRepo, preferences, dispatcher, deliveryLog, log, cfg.SocketTimeout)
	fanout := usecase.NewFanout(notificationRepo, privateMessageRepo, conversationRepo, deliverer, log, cfg.FanoutConcurrency)

	// Email provider
	var emailSender scheduler.EmailSender
	switch cfg.EmailProvider {
	case "gmail":
		gmailService, err := gmail.NewService(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GmailRefreshToken)
		if err != nil {
			log.Fatal("failed to initialize Gmail service", zap.Error(err))
		}
		emailSender = gmailService
	default:
		emailSender = mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	}

	composer, err := scheduler.NewComposer(cfg.AppName, cfg.AppURL)
	if err != nil {
		log.Fatal("failed to parse email templates", zap.Error(err))
	}
	digest := scheduler.NewDigestScheduler(notificationRepo, privateMessageRepo, preferences, personRepo, emailSender, deliveryLog, composer, scheduler.Options{
		From:         cfg.EmailFrom,
		AppName:      cfg.AppName,
		Concurrency:  cfg.DigestConcurrency,
		MaxFailures:  cfg.MaxDigestFailures,
		EmailTimeout: cfg.EmailTimeout,

		DeferMismatched: cfg.DeferMismatchedDigests,
	}, log)
	runner := scheduler.NewRunner(digest, cfg.IndividualDigestInterval, cfg.DailyDigestHour, log)
	runner.Start()
	defer runner.Stop()

	// Domain events
	events := delivery.NewEventHandler(fanout, log)
	switch cfg.EventSource {
	case "pubsub":
		consumer, err := delivery.NewPubSubConsumer(ctx, cfg.GoogleProjectID, cfg.GooglePubSubSubscription, cfg.GoogleCredentials, events, log)
		if err != nil {
			log.Fatal("failed to initialize pubsub consumer", zap.Error(err))
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("pubsub consumer stopped", zap.Error(err))
			}
		}()
	case "kafka":
		consumer := delivery.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, events, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	default:
		log.Info("no event source configured, internal HTTP entry points only")
	}

	// Initialize HTTP handler
	notificationHandler := delivery.NewNotificationHandler(notificationRepo, privateMessageRepo, deviceRepo, deliveryLogRepo, preferences, fanout, digest)
	handler := api.NewHandler(notificationHandler, hub, cfg, log)

	go func() {
		<-ctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := handler.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", zap.Error(err))
		}
	}()

	log.Info("server starting", zap.String("port", cfg.Port))
	if err := handler.Start(":" + cfg.Port); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("failed to start server", zap.Error(err))
	}
}
