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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/medimeet/appointment-api/internal/config"
	appointmentHandler "github.com/medimeet/appointment-api/internal/handler/appointment"
	authHandler "github.com/medimeet/appointment-api/internal/handler/auth"
	doctorHandler "github.com/medimeet/appointment-api/internal/handler/doctor"
	"github.com/medimeet/appointment-api/internal/handler/health"
	onboardingHandler "github.com/medimeet/appointment-api/internal/handler/onboarding"
	promHandler "github.com/medimeet/appointment-api/internal/handler/prometheus"
	videoHandler "github.com/medimeet/appointment-api/internal/handler/video"
	"github.com/medimeet/appointment-api/internal/middleware"
	"github.com/medimeet/appointment-api/internal/repository"
	"github.com/medimeet/appointment-api/internal/repository/memory"
	"github.com/medimeet/appointment-api/internal/repository/postgres"
	"github.com/medimeet/appointment-api/internal/router"
	appointmentService "github.com/medimeet/appointment-api/internal/service/appointment"
	authService "github.com/medimeet/appointment-api/internal/service/auth"
	eventService "github.com/medimeet/appointment-api/internal/service/event"
	"github.com/medimeet/appointment-api/internal/service/onboarding"
	"github.com/medimeet/appointment-api/internal/service/verification"
	videoService "github.com/medimeet/appointment-api/internal/service/video"
	"github.com/medimeet/appointment-api/pkg/auth"
	"github.com/medimeet/appointment-api/pkg/circuitbreaker"
	"github.com/medimeet/appointment-api/pkg/clock"
	"github.com/medimeet/appointment-api/pkg/httputil"
	"github.com/medimeet/appointment-api/pkg/logger"
	"github.com/medimeet/appointment-api/pkg/messaging"
	"github.com/medimeet/appointment-api/pkg/messaging/rabbitmq"
	"github.com/medimeet/appointment-api/pkg/messaging/redis"
	"github.com/medimeet/appointment-api/pkg/metrics"
	"github.com/medimeet/appointment-api/pkg/security"
	"github.com/medimeet/appointment-api/pkg/video"
	"github.com/medimeet/appointment-api/pkg/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, closeStore, err := openStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(err, "failed to initialize storage")
	}
	defer closeStore()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("medimeet").MustRegister(registry)
	httputil.DefaultRetryAfter = cfg.Server.RetryAfter

	// Initialize services
	clk := clock.New()
	events := eventService.NewEventService(store.Outbox, clk, appLogger)
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry, clk)
	hasher := security.NewBcryptHasher(bcrypt.DefaultCost)

	authSvc := authService.NewService(store.Accounts, jwtSvc, hasher, clk, appLogger)
	verificationSvc := verification.NewService(store.Doctors, events, clk, appLogger, m, verification.CacheConfig{
		TTL:             cfg.Directory.CacheTTL,
		CleanupInterval: cfg.Directory.CleanupInterval,
	})
	appointmentSvc := appointmentService.NewService(store.Appointments, store.Doctors, events, clk, appLogger, m)
	videoSvc := videoService.NewService(
		store.Appointments,
		video.NewMinter(cfg.Video.APIKey, cfg.Video.APISecret, cfg.Video.TokenTTL),
		events,
		clk,
		appLogger,
		m,
		videoService.Config{JoinLead: cfg.Video.JoinLead},
	)
	resolver := onboarding.NewResolver(store.Accounts, store.Doctors)

	if cfg.Admin.Email != "" {
		if _, err := authSvc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.Name); err != nil {
			appLogger.Fatal(err, "failed to seed administrator")
		}
	}

	// Setup router
	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		router.Handlers{
			Auth:        authHandler.NewHandler(authSvc),
			Onboarding:  onboardingHandler.NewHandler(resolver),
			Doctor:      doctorHandler.NewHandler(verificationSvc),
			Appointment: appointmentHandler.NewHandler(appointmentSvc),
			Video:       videoHandler.NewHandler(videoSvc),
			Health:      health.NewHandler(store.Ping),
			Metrics:     promHandler.New(registry),
		},
		appLogger,
		m,
		router.Config{
			Mode:           ginMode(cfg.Server.Mode),
			RequestTimeout: cfg.Server.RequestTimeout,
			RateLimit:      rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:      cfg.RateLimit.Burst,
			RateLimited:    cfg.RateLimit.Enabled,
			CORSConfig: middleware.CORSConfig{
				AllowOrigins: cfg.CORS.AllowedOrigins,
				MaxAge:       cfg.CORS.MaxAge,
			},
		},
	)

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Relay outbox events from this process when no separate worker runs
	if cfg.Outbox.Embedded && cfg.Broker.Driver != config.BrokerDriverNone {
		broker, err := newBroker(ctx, cfg, appLogger)
		if err != nil {
			appLogger.Fatal(err, "failed to connect to message broker")
		}
		defer broker.Close()

		processor, err := worker.NewOutboxProcessor(store.Outbox, broker, cfg.Outbox.ToWorkerConfig(cfg.Broker.Channel), appLogger, m)
		if err != nil {
			appLogger.Fatal(err, "failed to create outbox processor")
		}
		go processor.Start(ctx)
	}

	// Start server
	go func() {
		appLogger.Info("starting server", "addr", srv.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "server forced to shutdown")
	}

	appLogger.Info("server exited properly")
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*repository.Store, func(), error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		return memory.New().Repositories(), func() {}, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	base := postgres.NewBaseRepository(db)
	return &repository.Store{
		Accounts:     postgres.NewAccountRepository(base),
		Doctors:      postgres.NewDoctorRepository(base),
		Appointments: postgres.NewAppointmentRepository(base),
		Outbox:       postgres.NewOutboxRepository(base),
		Ping:         base.Ping,
	}, func() { db.Close() }, nil
}

func newBroker(ctx context.Context, cfg *config.Config, log *logger.Logger) (messaging.Broker, error) {
	cb := circuitbreaker.NewCircuitBreaker(cfg.CircuitBreaker.ToSettings(cfg.Broker.Driver), log.ZL)
	switch cfg.Broker.Driver {
	case config.BrokerDriverRabbitMQ:
		return rabbitmq.NewRabbitMQBroker(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cb, log.ZL)
	default:
		return redis.NewRedisBroker(ctx, cfg.ToBrokerConfig(), cb, log.ZL)
	}
}

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	default:
		return gin.ReleaseMode
	}
}
