package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/medimeet/appointment-api/internal/config"
	"github.com/medimeet/appointment-api/internal/email"
	"github.com/medimeet/appointment-api/internal/repository/postgres"
	"github.com/medimeet/appointment-api/internal/worker"
	"github.com/medimeet/appointment-api/pkg/circuitbreaker"
	"github.com/medimeet/appointment-api/pkg/logger"
	"github.com/medimeet/appointment-api/pkg/messaging"
	"github.com/medimeet/appointment-api/pkg/messaging/rabbitmq"
	"github.com/medimeet/appointment-api/pkg/messaging/redis"
	"github.com/medimeet/appointment-api/pkg/metrics"
	outbox "github.com/medimeet/appointment-api/pkg/worker"
)

const healthAddr = ":8081"

func setupHealthCheck(ready func(ctx context.Context) error, gatherer prometheus.Gatherer, logger *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: healthAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.Storage.Driver != config.StorageDriverPostgres {
		log.Fatal().Str("driver", cfg.Storage.Driver).Msg("Worker requires postgres storage")
	}
	if cfg.Broker.Driver == config.BrokerDriverNone {
		log.Fatal().Msg("Worker requires a message broker")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	}).WithFields(map[string]interface{}{"worker_id": generateWorkerID()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	// Initialize broker
	cb := circuitbreaker.NewCircuitBreaker(cfg.CircuitBreaker.ToSettings(cfg.Broker.Driver), appLogger.ZL)
	var broker messaging.Broker
	switch cfg.Broker.Driver {
	case config.BrokerDriverRabbitMQ:
		broker, err = rabbitmq.NewRabbitMQBroker(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cb, appLogger.ZL)
	default:
		broker, err = redis.NewRedisBroker(ctx, cfg.ToBrokerConfig(), cb, appLogger.ZL)
	}
	if err != nil {
		appLogger.Fatal(err, "Failed to create message broker", "driver", cfg.Broker.Driver)
	}
	defer broker.Close()

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	accountRepo := postgres.NewAccountRepository(baseRepo)

	registry := prometheus.NewRegistry()
	m := metrics.New("medimeet_worker").MustRegister(registry)

	// Initialize outbox processor
	processor, err := outbox.NewOutboxProcessor(
		outboxRepo,
		broker,
		cfg.Outbox.ToWorkerConfig(cfg.Broker.Channel),
		appLogger,
		m,
	)
	if err != nil {
		appLogger.Fatal(err, "Failed to create outbox processor")
	}

	// Initialize notifier
	var sender email.Sender
	if cfg.Email.Host != "" {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
	} else {
		appLogger.Warn("email.host is not set; notifications are discarded")
		sender = email.NewNopSender()
	}
	notifier := worker.NewNotifier(accountRepo, sender, appLogger, m)

	// Setup health check endpoints
	healthSrv := setupHealthCheck(baseRepo.Ping, registry, appLogger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("Shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := notifier.Run(ctx, broker, cfg.Broker.Channel); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error(err, "Notifier stopped")
			cancel()
		}
	}()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "Health check server forced to shutdown")
	}
}

func generateWorkerID() string {
	// Generate a unique worker ID using hostname and timestamp
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, time.Now().UnixNano())
}
