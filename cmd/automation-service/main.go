package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/api/handler"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/api/router"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/engine"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/notify"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/orchestrator"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/registry"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/store"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/config"
	"github.com/iBHunt91/FossaWorkV2-sub002/shared/logger"
	"github.com/iBHunt91/FossaWorkV2-sub002/shared/postgresql"
	"github.com/iBHunt91/FossaWorkV2-sub002/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("AUTOMATION_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/automation-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting automation service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ clients: one publish-only client for notification
	// events and one consuming client for engine progress reports.
	notifyClient, err := initRabbitMQ(&cfg.RabbitMQ, &cfg.RabbitMQ.Notifications, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifications RabbitMQ client: %w", err)
	}
	defer notifyClient.Close()

	progressClient, err := initRabbitMQ(&cfg.RabbitMQ, &cfg.RabbitMQ.Progress, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize progress RabbitMQ client: %w", err)
	}
	defer progressClient.Close()

	appLogger.Info("RabbitMQ connections established")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Job registry with bounded retention
	jobRegistry := registry.New(&registry.Config{
		Logger:        appLogger.Logger,
		MaxJobs:       cfg.Automation.MaxJobs,
		Retention:     cfg.Automation.JobRetention,
		SweepInterval: cfg.Automation.SweepInterval,
	})
	jobRegistry.Start(ctx)
	defer jobRegistry.Close()

	// Engine adapter
	engineClient := engine.NewClient(&engine.ClientConfig{
		BaseURL:        cfg.Automation.EngineBaseURL,
		RequestTimeout: cfg.Automation.RequestTimeout,
		RunTimeout:     cfg.Automation.RunTimeout,
	}, appLogger.Logger)

	// Orchestrator wiring
	orch := orchestrator.New(
		&orchestrator.Config{
			Logger:        appLogger.Logger,
			PortalBaseURL: cfg.Automation.PortalBaseURL,
		},
		jobRegistry,
		engineClient,
		notify.NewAMQPNotifier(notifyClient, appLogger.Logger),
		store.NewStorage(dbClient),
	)
	orch.Start(ctx)

	// Progress reports from the engine feed back into the orchestrator
	progressConsumer := engine.NewProgressConsumer(progressClient, orch.HandleProgress, appLogger.Logger)
	if err := progressConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress consumer: %w", err)
	}
	defer progressConsumer.Stop()

	// HTTP server
	r := router.SetupRouter(&handler.Dependencies{
		Logger:  appLogger.Logger,
		Service: orch,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP server listening",
			slog.Int("port", cfg.Server.Port),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	appLogger.Info("Automation service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("HTTP server error",
			slog.Any("error", err),
		)
		return err
	}

	// Stop accepting requests, then cancel in-flight executions
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("HTTP server shutdown error",
			slog.Any("error", err),
		)
	}

	cancel()

	appLogger.Info("Automation service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes one RabbitMQ client for the given topology
func initRabbitMQ(cfg *config.RabbitMQConfig, topo *config.TopologyConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       topo.Exchange,
		ExchangeType:       topo.ExchangeType,
		ExchangeDurable:    topo.Durable,
		ExchangeAutoDelete: topo.AutoDelete,
		QueueName:          topo.Queue,
		QueueDurable:       topo.Durable,
		QueueAutoDelete:    topo.AutoDelete,
		BindingKey:         topo.BindingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
