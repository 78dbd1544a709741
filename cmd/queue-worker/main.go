package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cuongbtq/dep-queue-worker/internal/config"
	"github.com/cuongbtq/dep-queue-worker/internal/ops"
	"github.com/cuongbtq/dep-queue-worker/internal/worker"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/report"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/sandbox"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/storage"
	"github.com/cuongbtq/dep-queue-worker/shared/logger"
	"github.com/cuongbtq/dep-queue-worker/shared/postgresql"
	"github.com/cuongbtq/dep-queue-worker/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const usage = "USAGE: queue-worker [-config path] <scenario> <threads> [drain]"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// cliArgs are the positional arguments of the worker
type cliArgs struct {
	scenario int
	threads  int
	mode     domain.Mode
}

func parseArgs(args []string) (*cliArgs, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, errors.New(usage)
	}

	scenario, err := strconv.Atoi(args[0])
	if err != nil || scenario < 0 {
		return nil, fmt.Errorf("invalid scenario %q: must be a non-negative integer", args[0])
	}

	threads, err := strconv.Atoi(args[1])
	if err != nil || threads <= 0 {
		return nil, fmt.Errorf("invalid threads %q: must be a positive integer", args[1])
	}

	return &cliArgs{
		scenario: scenario,
		threads:  threads,
		mode:     domain.ModeFromArgs(args),
	}, nil
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("QUEUE_WORKER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args, err := parseArgs(flag.Args())
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	// the scenario only labels logs and the ops endpoint; the queue is shared
	appLogger.Info("Starting queue worker",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.Int("scenario", args.scenario),
		slog.Int("threads", args.threads),
		slog.String("mode", args.mode.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	var ledger *storage.Storage
	var dbClient *postgresql.Client
	if cfg.Database.Enabled() {
		dbClient, ledger = initLedger(ctx, &cfg.Database, appLogger.Logger)
		if dbClient != nil {
			defer dbClient.Close()
		}
	}

	handler, err := worker.NewHandler(args.mode, initHandlerDeps(cfg, ledger, appLogger.Logger))
	if err != nil {
		return err
	}

	dial := rabbitDialer(*configPath, &cfg.RabbitMQ, appLogger.Logger)

	supervisor := worker.NewSupervisor(&worker.SupervisorConfig{
		Slots:    args.threads,
		Cooldown: cfg.Worker.RestartCooldown,
		Logger:   appLogger.Logger,
		NewConsumer: func(slot int) worker.Runner {
			return worker.NewConsumer(&worker.ConsumerConfig{
				Slot:     slot,
				Mode:     args.mode,
				Hostname: hostname,
				Dial:     dial,
				Handler:  handler,
				Logger:   appLogger.Logger,
			})
		},
	})

	if cfg.Ops.Port != 0 {
		deps := &ops.Dependencies{
			Logger:     appLogger.Logger,
			Supervisor: supervisor,
			Service:    cfg.App.Name,
			Mode:       args.mode.String(),
			Scenario:   args.scenario,
		}
		if dbClient != nil {
			deps.Ledger = dbClient
			deps.Failures = ledger
		}
		if cfg.App.Environment == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		opsServer := ops.NewServer(cfg.Ops.Port, ops.SetupRouter(deps), cfg.Ops.ShutdownTimeout, appLogger.Logger)
		go func() {
			if err := opsServer.Run(ctx); err != nil {
				appLogger.Error("Ops server error", slog.Any("error", err))
			}
		}()
	}

	if err := supervisor.Run(ctx); err != nil {
		return err
	}

	appLogger.Info("Exiting due to interrupt")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initHandlerDeps wires the sandbox, reporter and optional ledger
func initHandlerDeps(cfg *config.Config, ledger *storage.Storage, logger *slog.Logger) *worker.HandlerDeps {
	deps := &worker.HandlerDeps{
		Executor: sandbox.New(&sandbox.Config{
			Binary:    cfg.Worker.Binary,
			Args:      cfg.Worker.BinaryArgs,
			Timeout:   cfg.Worker.JobTimeout,
			KillGrace: cfg.Worker.KillGrace,
		}, logger),
		Reporter: report.New(logger, report.WithRoot(cfg.Worker.ErrorRoot)),
		Timeout:  cfg.Worker.JobTimeout,
		Logger:   logger,
	}
	if ledger != nil {
		deps.Recorder = ledger
	}
	return deps
}

// initLedger connects the failure ledger. The worker runs without it when
// the database is unreachable at startup.
func initLedger(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, *storage.Storage) {
	client, err := postgresql.NewClient(ctx, &postgresql.Config{
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
	}, logger)
	if err != nil {
		logger.Warn("Failure ledger disabled", slog.Any("error", err))
		return nil, nil
	}

	ledger := storage.NewStorage(client.GetDB(), logger)
	if err := ledger.EnsureSchema(ctx); err != nil {
		logger.Warn("Failure ledger disabled", slog.Any("error", err))
		client.Close()
		return nil, nil
	}

	return client, ledger
}

// rabbitDialer opens a private RabbitMQ session per consumer slot. Broker
// settings are re-read on every dial so rotated credentials are picked up
// when the pool restarts.
func rabbitDialer(configPath string, startup *config.RabbitMQConfig, logger *slog.Logger) worker.Dialer {
	return func(ctx context.Context, slot int) (worker.Session, error) {
		slotLogger := logger.With(slog.Int("slot", slot))
		cfg := currentBrokerConfig(configPath, startup, slotLogger)

		client, err := rabbitmq.NewClient(ctx, sessionConfig(cfg), slotLogger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// currentBrokerConfig returns the broker section as it is on disk now,
// or the startup settings when the file can no longer be read
func currentBrokerConfig(configPath string, startup *config.RabbitMQConfig, logger *slog.Logger) *config.RabbitMQConfig {
	cfg, err := config.LoadRabbitMQ(configPath)
	if err != nil {
		logger.Warn("Failed to reload broker settings, using startup values",
			slog.String("config", configPath),
			slog.Any("error", err),
		)
		return startup
	}
	if cfg.Host == "" {
		logger.Warn("Reloaded broker settings have no host, using startup values",
			slog.String("config", configPath),
		)
		return startup
	}
	return cfg
}

func sessionConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		QueueName:         cfg.Queue.Name,
		QueueDurable:      cfg.Queue.IsDurable(),
		PrefetchCount:     cfg.Consumer.PrefetchCount,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
	}
}
