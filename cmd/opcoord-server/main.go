package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/opcoord/opcoord/internal/api"
	"github.com/opcoord/opcoord/internal/core"
	"github.com/opcoord/opcoord/internal/idempotency"
	"github.com/opcoord/opcoord/internal/ingest"
	"github.com/opcoord/opcoord/internal/invoker"
	"github.com/opcoord/opcoord/internal/metrics"
	"github.com/opcoord/opcoord/internal/scheduler"
	"github.com/opcoord/opcoord/internal/server"
	"github.com/opcoord/opcoord/internal/state"
	"github.com/opcoord/opcoord/internal/tracing"
	"github.com/opcoord/opcoord/internal/wait"
)

func main() {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg := server.LoadConfig()
	logger := newLogger(cfg.LogFormat)
	slog.SetDefault(logger)

	if cfg.APIKey == "" && !cfg.AllowInsecureNoAuth {
		logger.Error("refusing to start without API authentication",
			"hint", "set OPCOORD_API_KEY or OPCOORD_ALLOW_INSECURE_NO_AUTH=true for local development")
		os.Exit(1)
	}
	if cfg.WebhookSecret == "" {
		logger.Error("refusing to start without a webhook secret", "hint", "set OPCOORD_WEBHOOK_SECRET")
		os.Exit(1)
	}

	shutdown, err := tracing.Init(context.Background(), tracing.Config{
		ServiceName:    "opcoord",
		ServiceVersion: api.Version,
		Enabled:        cfg.OTELEnabled || cfg.OTELEndpoint != "",
		Endpoint:       cfg.OTELEndpoint,
	})
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdown(context.Background()) }()

	store, sqsClient, err := buildStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize record store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("record store ready", "backend", cfg.StoreBackend)

	clock := core.RealClock()
	executor := core.NewExecutor(clock, logger)
	manager := idempotency.NewManager(store, executor, clock, logger,
		idempotency.WithTTLs(cfg.InProgressTTL, cfg.CompletedTTL))

	broker := wait.NewBroker()
	defer broker.Close()

	coordinator := wait.NewCoordinator(wait.Config{
		Secret:         []byte(cfg.WebhookSecret),
		TerminalEvents: cfg.TerminalEvents,
	}, executor, clock, logger, broker)

	registry := invoker.NewRegistry(logger)
	registry.Register("http.request", invoker.NewHTTPInvoker(&http.Client{Timeout: 30 * time.Second}).Invoke)

	metrics.Init(api.Version)

	sched := scheduler.New(manager, coordinator, cfg.SweepSchedule, cfg.ReapInterval, logger)
	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	if cfg.SQSQueueURL != "" {
		source := ingest.NewSQSSource(sqsClient, cfg.SQSQueueURL, coordinator, logger)
		source.Start()
		defer source.Stop()
		logger.Info("SQS notification source ready", "queue_url", cfg.SQSQueueURL)
	}

	router := server.NewRouter(server.Deps{
		Store:       store,
		Manager:     manager,
		Coordinator: coordinator,
		Registry:    registry,
		Publisher:   broker,
		Subscriber:  broker,
	}, logger, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("opcoord server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func newLogger(format string) *slog.Logger {
	if format == "text" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// buildStore constructs the configured record store. The SQS client is built
// alongside the AWS config because the notification source shares it.
func buildStore(cfg server.Config, logger *slog.Logger) (state.Store, *awssqs.Client, error) {
	var sqsClient *awssqs.Client

	switch cfg.StoreBackend {
	case "dynamodb":
		awsCfg, err := buildAWSConfig(cfg)
		if err != nil {
			return nil, nil, err
		}
		sqsClient = awssqs.NewFromConfig(awsCfg)
		dynamoStore := state.NewDynamoDBStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable)
		if err := dynamoStore.EnsureTable(context.Background()); err != nil {
			return nil, nil, err
		}
		logger.Info("DynamoDB table ready", "table", cfg.DynamoDBTable)
		return dynamoStore, sqsClient, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if cfg.SQSQueueURL != "" {
			awsCfg, err := buildAWSConfig(cfg)
			if err != nil {
				return nil, nil, err
			}
			sqsClient = awssqs.NewFromConfig(awsCfg)
		}
		return state.NewRedisStore(client), sqsClient, nil

	default:
		if cfg.SQSQueueURL != "" {
			awsCfg, err := buildAWSConfig(cfg)
			if err != nil {
				return nil, nil, err
			}
			sqsClient = awssqs.NewFromConfig(awsCfg)
		}
		return state.NewMemoryStore(nil), sqsClient, nil
	}
}

func buildAWSConfig(cfg server.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSEndpointURL != "" {
		// LocalStack: static test credentials and a custom endpoint.
		opts = append(opts,
			awsconfig.WithBaseEndpoint(cfg.AWSEndpointURL),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		)
	}
	return awsconfig.LoadDefaultConfig(context.Background(), opts...)
}
