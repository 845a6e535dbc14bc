package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration from environment variables.
type Config struct {
	Port                string
	APIKey              string
	AllowInsecureNoAuth bool
	LogFormat           string // "json" or "text"

	// Webhook verification
	WebhookSecret string

	// Record store backend: "memory", "dynamodb", or "redis"
	StoreBackend   string
	AWSRegion      string
	AWSEndpointURL string // for LocalStack
	DynamoDBTable  string
	RedisAddr      string

	// Idempotency record lifetimes
	InProgressTTL time.Duration
	CompletedTTL  time.Duration

	// Background scheduling
	SweepSchedule string // robfig/cron spec, e.g. "@every 30s"
	ReapInterval  time.Duration

	// Optional SQS notification source; empty disables it
	SQSQueueURL string

	// Terminal event types for terminal-without-match detection
	TerminalEvents []string

	// OpenTelemetry
	OTELEnabled  bool
	OTELEndpoint string
}

// LoadConfig reads configuration from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		Port:                getEnv("OPCOORD_PORT", "8080"),
		APIKey:              getEnv("OPCOORD_API_KEY", ""),
		AllowInsecureNoAuth: getEnvBool("OPCOORD_ALLOW_INSECURE_NO_AUTH", false),
		LogFormat:           getEnv("OPCOORD_LOG_FORMAT", "json"),
		WebhookSecret:       getEnv("OPCOORD_WEBHOOK_SECRET", ""),
		StoreBackend:        getEnv("OPCOORD_STORE", "memory"),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL:      getEnv("AWS_ENDPOINT_URL", ""), // empty = real AWS
		DynamoDBTable:       getEnv("DYNAMODB_TABLE", "opcoord-records"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		InProgressTTL:       getEnvDuration("OPCOORD_IN_PROGRESS_TTL", 5*time.Minute),
		CompletedTTL:        getEnvDuration("OPCOORD_COMPLETED_TTL", 24*time.Hour),
		SweepSchedule:       getEnv("OPCOORD_SWEEP_SCHEDULE", "@every 30s"),
		ReapInterval:        getEnvDuration("OPCOORD_REAP_INTERVAL", 5*time.Second),
		SQSQueueURL:         getEnv("OPCOORD_SQS_QUEUE_URL", ""),
		TerminalEvents:      splitNonEmpty(getEnv("OPCOORD_TERMINAL_EVENTS", "")),
		OTELEnabled:         getEnvBool("OPCOORD_OTEL_ENABLED", false),
		OTELEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
