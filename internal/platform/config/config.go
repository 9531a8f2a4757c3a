package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv keeps main lean; every
// value has a development default so the binary starts with no environment.
type Server struct {
	Addr          string
	JWTSigningKey string

	// PostgresURL is empty for in-memory mode (tests, local demo).
	PostgresURL string
	// RedisURL is empty when the in-memory rate-limit store suffices.
	RedisURL string

	// ProcessorWebhookSecret signs inbound payment-processor events.
	ProcessorWebhookSecret string
	// ProcessorSignatureTolerance bounds webhook timestamp skew.
	ProcessorSignatureTolerance time.Duration

	// KafkaBrokers enables the audit mirror publisher when non-empty.
	KafkaBrokers []string
	// KafkaAuditTopic receives mirrored audit records.
	KafkaAuditTopic string

	// AuditQueueCapacity bounds the in-process audit retry queue.
	AuditQueueCapacity int
	// AuditMaxAttempts is the retry ceiling before an audit record is
	// abandoned loudly.
	AuditMaxAttempts int
	// AuditRetryBase is the exponential backoff base delay.
	AuditRetryBase time.Duration
	// AuditDrainBatch is the max records retried per worker cycle.
	AuditDrainBatch int

	// RateLimitJanitorInterval controls expired-window cleanup.
	RateLimitJanitorInterval time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("TALLY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	webhookSecret := os.Getenv("PROCESSOR_WEBHOOK_SECRET")
	if webhookSecret == "" {
		webhookSecret = "whsec-dev-only"
	}

	cfg := Server{
		Addr:                        addr,
		JWTSigningKey:               jwtSigningKey,
		PostgresURL:                 os.Getenv("DATABASE_URL"),
		RedisURL:                    os.Getenv("REDIS_URL"),
		ProcessorWebhookSecret:      webhookSecret,
		ProcessorSignatureTolerance: envDuration("PROCESSOR_SIGNATURE_TOLERANCE", 5*time.Minute),
		KafkaAuditTopic:             envString("KAFKA_AUDIT_TOPIC", "tally.audit.records"),
		AuditQueueCapacity:          envInt("AUDIT_QUEUE_CAPACITY", 1000),
		AuditMaxAttempts:            envInt("AUDIT_MAX_ATTEMPTS", 3),
		AuditRetryBase:              envDuration("AUDIT_RETRY_BASE", 500*time.Millisecond),
		AuditDrainBatch:             envInt("AUDIT_DRAIN_BATCH", 50),
		RateLimitJanitorInterval:    envDuration("RATELIMIT_JANITOR_INTERVAL", time.Minute),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitCSV(brokers)
	}

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
