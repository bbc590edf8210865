// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  []string
	AuditTopic    string
	JWTSigningKey string
	PIISecret     string
	OrderTTL      time.Duration
	SweepInterval time.Duration
}

// FromEnv reads EXAMREG_* environment variables, falling back to development
// defaults. Secrets default to values that are obviously not for production.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("EXAMREG_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("EXAMREG_DATABASE_URL"),
		RedisURL:      os.Getenv("EXAMREG_REDIS_URL"),
		AuditTopic:    envOr("EXAMREG_AUDIT_TOPIC", "examreg.audit"),
		JWTSigningKey: envOr("EXAMREG_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PIISecret:     envOr("EXAMREG_PII_SECRET", "dev-pii-secret-change-in-production"),
		OrderTTL:      envDuration("EXAMREG_ORDER_TTL", 30*time.Minute),
		SweepInterval: envDuration("EXAMREG_SWEEP_INTERVAL", time.Minute),
	}
	if brokers := os.Getenv("EXAMREG_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
