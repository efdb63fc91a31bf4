// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr         string
	DatabaseURL  string
	KafkaBrokers []string
	JWTSecret    string
	TokenTTL     time.Duration
	LogLevel     string

	WebhookEnabled bool
	WebhookURL     string
	WebhookAPIKey  string
	WebhookTimeout time.Duration
}

func Load() (Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Addr:           getenv("ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTL:       getduration("TOKEN_TTL", time.Hour),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		WebhookEnabled: getbool("WEBHOOK_ENABLED", false),
		WebhookURL:     os.Getenv("WEBHOOK_URL"),
		WebhookAPIKey:  os.Getenv("WEBHOOK_API_KEY"),
		WebhookTimeout: getduration("WEBHOOK_TIMEOUT", 5*time.Second),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getduration(key string, fallback time.Duration) time.Duration {
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
