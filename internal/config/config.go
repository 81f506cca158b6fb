package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	PostgresDSN   string
	RedisAddr     string
	KafkaBrokers  []string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		AppPort:       os.Getenv("APP_PORT"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		KafkaBrokers:  []string{os.Getenv("KAFKA_BROKER")},
		AccessSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
		RefreshSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
		AccessTTL:     parseDuration(os.Getenv("ACCESS_TOKEN_TTL"), time.Minute),
		RefreshTTL:    parseDuration(os.Getenv("REFRESH_TOKEN_TTL"), 2*time.Minute),
	}

	if cfg.AppPort == "" {
		cfg.AppPort = "8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=auth sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		slog.Error("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must be set")
		os.Exit(1)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		slog.Error("access and refresh secrets must differ")
		os.Exit(1)
	}

	slog.Info("config loaded",
		"app_port", cfg.AppPort,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"access_ttl", cfg.AccessTTL,
		"refresh_ttl", cfg.RefreshTTL)
	return cfg
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration, using default", "value", raw, "default", fallback)
		return fallback
	}
	return d
}
