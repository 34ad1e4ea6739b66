package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime settings, sourced from the environment with
// an optional .env file for local development.
type Config struct {
	Port        string
	Environment string

	DatabaseURL string
	RedisURL    string
	NatsURL     string

	JWTSecret     string
	EncryptionKey string

	ShopifyWebhookSecret string
	SquareSignatureKey   string
	CloverAuthCode       string

	ThresholdReqPerSec float64
	ScaleDownIdleSecs  int
	HotWorkers         int

	ReconcileIntervalMins int
}

// Load reads configuration. Missing required settings fail fast rather
// than surfacing later as runtime errors.
func Load() (*Config, error) {
	// Best effort; the file is absent in deployed environments.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("REDIS_URL", "redis://localhost:6379")
	v.SetDefault("THRESHOLD_REQ_PER_SEC", 5.0)
	v.SetDefault("SCALE_DOWN_IDLE_SECS", 60)
	v.SetDefault("HOT_WORKERS", 4)
	v.SetDefault("RECONCILE_INTERVAL_MINS", 60)

	cfg := &Config{
		Port:        v.GetString("PORT"),
		Environment: v.GetString("ENVIRONMENT"),

		DatabaseURL: v.GetString("DATABASE_URL"),
		RedisURL:    v.GetString("REDIS_URL"),
		NatsURL:     v.GetString("NATS_URL"),

		JWTSecret:     v.GetString("JWT_SECRET"),
		EncryptionKey: v.GetString("ENCRYPTION_KEY"),

		ShopifyWebhookSecret: v.GetString("SHOPIFY_WEBHOOK_SECRET"),
		SquareSignatureKey:   v.GetString("SQUARE_SIGNATURE_KEY"),
		CloverAuthCode:       v.GetString("CLOVER_AUTH_CODE"),

		ThresholdReqPerSec: v.GetFloat64("THRESHOLD_REQ_PER_SEC"),
		ScaleDownIdleSecs:  v.GetInt("SCALE_DOWN_IDLE_SECS"),
		HotWorkers:         v.GetInt("HOT_WORKERS"),

		ReconcileIntervalMins: v.GetInt("RECONCILE_INTERVAL_MINS"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}
