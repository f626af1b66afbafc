package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	StatusPort  string
	DatabaseURL string
	RedisURL    string
	DataDir     string
	JWTSecret   string
	TokenExpiry time.Duration
	UserID      string

	HealthURL string
	FlushURL  string

	HeartbeatInterval time.Duration
	HeartbeatCeiling  int
	MaxPushRetries    int
	DrainBatchSize    int
	BatchPause        time.Duration
	QueueMaxAge       time.Duration
	CacheMaxAge       time.Duration
}

func LoadConfig() (*Config, error) {
	expiry, err := getDuration("TOKEN_EXPIRY", 24*time.Hour)
	if err != nil {
		return nil, errors.New("invalid TOKEN_EXPIRY format")
	}
	heartbeat, err := getDuration("HEARTBEAT_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, errors.New("invalid HEARTBEAT_INTERVAL format")
	}

	cfg := &Config{
		StatusPort:  getEnv("STATUS_PORT", "8090"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		DataDir:     getEnv("DATA_DIR", "./data"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenExpiry: expiry,
		UserID:      getEnv("USER_ID", "floor-operator"),

		HealthURL: os.Getenv("HEALTH_URL"),
		FlushURL:  os.Getenv("FLUSH_URL"),

		HeartbeatInterval: heartbeat,
		HeartbeatCeiling:  getInt("HEARTBEAT_CEILING", 10),
		MaxPushRetries:    getInt("MAX_PUSH_RETRIES", 5),
		DrainBatchSize:    getInt("DRAIN_BATCH_SIZE", 5),
		BatchPause:        200 * time.Millisecond,
		QueueMaxAge:       24 * time.Hour,
		CacheMaxAge:       7 * 24 * time.Hour,
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(value)
}
