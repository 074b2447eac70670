package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the gateway, resolved once at
// startup and read-only thereafter.
type Config struct {
	GatewayAddr       string
	AuthServiceURL    string // e.g. http://auth:5007
	ConversationURL   string // e.g. http://conversation:5000
	UploadServiceURL  string // e.g. http://upload:5002
	APIKey            string // shared service-to-service secret
	LogLevel          string
	DownstreamTimeout time.Duration
	MaxBodyBytes      int64
	Upload            UploadConfig
	RateLimit         RateLimitConfig
}

// UploadConfig sizes the upload tracker's worker pool and retention.
type UploadConfig struct {
	Workers      int
	QueueDepth   int
	JobTimeout   time.Duration
	HistoryLimit int
}

// RateLimitConfig holds token bucket parameters for per-IP rate limiting.
type RateLimitConfig struct {
	Rate  float64
	Burst int
}

// Load reads configuration from environment variables, falling back to defaults.
func Load() Config {
	return Config{
		GatewayAddr:       envOr("GATEWAY_ADDR", ":8080"),
		AuthServiceURL:    envOr("AUTH_SERVICE_URL", "http://localhost:5007"),
		ConversationURL:   envOr("CONVERSATION_SERVICE_URL", "http://localhost:5000"),
		UploadServiceURL:  envOr("UPLOAD_SERVICE_URL", "http://localhost:5002"),
		APIKey:            envOr("API_KEY", ""),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		DownstreamTimeout: envDuration("DOWNSTREAM_TIMEOUT", 10*time.Second),
		MaxBodyBytes:      int64(envInt("MAX_BODY_BYTES", 32<<20)),
		Upload: UploadConfig{
			Workers:      envInt("UPLOAD_WORKERS", 4),
			QueueDepth:   envInt("UPLOAD_QUEUE_DEPTH", 64),
			JobTimeout:   envDuration("UPLOAD_TIMEOUT", 5*time.Minute),
			HistoryLimit: envInt("UPLOAD_HISTORY_LIMIT", 1024),
		},
		RateLimit: RateLimitConfig{
			Rate:  envFloat("RATE_LIMIT_RATE", 100),
			Burst: envInt("RATE_LIMIT_BURST", 20),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid float env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return f
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return d
	}
	return fallback
}
