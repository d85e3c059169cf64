package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr string
}

type RemoteConfig struct {
	URL   string
	Token string
}

type NATSConfig struct {
	Enabled bool
	Stream  string
	Subject string
	Durable string
}

type EngineConfig struct {
	MinWatchSeconds     float64
	CompletionThreshold float64
	MaxRecords          int
	FlushTimeout        time.Duration
	SessionTTL          time.Duration
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	HTTP        HTTPConfig
	DBPath      string
	JWTSecret   []byte
	Remote      RemoteConfig
	NATS        NATSConfig
	Engine      EngineConfig
	RateLimit   RateLimitConfig
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: envStr("SERVICE_NAME", "watchsync"),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			Addr: envStr("HTTP_ADDR", ":8080"),
		},
		DBPath: envStr("WATCHSYNC_DB_PATH", "watchsync.db"),
		Remote: RemoteConfig{
			URL:   strings.TrimSpace(os.Getenv("REMOTE_PROGRESS_URL")),
			Token: strings.TrimSpace(os.Getenv("REMOTE_PROGRESS_TOKEN")),
		},
		NATS: NATSConfig{
			Enabled: envBool("NATS_ENABLED", false),
			Stream:  envStr("NATS_STREAM", "WATCHSYNC_EVENTS"),
			Subject: envStr("NATS_SUBJECT", "watchsync.surface.events"),
			Durable: envStr("NATS_DURABLE", "watchsync_surface"),
		},
		Engine: EngineConfig{
			MinWatchSeconds:     envFloat("MIN_WATCH_SECONDS", 10),
			CompletionThreshold: envFloat("COMPLETION_THRESHOLD", 0.90),
			MaxRecords:          envInt("MAX_RECORDS", 20),
			FlushTimeout:        envDuration("FLUSH_TIMEOUT", 3*time.Second),
			SessionTTL:          envDuration("SESSION_TTL", 30*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RPS:   envFloat("RATE_LIMIT_RPS", 50),
			Burst: envInt("RATE_LIMIT_BURST", 100),
		},
	}

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return AppConfig{}, errors.New("JWT_SECRET is required")
	}
	cfg.JWTSecret = []byte(secret)

	if cfg.Remote.URL == "" {
		return AppConfig{}, errors.New("REMOTE_PROGRESS_URL is required")
	}
	if cfg.Engine.CompletionThreshold <= 0 || cfg.Engine.CompletionThreshold > 1 {
		return AppConfig{}, errors.New("COMPLETION_THRESHOLD must be in (0,1]")
	}
	return cfg, nil
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes"
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
