package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the therapy session service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	TavusAPIBaseURL string
	TavusAPIKey     string

	SessionCooldown        time.Duration
	SessionMaxDuration     time.Duration
	SessionRehydrateWindow time.Duration

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	AudioGraceDelay time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "videoconv"),
		AllowAnyOrigin:   false,
		TavusAPIBaseURL:  envOrDefault("TAVUS_API_BASE_URL", "https://tavusapi.com/v2"),
		TavusAPIKey:      envTrimmed("TAVUS_API_KEY"),
		DatabaseURL:      envTrimmed("DATABASE_URL"),

		ShutdownTimeout: 15 * time.Second,
		// The remote API keeps tearing a conversation down for a while after
		// it ends; starting a new one inside that window races the teardown.
		SessionCooldown:        30 * time.Second,
		SessionMaxDuration:     30 * time.Minute,
		SessionRehydrateWindow: time.Hour,
		RetryMaxAttempts:       3,
		RetryBaseDelay:         5 * time.Second,
		RetryMaxDelay:          30 * time.Second,
		AudioGraceDelay:        2 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionCooldown, err = durationFromEnv("SESSION_COOLDOWN", cfg.SessionCooldown)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionMaxDuration, err = durationFromEnv("SESSION_MAX_DURATION", cfg.SessionMaxDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionRehydrateWindow, err = durationFromEnv("SESSION_REHYDRATE_WINDOW", cfg.SessionRehydrateWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryMaxAttempts, err = intFromEnv("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBaseDelay, err = durationFromEnv("RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryMaxDelay, err = durationFromEnv("RETRY_MAX_DELAY", cfg.RetryMaxDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioGraceDelay, err = durationFromEnv("AUDIO_GRACE_DELAY", cfg.AudioGraceDelay)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.TavusAPIBaseURL) == "" {
		return Config{}, fmt.Errorf("TAVUS_API_BASE_URL must not be empty")
	}
	if cfg.SessionCooldown < 0 {
		return Config{}, fmt.Errorf("SESSION_COOLDOWN must be >= 0")
	}
	if cfg.SessionMaxDuration < time.Minute {
		return Config{}, fmt.Errorf("SESSION_MAX_DURATION must be at least 1m")
	}
	if cfg.SessionRehydrateWindow <= 0 {
		return Config{}, fmt.Errorf("SESSION_REHYDRATE_WINDOW must be positive")
	}
	if cfg.RetryMaxAttempts < 0 {
		return Config{}, fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 0")
	}
	if cfg.RetryBaseDelay <= 0 {
		return Config{}, fmt.Errorf("RETRY_BASE_DELAY must be positive")
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return Config{}, fmt.Errorf("RETRY_MAX_DELAY must be >= RETRY_BASE_DELAY")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
