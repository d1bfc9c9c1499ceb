package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the screening service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	LinkTTL         time.Duration
	RecordingsDir   string
	DefaultVoiceID  string
	DefaultLanguage string

	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string

	GeminiAPIKey string
	GeminiModel  string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "screenline"),
		RecordingsDir:    envOrDefault("APP_RECORDINGS_DIR", "recordings"),
		// Warm premade voice used by the stock interviewer.
		DefaultVoiceID:    envOrDefault("ELEVENLABS_DEFAULT_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		DefaultLanguage:   envOrDefault("APP_DEFAULT_LANGUAGE", "en"),
		ElevenLabsAPIKey:  trimmedEnv("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL: envOrDefault("ELEVENLABS_API_BASE_URL", "https://api.elevenlabs.io"),
		GeminiAPIKey:      trimmedEnv("GEMINI_API_KEY"),
		GeminiModel:       envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		DatabaseURL:       trimmedEnv("DATABASE_URL"),
		ShutdownTimeout:   15 * time.Second,
		LinkTTL:           72 * time.Hour,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LinkTTL, err = durationFromEnv("APP_LINK_TTL", cfg.LinkTTL)
	if err != nil {
		return Config{}, err
	}

	if cfg.LinkTTL < time.Minute {
		return Config{}, fmt.Errorf("APP_LINK_TTL must be at least 1m")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}
