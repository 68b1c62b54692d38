package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Image store backends.
const (
	ImageStoreMemory = "memory"
	ImageStoreGCS    = "gcs"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	RateLimitPerMinute int

	// Reverse geocoding.
	GeocodeTimeout       time.Duration
	GeocodeFallbackDelay time.Duration
	GeocodeMaxConcurrent int
	GeocodeLanguage      string
	GeocodeSettleMin     time.Duration
	GeocodeSettleMax     time.Duration
	GeocodeRetryMin      time.Duration
	GeocodeRetryMax      time.Duration
	LocationIQKey        string
	MapboxToken          string

	GestureDragThreshold float64

	// Pin storage. An empty DatabaseURL keeps pins in memory.
	DatabaseURL        string
	ImageStore         string
	GCSBucket          string
	DeletePasswordHash string

	// Pin lifecycle events.
	KafkaEnabled  bool
	KafkaBrokers  []string
	KafkaPinTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		GeocodeLanguage:    sharedcfg.EnvOrDefault("GEOCODE_LANGUAGE", "en"),
		LocationIQKey:      os.Getenv("LOCATIONIQ_KEY"),
		MapboxToken:        os.Getenv("MAPBOX_TOKEN"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		ImageStore:         sharedcfg.EnvOrDefault("IMAGE_STORE", ImageStoreMemory),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		DeletePasswordHash: os.Getenv("DELETE_PASSWORD_HASH"),
		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaPinTopic:      sharedcfg.EnvOrDefault("KAFKA_PIN_TOPIC", "pin-events"),
	}

	durations := []struct {
		key      string
		fallback string
		positive bool
		dst      *time.Duration
	}{
		{"GEOCODE_TIMEOUT", "5s", true, &cfg.GeocodeTimeout},
		{"GEOCODE_FALLBACK_DELAY", "1s", false, &cfg.GeocodeFallbackDelay},
		{"GEOCODE_SETTLE_MIN", "1s", false, &cfg.GeocodeSettleMin},
		{"GEOCODE_SETTLE_MAX", "3s", false, &cfg.GeocodeSettleMax},
		{"GEOCODE_RETRY_MIN", "2s", true, &cfg.GeocodeRetryMin},
		{"GEOCODE_RETRY_MAX", "4s", true, &cfg.GeocodeRetryMax},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.fallback, d.positive); err != nil {
			return nil, err
		}
	}

	if cfg.GeocodeMaxConcurrent, err = parseInt("GEOCODE_MAX_CONCURRENT", 1, 1); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = parseInt("RATE_LIMIT_PER_MINUTE", 60, 0); err != nil {
		return nil, err
	}
	if cfg.GestureDragThreshold, err = parseThreshold(); err != nil {
		return nil, err
	}

	if cfg.GeocodeSettleMax < cfg.GeocodeSettleMin {
		return nil, errors.New("GEOCODE_SETTLE_MAX must not be less than GEOCODE_SETTLE_MIN")
	}
	if cfg.GeocodeRetryMax < cfg.GeocodeRetryMin {
		return nil, errors.New("GEOCODE_RETRY_MAX must not be less than GEOCODE_RETRY_MIN")
	}
	switch cfg.ImageStore {
	case ImageStoreMemory:
	case ImageStoreGCS:
		if cfg.GCSBucket == "" {
			return nil, errors.New("IMAGE_STORE is gcs but GCS_BUCKET is not set")
		}
	default:
		return nil, fmt.Errorf("invalid IMAGE_STORE %q: must be memory or gcs", cfg.ImageStore)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaPinTopic == "" {
			return nil, errors.New("KAFKA_PIN_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parseDuration(key, fallback string, positive bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d < 0 || (positive && d == 0) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, fallback, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, minimum)
	}
	return n, nil
}

func parseThreshold() (float64, error) {
	s := os.Getenv("GESTURE_DRAG_THRESHOLD")
	if s == "" {
		return 5, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, errors.New("invalid GESTURE_DRAG_THRESHOLD: must be a positive number of pixels")
	}
	return f, nil
}
