package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Input files.
	ObservationsPath string
	BoundariesPath   string
	ModelPath        string

	DefaultCity   string
	CityCacheSize int

	// Snapshot publishing (feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS).
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSnapshotTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var brokers []string
	if s := os.Getenv("KAFKA_BROKERS"); s != "" {
		brokers = sharedcfg.ParseBrokers(s)
	}
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ObservationsPath: sharedcfg.EnvOrDefault("OBSERVATIONS_PATH", "GlobalWeatherRepository.csv"),
		BoundariesPath:   sharedcfg.EnvOrDefault("BOUNDARIES_PATH", "ne_110m_admin_0_countries.geojson"),
		ModelPath:        sharedcfg.EnvOrDefault("MODEL_PATH", "forecasting_model.pkl"),

		DefaultCity:   sharedcfg.EnvOrDefault("DEFAULT_CITY", "London"),
		CityCacheSize: parseCityCacheSize(),

		KafkaEnabled:       kafkaEnabled,
		KafkaBrokers:       brokers,
		KafkaSnapshotTopic: sharedcfg.EnvOrDefault("KAFKA_SNAPSHOT_TOPIC", "country-climate-snapshots"),
	}

	if cfg.ObservationsPath == "" {
		return nil, errors.New("OBSERVATIONS_PATH is required")
	}
	if cfg.BoundariesPath == "" {
		return nil, errors.New("BOUNDARIES_PATH is required")
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("MODEL_PATH is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaSnapshotTopic == "" {
		return nil, errors.New("KAFKA_SNAPSHOT_TOPIC is required when Kafka is enabled")
	}

	return cfg, nil
}

func parseCityCacheSize() int {
	if s := os.Getenv("CITY_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 256
}
