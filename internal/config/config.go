package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/geodesy"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Tagging configuration.
	DistanceThreshold float64 // meters
	EarthRadius       float64 // meters
	DistanceUnit      geodesy.Unit
	Workers           int
	BinaryVar         string
	TagVar            string
	TrackCacheSize    int

	// Job status store; empty RedisAddr disables it.
	RedisAddr      string
	RedisStatusTTL time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	threshold, err := parseNonNegativeFloat("TAG_DISTANCE_THRESHOLD", domain.DefaultDistanceThreshold)
	if err != nil {
		return nil, err
	}
	radius, err := parsePositiveFloat("TAG_EARTH_RADIUS", geodesy.EarthRadius)
	if err != nil {
		return nil, err
	}
	unit, err := geodesy.ParseUnit(sharedcfg.EnvOrDefault("TAG_DISTANCE_UNIT", "degrees"))
	if err != nil {
		return nil, fmt.Errorf("invalid TAG_DISTANCE_UNIT: %w", err)
	}
	workers, err := parsePositiveInt("TAG_WORKERS", 1)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("TRACK_CACHE_SIZE", 32)
	if err != nil {
		return nil, err
	}
	statusTTL, err := parsePositiveDuration("REDIS_STATUS_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "storm-tag-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "storm-tag-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "storm-track-tagger"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		DistanceThreshold: threshold,
		EarthRadius:       radius,
		DistanceUnit:      unit,
		Workers:           workers,
		BinaryVar:         sharedcfg.EnvOrDefault("TAG_BINARY_VAR", "ETC_binary_tag"),
		TagVar:            sharedcfg.EnvOrDefault("TAG_OUTPUT_VAR", "ETC_int_tag"),
		TrackCacheSize:    cacheSize,

		RedisAddr:      sharedcfg.EnvOrDefault("REDIS_ADDR", ""),
		RedisStatusTTL: statusTTL,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.BinaryVar == cfg.TagVar {
		return nil, errors.New("TAG_OUTPUT_VAR must differ from TAG_BINARY_VAR")
	}

	return cfg, nil
}

// Tagger returns a tagging engine configured from cfg.
func (c *Config) Tagger() *domain.Tagger {
	return &domain.Tagger{
		Threshold: c.DistanceThreshold,
		Radius:    c.EarthRadius,
		Unit:      c.DistanceUnit,
		Workers:   c.Workers,
	}
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive number", key)
	}
	return v, nil
}

func parseNonNegativeFloat(key string, def float64) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative number", key)
	}
	return v, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return v, nil
}

func parsePositiveDuration(key string, def time.Duration) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return v, nil
}
