package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/atei-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers         []string
	KafkaSourceTopic     string
	KafkaSinkTopic       string
	KafkaGroupID         string
	KafkaMaxMessageBytes int
	HTTPAddr             string
	LogLevel             string
	LogFormat            string
	ShutdownTimeout      time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Terrain derivative service.
	TerrainURL       string
	TerrainTimeout   time.Duration
	TerrainCacheSize int // 0 disables the derived layer cache

	// Model parameters.
	DerivativeWorkers int
	Weights           domain.OverlayWeights
	Tables            domain.ReclassTables
	TablesFile        string
	Defaults          domain.JobDefaults
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

	terrainTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("TERRAIN_TIMEOUT", "30s"))
	if err != nil || terrainTimeout <= 0 {
		return nil, errors.New("invalid TERRAIN_TIMEOUT")
	}

	cacheSize, err := parseNonNegativeInt("TERRAIN_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	workers, err := parseNonNegativeInt("DERIVATIVE_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	maxBytes, err := parseNonNegativeInt("KAFKA_MAX_MESSAGE_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:     sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "atei-jobs"),
		KafkaSinkTopic:       sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "atei-results"),
		KafkaGroupID:         sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "atei-etl"),
		KafkaMaxMessageBytes: maxBytes,
		HTTPAddr:             sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:      shutdownTimeout,
		BatchSize:            batchSize,
		BatchFlushInterval:   flushInterval,

		TerrainURL:       sharedcfg.EnvOrDefault("TERRAIN_URL", "http://localhost:8081"),
		TerrainTimeout:   terrainTimeout,
		TerrainCacheSize: cacheSize,

		DerivativeWorkers: workers,
		Weights:           domain.DefaultWeights(),
		Tables:            domain.DefaultTables(),
		TablesFile:        os.Getenv("RECLASS_TABLES_FILE"),
	}

	if cfg.TablesFile != "" {
		if cfg.Weights, cfg.Tables, err = ReadModelFile(cfg.TablesFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadModelEnv(); err != nil {
		return nil, err
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
	if cfg.TerrainURL == "" {
		return nil, errors.New("TERRAIN_URL is required")
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("ATEI_WEIGHTS: %w", err)
	}
	if err := cfg.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("RECLASS_TABLES_FILE: %w", err)
	}

	return cfg, nil
}

// modelFile is the YAML layout of RECLASS_TABLES_FILE. Tables left out of
// the file keep their defaults.
type modelFile struct {
	Weights *domain.OverlayWeights `yaml:"weights"`
	Tables  domain.ReclassTables   `yaml:"tables"`
}

// ReadModelFile reads weights and reclass tables from a YAML file, starting
// from the defaults.
func ReadModelFile(path string) (domain.OverlayWeights, domain.ReclassTables, error) {
	weights, tables := domain.DefaultWeights(), domain.DefaultTables()
	data, err := os.ReadFile(path)
	if err != nil {
		return weights, tables, fmt.Errorf("RECLASS_TABLES_FILE: %w", err)
	}
	var f modelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return weights, tables, fmt.Errorf("RECLASS_TABLES_FILE: %w", err)
	}

	if f.Weights != nil {
		weights = *f.Weights
	}
	overlay := func(dst *domain.ReclassTable, src domain.ReclassTable) {
		if len(src.Rules) == 0 {
			return
		}
		if src.Name == "" {
			src.Name = dst.Name
		}
		*dst = src
	}
	overlay(&tables.Slope, f.Tables.Slope)
	overlay(&tables.Aspect, f.Tables.Aspect)
	overlay(&tables.Curvature, f.Tables.Curvature)
	overlay(&tables.LandClass, f.Tables.LandClass)
	return weights, tables, nil
}

func (c *Config) loadModelEnv() error {
	if s := os.Getenv("ATEI_WEIGHTS"); s != "" {
		w, err := parseWeights(s)
		if err != nil {
			return err
		}
		c.Weights = w
	}

	stat, err := domain.ParseStatistic(os.Getenv("ATEI_STATISTIC"))
	if err != nil {
		return fmt.Errorf("invalid ATEI_STATISTIC: %w", err)
	}
	containment, err := domain.ParseContainment(os.Getenv("ATEI_CONTAINMENT"))
	if err != nil {
		return fmt.Errorf("invalid ATEI_CONTAINMENT: %w", err)
	}
	c.Defaults = domain.JobDefaults{Statistic: stat, Containment: containment}
	return nil
}

// parseWeights reads "slope,aspect,curvature,land_class".
func parseWeights(s string) (domain.OverlayWeights, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.OverlayWeights{}, errors.New("ATEI_WEIGHTS must be slope,aspect,curvature,land_class")
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.OverlayWeights{}, fmt.Errorf("invalid ATEI_WEIGHTS: %w", err)
		}
		vals[i] = v
	}
	return domain.OverlayWeights{Slope: vals[0], Aspect: vals[1], Curvature: vals[2], LandClass: vals[3]}, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
