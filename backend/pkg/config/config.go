package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	apperrors "graph-merge/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Neo4j export (optional)
	ExportEnabled bool
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Input
	FixturePath      string // YAML fixture with vertices, edges and hyperedges
	CompletenessPath string // Optional YAML/JSON map of vertex id -> completeness score

	// Consolidation
	AnomalyThreshold *float64 // nil disables hyperedge anomaly pruning
	HistoryLimit     int      // Maximum recorded steps, 0 for unbounded
	SimulationSeed   uint64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", ""),
		ExportEnabled:    getEnvBool("EXPORT_ENABLED", false),
		Neo4jURI:         getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:        getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:    getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:    getEnv("NEO4J_DATABASE", ""),
		FixturePath:      getEnv("FIXTURE_PATH", ""),
		CompletenessPath: getEnv("COMPLETENESS_PATH", ""),
		HistoryLimit:     getEnvInt("HISTORY_LIMIT", 0),
	}

	// A malformed threshold or seed must not silently fall back to a default
	var err error
	if cfg.AnomalyThreshold, err = getEnvFloatPtr("ANOMALY_THRESHOLD"); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.SimulationSeed, err = getEnvUint64("SIMULATION_SEED", 1); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Port == "" {
		return apperrors.NewConfigMissingRequired("PORT")
	}
	if c.HistoryLimit < 0 {
		return apperrors.NewConfigValidationFailed("HISTORY_LIMIT", "must not be negative")
	}
	if c.AnomalyThreshold != nil && *c.AnomalyThreshold < 0 {
		return apperrors.NewConfigValidationFailed("ANOMALY_THRESHOLD", "must not be negative")
	}
	// Neo4j credentials only matter when export is switched on
	if c.ExportEnabled {
		if c.Neo4jURI == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_URI")
		}
		if c.Neo4jUser == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_USER")
		}
		if c.Neo4jPassword == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloatPtr returns nil when key is unset and an error when it is set
// but not a number
func getEnvFloatPtr(key string) (*float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, apperrors.NewConfigValidationFailed(key, fmt.Sprintf("%q is not a number", value))
	}
	return &result, nil
}

func getEnvUint64(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, apperrors.NewConfigValidationFailed(key, fmt.Sprintf("%q is not a non-negative integer", value))
	}
	return result, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}
