// Package config provides configuration management for the narrative
// intelligence pipeline. It loads settings from environment variables with
// the AMONHEN_ prefix and sensible defaults for every option.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration settings for the pipeline.
type Config struct {
	Storage     StorageConfig
	LLM         LLMConfig
	Enrichment  EnrichmentConfig
	Clustering  ClusteringConfig
	Divergence  DivergenceConfig
}

// StorageConfig contains storage paths and backend selection.
type StorageConfig struct {
	// SQLitePath is the path to the combined MetaStore/VectorIndex database
	// file (default: ./data/amonhen.db).
	SQLitePath string

	// VectorBackend selects the vector substrate: memory, local, or cloud.
	// Only "local" (SQLite-backed VectorIndex) is implemented; memory and
	// cloud are recognised values reserved for future backends.
	VectorBackend string

	// SourcesPath is the path to the YAML source-family document.
	SourcesPath string
}

// LLMConfig selects and configures the enrichment LLM provider.
type LLMConfig struct {
	Provider        string // "anthropic" or "ollama" (default: anthropic)
	Model           string // provider-specific default if empty
	AnthropicAPIKey string
	OllamaBaseURL   string
	EmbeddingModel  string // default: nomic-embed-text
}

// EnrichmentConfig controls the Enricher's concurrency and spend cap.
type EnrichmentConfig struct {
	Concurrency    int     // default: 3
	DailyBudgetUSD float64 // default: 2.00
	TrackCosts     bool    // default: true
	RateLimitPerSec float64 // outbound LLM call rate limit, default: 5
}

// ClusteringConfig controls the Clusterer's window and density parameters.
type ClusteringConfig struct {
	MinClusterSize    int // default: 5
	MinSamples        int // default: 4
	RollingWindowDays int // default: 30
}

// DivergenceConfig controls the DivergenceDetector's threshold.
type DivergenceConfig struct {
	Threshold float64 // default: 0.3
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the AMONHEN_ prefix.
func LoadConfig() (*Config, error) {
	return &Config{
		Storage: StorageConfig{
			SQLitePath:    getEnv("AMONHEN_SQLITE_PATH", "./data/amonhen.db"),
			VectorBackend: getEnv("AMONHEN_VECTOR_BACKEND", "local"),
			SourcesPath:   getEnv("AMONHEN_SOURCES_PATH", "./sources.yaml"),
		},
		LLM: LLMConfig{
			Provider:        getEnv("AMONHEN_LLM_PROVIDER", "anthropic"),
			Model:           getEnv("AMONHEN_LLM_MODEL", ""),
			AnthropicAPIKey: getEnv("AMONHEN_ANTHROPIC_API_KEY", ""),
			OllamaBaseURL:   getEnv("AMONHEN_OLLAMA_URL", "http://localhost:11434"),
			EmbeddingModel:  getEnv("AMONHEN_EMBEDDING_MODEL", "nomic-embed-text"),
		},
		Enrichment: EnrichmentConfig{
			Concurrency:     getEnvInt("AMONHEN_ENRICHMENT_CONCURRENCY", 3),
			DailyBudgetUSD:  getEnvFloat("AMONHEN_DAILY_BUDGET_USD", 2.00),
			TrackCosts:      getEnvBool("AMONHEN_TRACK_COSTS", true),
			RateLimitPerSec: getEnvFloat("AMONHEN_LLM_RATE_LIMIT", 5.0),
		},
		Clustering: ClusteringConfig{
			MinClusterSize:    getEnvInt("AMONHEN_MIN_CLUSTER_SIZE", 5),
			MinSamples:        getEnvInt("AMONHEN_MIN_SAMPLES", 4),
			RollingWindowDays: getEnvInt("AMONHEN_ROLLING_WINDOW_DAYS", 30),
		},
		Divergence: DivergenceConfig{
			Threshold: getEnvFloat("AMONHEN_DIVERGENCE_THRESHOLD", 0.3),
		},
	}, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as a
// float, it returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no" as
// false, in lower, title, or upper case; any other value yields the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
