package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig
	Retry     RetryConfig
	Normalize NormalizeConfig
	AliasDB   AliasDBConfig
}

// LLMConfig holds chat-endpoint configuration.
type LLMConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// RetryConfig holds the retry policy knobs.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NormalizeConfig holds product-name resolver knobs.
type NormalizeConfig struct {
	MinSimilarity float64 // 0..100
	TopExamples   int
	BatchSize     int
	Workers       int
}

// AliasDBConfig points at the persisted alias history (read-only here).
type AliasDBConfig struct {
	Path string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:     getEnv("LLM_BASE_URL", "http://localhost:11434"),
			Model:       getEnv("LLM_MODEL", "qwen2.5:14b"),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", 0.0),
			MaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 4096),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:   getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay:  getEnvAsDuration("RETRY_INITIAL_DELAY", 1*time.Second),
			MaxDelay:      getEnvAsDuration("RETRY_MAX_DELAY", 30*time.Second),
			BackoffFactor: getEnvAsFloat("RETRY_BACKOFF_FACTOR", 2.0),
		},
		Normalize: NormalizeConfig{
			MinSimilarity: getEnvAsFloat("NORMALIZE_MIN_SIMILARITY", 55),
			TopExamples:   getEnvAsInt("NORMALIZE_TOP_EXAMPLES", 5),
			BatchSize:     getEnvAsInt("NORMALIZE_BATCH_SIZE", 50),
			Workers:       getEnvAsInt("NORMALIZE_WORKERS", 4),
		},
		AliasDB: AliasDBConfig{
			Path: getEnv("ALIAS_DB_PATH", ""),
		},
	}
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	if c.LLM.BaseURL == "" {
		return NewPipelineError(KindValidation, "LLM_BASE_URL is required", nil)
	}
	if c.LLM.Model == "" {
		return NewPipelineError(KindValidation, "LLM_MODEL is required", nil)
	}
	if c.Retry.MaxAttempts < 1 {
		return NewPipelineError(KindValidation, "RETRY_MAX_ATTEMPTS must be >= 1", nil)
	}
	return nil
}

// Helper functions for environment variable parsing.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
