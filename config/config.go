// Package config provides configuration for the approval service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Completion transport
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Turn limits
	MaxToolRounds int

	// Policy
	PolicyPath string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:      getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:   getEnv("DATABASE_URL", "file:signoff.db?cache=shared&mode=rwc"),
		LLMBaseURL:    getEnv("LLM_BASE_URL", "http://localhost:4000"),
		LLMAPIKey:     getEnv("LLM_API_KEY", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:    time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		MaxToolRounds: getEnvInt("MAX_TOOL_ROUNDS", 8),
		PolicyPath:    getEnv("POLICY_PATH", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
