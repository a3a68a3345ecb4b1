package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// RaiseErrorsEnv turns absorbed rewrite failures into returned errors.
const RaiseErrorsEnv = "PYTESTIFY_RAISE_ERRORS"

// Config holds all application configuration
type Config struct {
	// Server
	Port int
	Env  string

	// Logging
	LogLevel string

	// Conversion
	Parallel    int
	RaiseErrors bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("PYTESTIFY_LOG_LEVEL", "info"),
		Parallel:    getEnvInt("PYTESTIFY_PARALLEL", 4),
		RaiseErrors: RaiseErrorsEnabled(),
	}

	return cfg, nil
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("PYTESTIFY_PARALLEL must be at least 1, got %d", c.Parallel)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid PYTESTIFY_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// RaiseErrorsEnabled reports whether the debug toggle is set. Only "1",
// "true" and "True" enable it.
func RaiseErrorsEnabled() bool {
	switch os.Getenv(RaiseErrorsEnv) {
	case "1", "true", "True":
		return true
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
