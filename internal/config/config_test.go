package config

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear relevant env vars to test defaults
	envVars := []string{"PORT", "ENV", "PYTESTIFY_LOG_LEVEL", "PYTESTIFY_PARALLEL", RaiseErrorsEnv}
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %s, want development", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.Parallel != 4 {
		t.Errorf("Parallel = %d, want 4", cfg.Parallel)
	}
	if cfg.RaiseErrors {
		t.Error("RaiseErrors should default to false")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("PYTESTIFY_LOG_LEVEL", "debug")
	t.Setenv("PYTESTIFY_PARALLEL", "8")
	t.Setenv(RaiseErrorsEnv, "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("Env = %s, want production", cfg.Env)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.Parallel != 8 {
		t.Errorf("Parallel = %d, want 8", cfg.Parallel)
	}
	if !cfg.RaiseErrors {
		t.Error("RaiseErrors should be true")
	}
}

func TestRaiseErrorsEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"True", true},
		{"TRUE", false},
		{"yes", false},
		{"0", false},
		{"false", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(RaiseErrorsEnv, tt.value)
			if got := RaiseErrorsEnabled(); got != tt.want {
				t.Errorf("RaiseErrorsEnabled() with %q = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Port: 8080, Parallel: 4, LogLevel: "info"}, false},
		{"upper case level", Config{Port: 8080, Parallel: 1, LogLevel: "WARN"}, false},
		{"zero port", Config{Port: 0, Parallel: 4, LogLevel: "info"}, true},
		{"port too large", Config{Port: 70000, Parallel: 4, LogLevel: "info"}, true},
		{"no workers", Config{Port: 8080, Parallel: 0, LogLevel: "info"}, true},
		{"bad level", Config{Port: 8080, Parallel: 4, LogLevel: "loud"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	level, err := cfg.Level()
	if err != nil {
		t.Fatalf("Level() error = %v", err)
	}
	if level != zerolog.DebugLevel {
		t.Errorf("Level() = %v, want debug", level)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue string
		want         string
	}{
		{"returns env value", "TEST_VAR_1", "custom", "default", "custom"},
		{"returns default when empty", "TEST_VAR_2", "", "default", "default"},
		{"returns default when unset", "TEST_VAR_UNSET", "", "fallback", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		want         int
	}{
		{"parses value", "42", 1, 42},
		{"invalid falls back", "many", 7, 7},
		{"empty falls back", "", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT_VAR", tt.envValue)
			if got := getEnvInt("TEST_INT_VAR", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}
