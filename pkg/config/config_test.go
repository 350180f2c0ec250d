package config

import (
	"os"
	"testing"
	"time"

	"github.com/knossos-io/knossos/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{name: "returns true for 'true'", defaultValue: false, envValue: "true", want: true},
		{name: "returns true for '1'", defaultValue: false, envValue: "1", want: true},
		{name: "returns false for 'false'", defaultValue: true, envValue: "false", want: false},
		{name: "returns default when unset", defaultValue: true, envValue: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_BOOL", tt.envValue)
				defer os.Unsetenv("TEST_BOOL")
			}

			got := getEnvBool("TEST_BOOL", tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "45s")
	defer os.Unsetenv("TEST_DURATION")

	if got := getEnvDuration("TEST_DURATION", time.Minute); got != 45*time.Second {
		t.Errorf("getEnvDuration() = %v, want 45s", got)
	}
	if got := getEnvDuration("TEST_DURATION_UNSET", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() default = %v, want 1m", got)
	}

	os.Setenv("TEST_DURATION_BAD", "not-a-duration")
	defer os.Unsetenv("TEST_DURATION_BAD")
	if got := getEnvDuration("TEST_DURATION_BAD", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() with invalid value = %v, want default", got)
	}
}

// TestParseLogLevel tests log level parsing
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  observability.LogLevel
	}{
		{"debug", observability.DebugLevel},
		{"info", observability.InfoLevel},
		{"warn", observability.WarnLevel},
		{"warning", observability.WarnLevel},
		{"error", observability.ErrorLevel},
		{"ERROR", observability.ErrorLevel},
		{"bogus", observability.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// TestLoadConfig tests full configuration loading
func TestLoadConfig(t *testing.T) {
	t.Run("defaults with postgres URL", func(t *testing.T) {
		os.Setenv("KNOSSOS_POSTGRES_URL", "postgres://localhost/knossos_test")
		defer os.Unsetenv("KNOSSOS_POSTGRES_URL")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}

		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %v, want 8080", cfg.Server.Port)
		}
		if cfg.Server.HealthPort != "9090" {
			t.Errorf("Server.HealthPort = %v, want 9090", cfg.Server.HealthPort)
		}
		if cfg.Audit.RetentionDays != 90 {
			t.Errorf("Audit.RetentionDays = %v, want 90", cfg.Audit.RetentionDays)
		}
		if !cfg.RateLimit.Enabled {
			t.Error("RateLimit.Enabled = false, want true by default")
		}
		if cfg.Observability.LogLevel != observability.InfoLevel {
			t.Errorf("LogLevel = %v, want info", cfg.Observability.LogLevel)
		}
	})

	t.Run("missing postgres URL fails validation", func(t *testing.T) {
		os.Unsetenv("KNOSSOS_POSTGRES_URL")

		if _, err := LoadConfig(); err == nil {
			t.Error("LoadConfig() succeeded without postgres URL")
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		envs := map[string]string{
			"KNOSSOS_POSTGRES_URL":          "postgres://localhost/knossos_test",
			"KNOSSOS_PORT":                  "8888",
			"KNOSSOS_LOG_LEVEL":             "debug",
			"KNOSSOS_AUDIT_RETENTION_DAYS":  "30",
			"KNOSSOS_RATELIMIT_RPM":         "120",
			"KNOSSOS_READ_TIMEOUT":          "5s",
			"KNOSSOS_POSTGRES_MAX_CONNS":    "50",
			"KNOSSOS_AUDIT_LOG_ALL_REQUESTS": "true",
		}
		for k, v := range envs {
			os.Setenv(k, v)
		}
		defer func() {
			for k := range envs {
				os.Unsetenv(k)
			}
		}()

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}

		if cfg.Server.Port != "8888" {
			t.Errorf("Server.Port = %v, want 8888", cfg.Server.Port)
		}
		if cfg.Server.ReadTimeout != 5*time.Second {
			t.Errorf("Server.ReadTimeout = %v, want 5s", cfg.Server.ReadTimeout)
		}
		if cfg.Observability.LogLevel != observability.DebugLevel {
			t.Errorf("LogLevel = %v, want debug", cfg.Observability.LogLevel)
		}
		if cfg.Audit.RetentionDays != 30 {
			t.Errorf("Audit.RetentionDays = %v, want 30", cfg.Audit.RetentionDays)
		}
		if !cfg.Audit.LogAllRequests {
			t.Error("Audit.LogAllRequests = false, want true")
		}
		if cfg.RateLimit.RequestsPerMinute != 120 {
			t.Errorf("RateLimit.RequestsPerMinute = %v, want 120", cfg.RateLimit.RequestsPerMinute)
		}
		if cfg.Storage.PostgresMaxConns != 50 {
			t.Errorf("Storage.PostgresMaxConns = %v, want 50", cfg.Storage.PostgresMaxConns)
		}
	})

	t.Run("distributed rate limiting requires redis", func(t *testing.T) {
		os.Setenv("KNOSSOS_POSTGRES_URL", "postgres://localhost/knossos_test")
		os.Setenv("KNOSSOS_RATELIMIT_DISTRIBUTED", "true")
		defer os.Unsetenv("KNOSSOS_POSTGRES_URL")
		defer os.Unsetenv("KNOSSOS_RATELIMIT_DISTRIBUTED")

		if _, err := LoadConfig(); err == nil {
			t.Error("LoadConfig() succeeded without redis URL for distributed limiter")
		}

		os.Setenv("KNOSSOS_REDIS_URL", "localhost:6379")
		defer os.Unsetenv("KNOSSOS_REDIS_URL")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if !cfg.RateLimit.Distributed {
			t.Error("RateLimit.Distributed = false, want true")
		}
	})

	t.Run("same port for server and health fails", func(t *testing.T) {
		os.Setenv("KNOSSOS_POSTGRES_URL", "postgres://localhost/knossos_test")
		os.Setenv("KNOSSOS_PORT", "9090")
		defer os.Unsetenv("KNOSSOS_POSTGRES_URL")
		defer os.Unsetenv("KNOSSOS_PORT")

		if _, err := LoadConfig(); err == nil {
			t.Error("LoadConfig() succeeded with colliding ports")
		}
	})
}
