// Package config loads application configuration from environment
// variables and an optional YAML file via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the controller and the worker.
type Config struct {
	// Database connection string.
	DatabaseURL string

	// HTTP server port for the controller.
	HTTPPort int

	// URL of the controller, used by the worker to ship logs and events.
	ControllerURL string

	// Shared secret protecting the /internal endpoints.
	InternalSecret string

	// Root directory for per-task workspaces: <ReportsRoot>/{org}/{task}.
	ReportsRoot string

	// Sandbox runtime backend: "docker" or "exec".
	Runtime string

	// Worker tuning.
	WorkerPollInterval time.Duration
	WorkerMaxBackoff   time.Duration
	HeartbeatInterval  time.Duration
	TaskTimeout        time.Duration

	// TTL of the live log reconnect buffer.
	LogBufferTTL time.Duration

	// OTLP collector endpoint for tracing. Empty disables export.
	OTELEndpoint string
}

// Load reads configuration from AGNOX_* environment variables and an
// optional config file.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("AGNOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_port", 6161)
	v.SetDefault("controller_url", "http://localhost:6161")
	v.SetDefault("reports_root", "/reports")
	v.SetDefault("runtime", "docker")
	v.SetDefault("worker_poll_interval", "1s")
	v.SetDefault("worker_max_backoff", "30s")
	v.SetDefault("heartbeat_interval", "2m")
	v.SetDefault("task_timeout", "30m")
	v.SetDefault("log_buffer_ttl", "1h")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("agnox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env-only setups are fine.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:        v.GetString("database_url"),
		HTTPPort:           v.GetInt("http_port"),
		ControllerURL:      strings.TrimRight(v.GetString("controller_url"), "/"),
		InternalSecret:     v.GetString("internal_secret"),
		ReportsRoot:        v.GetString("reports_root"),
		Runtime:            v.GetString("runtime"),
		WorkerPollInterval: v.GetDuration("worker_poll_interval"),
		WorkerMaxBackoff:   v.GetDuration("worker_max_backoff"),
		HeartbeatInterval:  v.GetDuration("heartbeat_interval"),
		TaskTimeout:        v.GetDuration("task_timeout"),
		LogBufferTTL:       v.GetDuration("log_buffer_ttl"),
		OTELEndpoint:       v.GetString("otel_endpoint"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("AGNOX_DATABASE_URL is required")
	}

	return cfg, nil
}
