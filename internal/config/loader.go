package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "crewd.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CREWD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CREWD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CREWD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CREWD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CREWD_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LLM.Provider, "CREWD_LLM_PROVIDER")
	setString(&cfg.LLM.URL, "LITELLM_URL")
	setString(&cfg.LLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LLM.Model, "CREWD_LLM_MODEL")
	setFloat64(&cfg.LLM.Temperature, "CREWD_LLM_TEMPERATURE")
	setInt(&cfg.LLM.MaxTokens, "CREWD_LLM_MAX_TOKENS")
	setString(&cfg.Logging.Level, "CREWD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CREWD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CREWD_LOG_ASYNC")
	setInt(&cfg.Logging.Buffer, "CREWD_LOG_BUFFER")
	setInt(&cfg.Breaker.MaxFailures, "CREWD_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CREWD_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxBytes, "CREWD_CACHE_MAX_BYTES")
	setDuration(&cfg.Cache.TTL, "CREWD_CACHE_TTL")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setInt(&cfg.Orchestrator.FormTeamRetries, "CREWD_ORCH_FORM_TEAM_RETRIES")
	setInt(&cfg.Orchestrator.MaxAttempts, "CREWD_ORCH_MAX_ATTEMPTS")
	setDuration(&cfg.Orchestrator.TaskTimeout, "CREWD_ORCH_TASK_TIMEOUT")
	setDuration(&cfg.Orchestrator.DispatchInterval, "CREWD_ORCH_DISPATCH_INTERVAL")
	setBool(&cfg.Orchestrator.BlockOnReject, "CREWD_ORCH_BLOCK_ON_REJECT")
	setFloat64(&cfg.Orchestrator.BudgetMultiplier, "CREWD_ORCH_BUDGET_MULTIPLIER")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.LLM.Provider == "" {
		return errors.New("llm.provider is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Orchestrator.MaxAttempts < 1 {
		return errors.New("orchestrator.max_attempts must be >= 1")
	}
	if cfg.Orchestrator.TaskTimeout <= 0 {
		return errors.New("orchestrator.task_timeout must be > 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
