// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"comment-insights/internal/common/errors"
	"comment-insights/internal/engine/budget"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top,
// applies environment overrides and validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	// ai.api_key <- AI_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.AI.APIKey == "" {
		if val := os.Getenv("GENAI_API_KEY"); val != "" {
			cfg.AI.APIKey = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "comment-insights"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// AI defaults
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "gemini"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gemini-1.5-flash"
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 4096
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60000
	}
	if cfg.AI.Seed == 0 {
		cfg.AI.Seed = 42
	}

	// Cache defaults
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 256
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 3600000
	}

	// Retry defaults
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 500
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30000
	}
	if cfg.Retry.Jitter == 0 {
		cfg.Retry.Jitter = 0.2
	}

	// Batch defaults
	if cfg.Batch.Size == 0 {
		cfg.Batch.Size = 20
	}
	if cfg.Batch.Pause == 0 {
		cfg.Batch.Pause = 1000
	}
	if cfg.Batch.MaxItemChars == 0 {
		cfg.Batch.MaxItemChars = 500
	}

	if cfg.Pacer.Mode == "" {
		cfg.Pacer.Mode = "fixed"
	}
	if cfg.Pacer.Key == "" {
		cfg.Pacer.Key = "comment-insights:pacer:" + cfg.AI.Model
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 5
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 300000
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 600000
	}
}

// validateConfig validates critical configuration fields. Every failure is a
// CONFIGURATION_INVALID error so startup can tell it apart from I/O problems.
func validateConfig(cfg *Config) error {
	switch cfg.AI.Provider {
	case "gemini":
		if cfg.AI.APIKey == "" {
			return errors.NewConfigurationError("ai.api_key is required for the gemini provider")
		}
	case "gateway":
		if cfg.AI.BaseURL == "" {
			return errors.NewConfigurationError("ai.base_url is required for the gateway provider")
		}
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unknown ai.provider %q", cfg.AI.Provider))
	}

	est, err := budget.New(cfg.AI.Model, cfg.AI.MaxTokens)
	if err != nil {
		return err
	}
	if cfg.Batch.Size < 1 {
		return errors.NewConfigurationError("batch.size must be positive")
	}
	if limit := est.MaxBatchSize(); cfg.Batch.Size > limit {
		return errors.NewConfigurationError(fmt.Sprintf(
			"batch.size %d exceeds the %d items that fit the %d token ceiling of %s",
			cfg.Batch.Size, limit, est.EffectiveCeiling(), cfg.AI.Model))
	}

	if cfg.Cache.Capacity < 1 {
		return errors.NewConfigurationError("cache.capacity must be positive")
	}
	if cfg.Cache.TTL < 0 || cfg.Batch.Pause < 0 || cfg.Cache.SweepInterval < 0 {
		return errors.NewConfigurationError("durations must not be negative")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.NewConfigurationError("retry.max_attempts must be at least 1")
	}
	if cfg.Retry.Jitter < 0 || cfg.Retry.Jitter > 1 {
		return errors.NewConfigurationError("retry.jitter must be within [0, 1]")
	}

	switch cfg.Pacer.Mode {
	case "none", "fixed":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return errors.NewConfigurationError("database.redis.address is required for the redis pacer")
		}
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unknown pacer.mode %q", cfg.Pacer.Mode))
	}

	if cfg.Database.Postgres.Enabled {
		if cfg.Database.Postgres.Host == "" {
			return errors.NewConfigurationError("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return errors.NewConfigurationError("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return errors.NewConfigurationError("database.postgres.user is required")
		}
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return errors.NewConfigurationError("camunda.broker_address is required")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
