// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	AI       AIConfig       `mapstructure:"ai"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Pacer    PacerConfig    `mapstructure:"pacer"`
	Database DatabaseConfig `mapstructure:"database"`
	Camunda  CamundaConfig  `mapstructure:"camunda"`
	Server   ServerConfig   `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// --- Analysis engine ---

// AIConfig selects the AI backend and the per-call limits.
type AIConfig struct {
	Provider    string  `mapstructure:"provider"` // "gemini" or "gateway"
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	MaxTokens   int     `mapstructure:"max_tokens"` // per-call ceiling
	Timeout     int     `mapstructure:"timeout"`    // milliseconds
	Seed        int     `mapstructure:"seed"`
	Temperature float64 `mapstructure:"temperature"`
}

type CacheConfig struct {
	Capacity      int `mapstructure:"capacity"`
	TTL           int `mapstructure:"ttl"`            // milliseconds
	SweepInterval int `mapstructure:"sweep_interval"` // milliseconds, 0 disables the janitor
}

type RetryConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	BaseDelay   int     `mapstructure:"base_delay"` // milliseconds
	MaxDelay    int     `mapstructure:"max_delay"`  // milliseconds
	Jitter      float64 `mapstructure:"jitter"`     // fraction of the delay, 0..1
}

type BatchConfig struct {
	Size         int `mapstructure:"size"`
	Pause        int `mapstructure:"pause"` // milliseconds between remote calls
	MaxItemChars int `mapstructure:"max_item_chars"`
}

// PacerConfig chooses how the inter-call pause is enforced.
// "fixed" sleeps locally, "redis" shares one slot across replicas, "none" disables pacing.
type PacerConfig struct {
	Mode string `mapstructure:"mode"`
	Key  string `mapstructure:"key"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CamundaConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BrokerAddress string `mapstructure:"broker_address"`
	MaxJobsActive int    `mapstructure:"max_jobs_active"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
}

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
}
