package analyzecomments

import (
	"fmt"
	"time"

	"comment-insights/internal/common/config"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxComments   int           `mapstructure:"max_comments"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       5 * time.Minute,
		MaxComments:   10000,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.MaxComments <= 0 {
		return fmt.Errorf("max_comments must be positive")
	}
	return nil
}

// createConfigFromAppConfig lets a custom config win over the application
// config, which in turn wins over the defaults.
func createConfigFromAppConfig(appCfg *config.Config, custom *Config) *Config {
	if custom != nil {
		return custom
	}
	cfg := DefaultConfig()
	if appCfg == nil {
		return cfg
	}
	cfg.Enabled = appCfg.Camunda.Enabled
	if appCfg.Camunda.MaxJobsActive > 0 {
		cfg.MaxJobsActive = appCfg.Camunda.MaxJobsActive
	}
	if appCfg.Camunda.Timeout > 0 {
		cfg.Timeout = config.GetDuration(appCfg.Camunda.Timeout)
	}
	return cfg
}
