package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comment-insights/internal/common/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
ai:
  provider: gateway
  base_url: http://localhost:9090
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "comment-insights", cfg.App.Name)
	assert.Equal(t, "gemini-1.5-flash", cfg.AI.Model)
	assert.Equal(t, 4096, cfg.AI.MaxTokens)
	assert.Equal(t, 20, cfg.Batch.Size)
	assert.Equal(t, 1000, cfg.Batch.Pause)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 256, cfg.Cache.Capacity)
	assert.Equal(t, "fixed", cfg.Pacer.Mode)
	assert.Equal(t, "comment-insights:pacer:gemini-1.5-flash", cfg.Pacer.Key)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, time.Hour, GetDuration(cfg.Cache.TTL))
}

func TestLoadFromFile_EnvironmentOverrides(t *testing.T) {
	t.Setenv("BATCH_SIZE", "10")
	t.Setenv("GATEWAY_TOKEN", "s3cret")
	path := writeConfig(t, `
ai:
  provider: gateway
  base_url: http://localhost:9090
  api_key: ${GATEWAY_TOKEN}
batch:
  size: 20
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Batch.Size)
	assert.Equal(t, "s3cret", cfg.AI.APIKey)
}

func TestLoadFromFile_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown provider",
			body: "ai:\n  provider: openai\n",
		},
		{
			name: "gateway without url",
			body: "ai:\n  provider: gateway\n",
		},
		{
			name: "unknown model",
			body: "ai:\n  provider: gateway\n  base_url: http://x\n  model: gpt-2\n",
		},
		{
			name: "batch larger than the token ceiling allows",
			body: "ai:\n  provider: gateway\n  base_url: http://x\nbatch:\n  size: 5000\n",
		},
		{
			name: "negative batch size",
			body: "ai:\n  provider: gateway\n  base_url: http://x\nbatch:\n  size: -1\n",
		},
		{
			name: "jitter out of range",
			body: "ai:\n  provider: gateway\n  base_url: http://x\nretry:\n  jitter: 1.5\n",
		},
		{
			name: "redis pacer without address",
			body: "ai:\n  provider: gateway\n  base_url: http://x\npacer:\n  mode: redis\n",
		},
		{
			name: "postgres enabled without host",
			body: "ai:\n  provider: gateway\n  base_url: http://x\ndatabase:\n  postgres:\n    enabled: true\n    database: runs\n    user: app\n",
		},
		{
			name: "camunda enabled without broker",
			body: "ai:\n  provider: gateway\n  base_url: http://x\ncamunda:\n  enabled: true\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrConfiguration), "got %v", err)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "app", Password: "pw", Database: "runs", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=app password=pw dbname=runs sslmode=disable", p.GetDSN())
}
