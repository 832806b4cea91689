package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comment-insights/internal/common/config"
	"comment-insights/internal/common/errors"
	"comment-insights/internal/common/logger"
	"comment-insights/internal/engine/pacing"
)

func testConfig(baseURL string) *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "comment-insights"
	cfg.AI = config.AIConfig{
		Provider:  "gateway",
		Model:     "gemini-1.5-flash",
		BaseURL:   baseURL,
		APIKey:    "test-key",
		MaxTokens: 4096,
		Timeout:   5000,
		Seed:      42,
	}
	cfg.Cache = config.CacheConfig{Capacity: 16, TTL: 60000}
	cfg.Retry = config.RetryConfig{MaxAttempts: 3, BaseDelay: 1, MaxDelay: 5, Jitter: 0.2}
	cfg.Batch = config.BatchConfig{Size: 2, Pause: 0, MaxItemChars: 200}
	cfg.Pacer = config.PacerConfig{Mode: "none"}
	return cfg
}

// gatewayStub answers every generate call with a reply that marks each
// comment in the batch as positive.
func gatewayStub(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/api/ai/generate", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Prompt string `json:"prompt"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var n int
		_, err := fmt.Sscanf(req.Prompt, "Analyze the following %d comments", &n)
		assert.NoError(t, err)

		reply := fmt.Sprintf(`{"sentiment":{"positive":%d,"neutral":0,"negative":0},`+
			`"themes":{"quality":1},"emotions":{"joy":6},"summary":"happy customers",`+
			`"recommendations":["keep it up"],"confidence":0.9}`, n)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"text": reply, "tokens_used": 50})
	}))
}

func TestBuildEngine_AnalyzesThroughGateway(t *testing.T) {
	var calls int32
	server := gatewayStub(t, &calls)
	defer server.Close()

	eng, err := buildEngine(context.Background(), testConfig(server.URL), engineDeps{Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)

	comments := []string{"great", "love it", "fast", "works"}
	got, err := eng.orchestrator.AnalyzeAll(context.Background(), comments)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 4, got.TotalProcessed)
	assert.Equal(t, 4, got.Sentiment.Positive)
	assert.Equal(t, 100, got.TokenUsage)
	assert.Equal(t, 2, eng.cache.Len())

	again, err := eng.orchestrator.AnalyzeAll(context.Background(), comments)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "second run is served from cache")
	assert.Equal(t, 2, again.CacheHits)
}

func TestBuildEngine_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{name: "unknown provider", mutate: func(cfg *config.Config) { cfg.AI.Provider = "carrier-pigeon" }},
		{name: "unknown model", mutate: func(cfg *config.Config) { cfg.AI.Model = "mystery-1" }},
		{name: "batch above ceiling", mutate: func(cfg *config.Config) { cfg.Batch.Size = 500 }},
		{name: "zero cache", mutate: func(cfg *config.Config) { cfg.Cache.Capacity = 0 }},
		{name: "unknown pacer", mutate: func(cfg *config.Config) { cfg.Pacer.Mode = "sometimes" }},
		{name: "redis pacer without redis", mutate: func(cfg *config.Config) { cfg.Pacer.Mode = "redis" }},
		{name: "gemini without key", mutate: func(cfg *config.Config) {
			cfg.AI.Provider = "gemini"
			cfg.AI.APIKey = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://127.0.0.1:1")
			tt.mutate(cfg)
			_, err := buildEngine(context.Background(), cfg, engineDeps{Logger: logger.NewNoOpLogger()})
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrConfiguration)
		})
	}
}

func TestBuildPacer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig("")
	cfg.Batch.Pause = 250

	for mode, want := range map[string]interface{}{
		"none":  pacing.NoDelay{},
		"fixed": &pacing.FixedDelay{},
		"":      &pacing.FixedDelay{},
		"redis": &pacing.RedisPacer{},
	} {
		cfg.Pacer.Mode = mode
		cfg.Pacer.Key = "comment-insights:pacer:test"
		p, err := buildPacer(cfg, rdb, logger.NewNoOpLogger())
		require.NoError(t, err, mode)
		assert.IsType(t, want, p, mode)
	}

	cfg.Pacer.Mode = "redis"
	p, err := buildPacer(cfg, rdb, logger.NewNoOpLogger())
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background()))
	assert.True(t, mr.Exists("comment-insights:pacer:test"))
}
