package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"comment-insights/internal/common/config"
	"comment-insights/internal/common/errors"
	commonhttp "comment-insights/internal/common/http"
	"comment-insights/internal/common/logger"
	"comment-insights/internal/engine/budget"
	"comment-insights/internal/engine/cache"
	"comment-insights/internal/engine/orchestrator"
	"comment-insights/internal/engine/pacing"
	"comment-insights/internal/engine/prompt"
	"comment-insights/internal/engine/remote"
	"comment-insights/internal/engine/retry"
)

// engine groups everything one orchestrator needs, built from configuration.
type engine struct {
	orchestrator *orchestrator.Orchestrator
	cache        *cache.Cache
}

type engineDeps struct {
	Redis     redis.Cmdable
	Recorder  orchestrator.RunRecorder
	Telemetry orchestrator.Telemetry
	Logger    logger.Logger
}

func buildEngine(ctx context.Context, cfg *config.Config, deps engineDeps) (*engine, error) {
	log := deps.Logger

	est, err := budget.New(cfg.AI.Model, cfg.AI.MaxTokens)
	if err != nil {
		return nil, err
	}

	resultCache, err := cache.New(cfg.Cache.Capacity, config.GetDuration(cfg.Cache.TTL), cache.WithName("batch_results"))
	if err != nil {
		return nil, errors.NewConfigurationError(err.Error())
	}

	transport, err := buildTransport(ctx, cfg.AI)
	if err != nil {
		return nil, err
	}
	client, err := remote.NewClient(remote.ClientConfig{
		Model:       cfg.AI.Model,
		Timeout:     config.GetDuration(cfg.AI.Timeout),
		Seed:        int32(cfg.AI.Seed),
		Temperature: float32(cfg.AI.Temperature),
	}, transport, log)
	if err != nil {
		return nil, err
	}

	pacer, err := buildPacer(cfg, deps.Redis, log)
	if err != nil {
		return nil, err
	}

	policy := retry.NewPolicy(
		cfg.Retry.MaxAttempts,
		config.GetDuration(cfg.Retry.BaseDelay),
		config.GetDuration(cfg.Retry.MaxDelay),
		cfg.Retry.Jitter,
	)

	orch, err := orchestrator.New(orchestrator.Config{
		Model:        cfg.AI.Model,
		BatchSize:    cfg.Batch.Size,
		MaxItemChars: cfg.Batch.MaxItemChars,
	}, orchestrator.Dependencies{
		Client:    client,
		Cache:     resultCache,
		Estimator: est,
		Retry:     policy,
		Pacer:     pacer,
		Prompt:    prompt.NewBuilder(cfg.Batch.MaxItemChars),
		Recorder:  deps.Recorder,
		Telemetry: deps.Telemetry,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	return &engine{orchestrator: orch, cache: resultCache}, nil
}

func buildTransport(ctx context.Context, ai config.AIConfig) (remote.Transport, error) {
	switch ai.Provider {
	case "gemini":
		t, err := remote.NewGeminiTransport(ctx, ai.APIKey, ai.BaseURL)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "gateway":
		t, err := remote.NewGatewayTransport(ai.BaseURL, ai.APIKey, commonhttp.NewClient(0))
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, errors.NewConfigurationError(fmt.Sprintf("unknown ai.provider %q", ai.Provider))
	}
}

func buildPacer(cfg *config.Config, rdb redis.Cmdable, log logger.Logger) (pacing.Pacer, error) {
	pause := config.GetDuration(cfg.Batch.Pause)
	switch cfg.Pacer.Mode {
	case "none":
		return pacing.NoDelay{}, nil
	case "", "fixed":
		return pacing.NewFixedDelay(pause), nil
	case "redis":
		if rdb == nil {
			return nil, errors.NewConfigurationError("pacer.mode redis needs database.redis.address")
		}
		return pacing.NewRedisPacer(rdb, cfg.Pacer.Key, pause, log), nil
	default:
		return nil, errors.NewConfigurationError(fmt.Sprintf("unknown pacer.mode %q", cfg.Pacer.Mode))
	}
}
