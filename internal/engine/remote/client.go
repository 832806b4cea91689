// Package remote performs one request/response cycle against the AI service
// and turns the reply into a typed result or a typed failure.
package remote

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"comment-insights/internal/common/errors"
	"comment-insights/internal/common/logger"
	"comment-insights/internal/common/metrics"
	"comment-insights/internal/engine/prompt"
	"comment-insights/internal/models"
)

// Request is the provider-neutral shape of one generation call.
type Request struct {
	Model           string
	System          string
	Prompt          string
	MaxOutputTokens int
	Seed            int32
	Temperature     float32
}

type Response struct {
	Text       string
	TokensUsed int
}

// Transport talks to one AI backend. Implementations return *errors.StandardError
// for failures they can classify and plain errors otherwise.
type Transport interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

type ClientConfig struct {
	Model       string
	Timeout     time.Duration
	Seed        int32
	Temperature float32
}

const DefaultTimeout = 60 * time.Second

type Client struct {
	config    ClientConfig
	transport Transport
	parser    *Parser
	logger    logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewClient(cfg ClientConfig, transport Transport, log logger.Logger) (*Client, error) {
	if transport == nil {
		return nil, errors.NewConfigurationError("remote transport is required")
	}
	if cfg.Model == "" {
		return nil, errors.NewConfigurationError("model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		config:    cfg,
		transport: transport,
		parser:    NewParser(),
		logger: log.With(map[string]interface{}{
			"provider": transport.Name(),
			"model":    cfg.Model,
		}),
		tracer: otel.Tracer("comment-insights/remote"),
		now:    time.Now,
	}, nil
}

// Analyze sends payload with tokenBudget as the hard output limit. The call
// runs under its own timeout; cancelling ctx abandons it.
func (c *Client) Analyze(ctx context.Context, payload prompt.Payload, tokenBudget int) (models.BatchResult, error) {
	if tokenBudget <= 0 {
		return models.BatchResult{}, errors.NewConfigurationError(fmt.Sprintf("token budget must be positive, got %d", tokenBudget))
	}

	ctx, span := c.tracer.Start(ctx, "remote.Analyze", trace.WithAttributes(
		attribute.String("ai.provider", c.transport.Name()),
		attribute.String("ai.model", c.config.Model),
		attribute.Int("ai.items", payload.ItemCount),
		attribute.Int("ai.token_budget", tokenBudget),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := c.now()
	resp, err := c.transport.Generate(callCtx, Request{
		Model:           c.config.Model,
		System:          payload.System,
		Prompt:          payload.Prompt,
		MaxOutputTokens: tokenBudget,
		Seed:            c.config.Seed,
		Temperature:     c.config.Temperature,
	})
	elapsed := c.now().Sub(start)
	metrics.RemoteCallDuration.WithLabelValues(c.transport.Name()).Observe(elapsed.Seconds())

	if err != nil {
		err = classifyCallError(err, ctx, callCtx, c.config.Timeout)
		c.record(span, err)
		c.logger.Warn("remote call failed", map[string]interface{}{
			"error":      err,
			"durationMs": elapsed.Milliseconds(),
		})
		return models.BatchResult{}, err
	}

	result, err := c.parser.Parse(resp.Text)
	if err != nil {
		c.record(span, err)
		c.logger.Warn("remote reply rejected", map[string]interface{}{
			"error":       err,
			"replyLength": len(resp.Text),
		})
		return models.BatchResult{}, err
	}

	result.TokenUsage = resp.TokensUsed
	result.ProcessingTime = elapsed
	metrics.RemoteTokens.WithLabelValues(c.transport.Name()).Add(float64(resp.TokensUsed))
	c.record(span, nil)
	span.SetAttributes(attribute.Int("ai.tokens_used", resp.TokensUsed))

	c.logger.Debug("remote call succeeded", map[string]interface{}{
		"durationMs": elapsed.Milliseconds(),
		"tokensUsed": resp.TokensUsed,
	})
	return result, nil
}

func (c *Client) record(span trace.Span, err error) {
	result := "ok"
	if err != nil {
		result = string(errors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	metrics.RemoteCalls.WithLabelValues(c.transport.Name(), result).Inc()
}
