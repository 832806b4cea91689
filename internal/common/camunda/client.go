// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"comment-insights/internal/common/errors"
	"comment-insights/internal/common/logger"
	"comment-insights/internal/engine/retry"
)

// Client wraps the Zeebe gRPC client with broker error mapping and retries.
type Client struct {
	client zbc.Client
	config *ClientConfig
	logger logger.Logger
}

// ClientConfig holds configuration for the Camunda/Zeebe client.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig defines retry behavior for broker commands.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// NewClient creates a plaintext client for local setups.
func NewClient(address string, log logger.Logger) (*Client, error) {
	config := &ClientConfig{
		GatewayAddress:         address,
		UsePlaintextConnection: true,
		ConnectionTimeout:      10 * time.Second,
		RequestTimeout:         30 * time.Second,
		RetryConfig:            DefaultRetryConfig,
	}
	return NewClientWithConfig(config, log)
}

// NewClientWithConfig dials the gateway and checks the topology before
// returning.
func NewClientWithConfig(config *ClientConfig, log logger.Logger) (*Client, error) {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         config.GatewayAddress,
		UsePlaintextConnection: config.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	c := &Client{
		client: zeebeClient,
		config: config,
		logger: log.With(map[string]interface{}{"gateway": config.GatewayAddress}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectionTimeout)
	defer cancel()

	if _, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return zeebeClient.NewTopologyCommand().Send(ctx)
	}, "topology"); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", config.GatewayAddress, err)
	}

	return c, nil
}

// GetClient returns the raw Zeebe client for job workers.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ExecuteWithRetry runs a broker command with exponential backoff. Only
// connectivity and timeout failures are retried.
func (c *Client) ExecuteWithRetry(
	ctx context.Context,
	commandFunc func(context.Context) (interface{}, error),
	operationName string,
) (interface{}, error) {
	policy := brokerPolicy(c.config.RetryConfig)
	policy.OnRetry = func(a retry.Attempt) {
		c.logger.Warn("retrying zeebe command", map[string]interface{}{
			"operation": operationName,
			"attempt":   a.Number,
			"delayMs":   a.Delay.Milliseconds(),
			"error":     a.Err,
		})
	}

	attempts := 0
	result, err := retry.Execute(ctx, policy, func(ctx context.Context) (interface{}, error) {
		attempts++
		if c.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
			defer cancel()
		}
		return commandFunc(ctx)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("operation %s cancelled after %d attempts: %w", operationName, attempts, ctx.Err())
		}
		return nil, mapZeebeError(err, operationName, attempts)
	}
	return result, nil
}

func brokerPolicy(rc *RetryConfig) *retry.Policy {
	p := retry.NewPolicy(rc.MaxRetries+1, rc.BaseDelay, rc.MaxDelay, 0)
	p.Classify = func(err error) retry.Class {
		if isRetryableZeebeError(err) {
			return retry.Transient
		}
		return retry.Fatal
	}
	return p
}

func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// mapZeebeError converts broker failures into application errors.
func mapZeebeError(err error, operation string, attempts int) error {
	msg := err.Error()
	lowerMsg := strings.ToLower(msg)

	enhancedMsg := fmt.Sprintf("Zeebe operation '%s' failed", operation)
	if attempts > 1 {
		enhancedMsg += fmt.Sprintf(" after %d attempts", attempts)
	}

	switch {
	case strings.Contains(lowerMsg, "permission denied") ||
		strings.Contains(lowerMsg, "unauthorized") ||
		strings.Contains(lowerMsg, "unauthenticated"):
		return errors.NewConfigurationError(fmt.Sprintf("%s: %s", enhancedMsg, msg))

	case isRetryableZeebeError(err):
		return errors.NewServiceUnavailableError(fmt.Errorf("%s: %w", enhancedMsg, err))

	default:
		return fmt.Errorf("%s: %w", enhancedMsg, err)
	}
}

// HealthCheck asks the broker for its topology.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	_, err := c.client.NewTopologyCommand().Send(ctx)
	if err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}
