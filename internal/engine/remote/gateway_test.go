package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comment-insights/internal/common/errors"
	"comment-insights/internal/common/logger"
	"comment-insights/internal/engine/prompt"
	"comment-insights/internal/models"
)

func newGatewayClient(t *testing.T, url string, timeout time.Duration) *Client {
	t.Helper()
	transport, err := NewGatewayTransport(url, "test-key", nil)
	require.NoError(t, err)
	c, err := NewClient(ClientConfig{Model: "gemini-1.5-flash", Timeout: timeout, Seed: 42}, transport, logger.NewTestLogger(t))
	require.NoError(t, err)
	return c
}

func testPayload() prompt.Payload {
	return prompt.NewBuilder(0).Build(models.NewItems([]string{"love it", "meh"}))
}

func TestGateway_Analyze(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		body           string
		delay          time.Duration
		expectedError  error
		validateOutput func(t *testing.T, r models.BatchResult)
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   mustJSON(t, gatewayResponse{Text: validReply, TokensUsed: 321}),
			validateOutput: func(t *testing.T, r models.BatchResult) {
				assert.Equal(t, 321, r.TokenUsage)
				assert.Equal(t, 12, r.Sentiment.Positive)
				assert.Greater(t, r.ProcessingTime, time.Duration(0))
			},
		},
		{name: "unauthorized is fatal", status: http.StatusUnauthorized, body: `{"error":"bad key"}`, expectedError: errors.ErrFatalRemote},
		{name: "forbidden is fatal", status: http.StatusForbidden, body: `{}`, expectedError: errors.ErrFatalRemote},
		{name: "bad request is fatal", status: http.StatusBadRequest, body: `{}`, expectedError: errors.ErrFatalRemote},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, expectedError: errors.ErrRateLimited},
		{name: "server error is transient", status: http.StatusBadGateway, body: `{}`, expectedError: errors.ErrTransientRemote},
		{name: "unusable reply", status: http.StatusOK, body: mustJSON(t, gatewayResponse{Text: "no idea"}), expectedError: errors.ErrParse},
		{name: "broken envelope", status: http.StatusOK, body: `<html>`, expectedError: errors.ErrParse},
		{name: "slow call times out", status: http.StatusOK, body: `{}`, delay: 200 * time.Millisecond, expectedError: errors.ErrRemoteTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newGatewayClient(t, server.URL, 50*time.Millisecond)
			if tt.delay == 0 {
				c.config.Timeout = 5 * time.Second
			}

			r, err := c.Analyze(context.Background(), testPayload(), 1024)
			if tt.expectedError != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedError)
				return
			}
			require.NoError(t, err)
			tt.validateOutput(t, r)
		})
	}
}

func TestGateway_SendsBudgetAndSeed(t *testing.T) {
	var got gatewayRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/generate", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(mustJSON(t, gatewayResponse{Text: validReply})))
	}))
	defer server.Close()

	c := newGatewayClient(t, server.URL+"/", 5*time.Second)
	_, err := c.Analyze(context.Background(), testPayload(), 777)
	require.NoError(t, err)

	assert.Equal(t, 777, got.MaxTokens)
	assert.Equal(t, int32(42), got.Seed)
	assert.Equal(t, float32(0), got.Temperature)
	assert.Equal(t, "gemini-1.5-flash", got.Model)
	assert.Equal(t, "json", got.ResponseFormat)
	assert.Contains(t, got.Prompt, "1. love it")
}

func TestGateway_ConnectionRefusedIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := newGatewayClient(t, url, time.Second)
	_, err := c.Analyze(context.Background(), testPayload(), 1024)
	assert.ErrorIs(t, err, errors.ErrTransientRemote)
}

func TestClient_RejectsNonPositiveBudget(t *testing.T) {
	c := newGatewayClient(t, "http://unused.invalid", time.Second)
	_, err := c.Analyze(context.Background(), testPayload(), 0)
	assert.ErrorIs(t, err, errors.ErrConfiguration)
}

func TestClient_CallerCancellationIsNotTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// r.Context() is only cancelled once the body has been consumed
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	c := newGatewayClient(t, server.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.Analyze(ctx, testPayload(), 1024)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, errors.ErrRemoteTimeout)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(ClientConfig{Model: "m"}, nil, logger.NewNoOpLogger())
	assert.ErrorIs(t, err, errors.ErrConfiguration)

	transport, _ := NewGatewayTransport("http://x", "", nil)
	_, err = NewClient(ClientConfig{}, transport, logger.NewNoOpLogger())
	assert.ErrorIs(t, err, errors.ErrConfiguration)

	_, err = NewGatewayTransport("", "", nil)
	assert.ErrorIs(t, err, errors.ErrConfiguration)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{400, errors.ErrFatalRemote},
		{401, errors.ErrFatalRemote},
		{403, errors.ErrFatalRemote},
		{404, errors.ErrFatalRemote},
		{408, errors.ErrTransientRemote},
		{429, errors.ErrRateLimited},
		{500, errors.ErrTransientRemote},
		{503, errors.ErrTransientRemote},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, ClassifyStatus(tt.status, nil), tt.want, "status %d", tt.status)
	}
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
