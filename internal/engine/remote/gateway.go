package remote

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"comment-insights/internal/common/errors"
	commonhttp "comment-insights/internal/common/http"
)

// GatewayTransport posts to an internal GenAI gateway at {baseURL}/api/ai/generate.
type GatewayTransport struct {
	baseURL string
	apiKey  string
	client  *commonhttp.Client
}

func NewGatewayTransport(baseURL, apiKey string, client *commonhttp.Client) (*GatewayTransport, error) {
	if baseURL == "" {
		return nil, errors.NewConfigurationError("gateway base URL is required")
	}
	if client == nil {
		// deadlines come from the per-call context
		client = commonhttp.NewClient(0)
	}
	return &GatewayTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}, nil
}

func (g *GatewayTransport) Name() string { return "gateway" }

type gatewayRequest struct {
	Model          string  `json:"model"`
	System         string  `json:"system,omitempty"`
	Prompt         string  `json:"prompt"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float32 `json:"temperature"`
	Seed           int32   `json:"seed"`
	ResponseFormat string  `json:"response_format"`
}

type gatewayResponse struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

func (g *GatewayTransport) Generate(ctx context.Context, req Request) (Response, error) {
	var headers map[string]string
	if g.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + g.apiKey}
	}

	body, err := g.client.PostJSON(ctx, g.baseURL+"/api/ai/generate", gatewayRequest{
		Model:          req.Model,
		System:         req.System,
		Prompt:         req.Prompt,
		MaxTokens:      req.MaxOutputTokens,
		Temperature:    req.Temperature,
		Seed:           req.Seed,
		ResponseFormat: "json",
	}, headers)
	if err != nil {
		var statusErr *commonhttp.StatusError
		if stderrors.As(err, &statusErr) {
			return Response{}, ClassifyStatus(statusErr.StatusCode, err)
		}
		return Response{}, err
	}

	var resp gatewayResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, errors.NewParseError("gateway envelope is not JSON", err)
	}
	return Response{Text: resp.Text, TokensUsed: resp.TokensUsed}, nil
}
