package remote

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"comment-insights/internal/common/errors"
)

// contentGenerator is the slice of *genai.Models the transport needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiTransport calls the Gemini API through the Google GenAI SDK.
type GeminiTransport struct {
	generator contentGenerator
}

// NewGeminiTransport creates the SDK client. baseURL is optional and only
// needed behind a proxy.
func NewGeminiTransport(ctx context.Context, apiKey, baseURL string) (*GeminiTransport, error) {
	if apiKey == "" {
		return nil, errors.NewConfigurationError("GenAI API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiTransport{generator: client.Models}, nil
}

func (g *GeminiTransport) Name() string { return "gemini" }

func (g *GeminiTransport) Generate(ctx context.Context, req Request) (Response, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens:  int32(req.MaxOutputTokens),
		Temperature:      genai.Ptr(req.Temperature),
		Seed:             genai.Ptr(req.Seed),
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := g.generator.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return Response{}, mapGenAIError(err)
	}
	if resp == nil {
		return Response{}, errors.NewParseError("empty GenAI response", nil)
	}

	out := Response{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

// mapGenAIError classifies SDK errors by HTTP code, falling back to the
// canonical status string when the code is missing.
func mapGenAIError(err error) error {
	var apiErr genai.APIError
	if !stderrors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !stderrors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return err
		}
		apiErr = *apiErrPtr
	}

	if apiErr.Code == 0 {
		switch apiErr.Status {
		case "RESOURCE_EXHAUSTED":
			return errors.NewRateLimitedError(err)
		case "UNAUTHENTICATED":
			return errors.NewFatalRemoteError(http.StatusUnauthorized, err)
		case "PERMISSION_DENIED":
			return errors.NewFatalRemoteError(http.StatusForbidden, err)
		case "INVALID_ARGUMENT", "NOT_FOUND":
			return errors.NewFatalRemoteError(http.StatusBadRequest, err)
		default:
			return errors.NewTransientRemoteError(0, err)
		}
	}
	return ClassifyStatus(apiErr.Code, err)
}
