package remote

import (
	"encoding/json"
	"strings"

	"comment-insights/internal/common/errors"
	"comment-insights/internal/common/validation"
	"comment-insights/internal/engine/prompt"
	"comment-insights/internal/models"
)

// reply mirrors prompt.ResponseSchema.
type reply struct {
	Sentiment struct {
		Positive int `json:"positive"`
		Neutral  int `json:"neutral"`
		Negative int `json:"negative"`
	} `json:"sentiment"`
	Themes          map[string]float64 `json:"themes"`
	Emotions        map[string]float64 `json:"emotions"`
	Summary         string             `json:"summary"`
	Recommendations []string           `json:"recommendations"`
	Confidence      float64            `json:"confidence"`
}

// Parser decodes replies strictly: the document must validate against the
// response schema before it is decoded, and nothing is defaulted.
type Parser struct {
	schema *validation.Schema
}

func NewParser() *Parser {
	return &Parser{schema: validation.MustCompile(prompt.ResponseSchema)}
}

func (p *Parser) Parse(text string) (models.BatchResult, error) {
	body := stripCodeFence(text)
	if body == "" {
		return models.BatchResult{}, errors.NewParseError("empty reply", nil)
	}

	res, err := p.schema.ValidateBytes([]byte(body))
	if err != nil {
		return models.BatchResult{}, errors.NewParseError("reply is not a JSON document", err)
	}
	if !res.Valid {
		return models.BatchResult{}, errors.NewParseError(res.Summary(), nil)
	}

	var r reply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return models.BatchResult{}, errors.NewParseError("decode reply", err)
	}

	return models.BatchResult{
		Sentiment: models.SentimentDistribution{
			Positive: r.Sentiment.Positive,
			Neutral:  r.Sentiment.Neutral,
			Negative: r.Sentiment.Negative,
		},
		Themes:          r.Themes,
		Emotions:        r.Emotions,
		Summary:         strings.TrimSpace(r.Summary),
		Recommendations: r.Recommendations,
		Confidence:      r.Confidence,
	}, nil
}

// stripCodeFence removes a surrounding Markdown fence such as ```json ... ```.
func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
