package models

import (
	"fmt"
	"time"
)

// AnalysisItem is one input comment and its position in the original list.
type AnalysisItem struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// NewItems numbers raw comments in input order.
func NewItems(texts []string) []AnalysisItem {
	items := make([]AnalysisItem, len(texts))
	for i, t := range texts {
		items[i] = AnalysisItem{Position: i, Text: t}
	}
	return items
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// SentimentPriority is the tie-break order for the overall trend.
var SentimentPriority = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}

// SentimentDistribution counts comments per sentiment category.
type SentimentDistribution struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

func (d SentimentDistribution) Add(o SentimentDistribution) SentimentDistribution {
	return SentimentDistribution{
		Positive: d.Positive + o.Positive,
		Neutral:  d.Neutral + o.Neutral,
		Negative: d.Negative + o.Negative,
	}
}

func (d SentimentDistribution) Total() int {
	return d.Positive + d.Neutral + d.Negative
}

func (d SentimentDistribution) Count(s Sentiment) int {
	switch s {
	case SentimentPositive:
		return d.Positive
	case SentimentNeutral:
		return d.Neutral
	case SentimentNegative:
		return d.Negative
	default:
		return 0
	}
}

// Trend returns the category with the highest count. Ties resolve in
// SentimentPriority order, so an all-zero distribution is positive.
func (d SentimentDistribution) Trend() Sentiment {
	best := SentimentPriority[0]
	for _, s := range SentimentPriority[1:] {
		if d.Count(s) > d.Count(best) {
			best = s
		}
	}
	return best
}

// BatchResult is the parsed outcome of one successful remote call.
type BatchResult struct {
	Sentiment       SentimentDistribution `json:"sentiment"`
	Themes          map[string]float64    `json:"themes"`
	Emotions        map[string]float64    `json:"emotions"`
	Summary         string                `json:"summary"`
	Recommendations []string              `json:"recommendations"`
	Confidence      float64               `json:"confidence"`
	TokenUsage      int                   `json:"tokenUsage"`
	ProcessingTime  time.Duration         `json:"processingTime"`
}

// Clone returns a deep copy so cached results cannot be mutated by callers.
func (r BatchResult) Clone() BatchResult {
	out := r
	out.Themes = cloneScores(r.Themes)
	out.Emotions = cloneScores(r.Emotions)
	out.Recommendations = append([]string(nil), r.Recommendations...)
	if out.Recommendations == nil {
		out.Recommendations = []string{}
	}
	return out
}

func cloneScores(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ScoredTerm is a theme or emotion with its merged score.
type ScoredTerm struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// AggregatedAnalysis is the merged result of every successful batch.
type AggregatedAnalysis struct {
	RunID             string                `json:"runId"`
	TotalProcessed    int                   `json:"totalProcessed"`
	TotalBatches      int                   `json:"totalBatches"`
	FailedBatchCount  int                   `json:"failedBatchCount"`
	CacheHits         int                   `json:"cacheHits"`
	Sentiment         SentimentDistribution `json:"sentiment"`
	OverallTrend      Sentiment             `json:"overallTrend"`
	Themes            []ScoredTerm          `json:"themes"`
	Emotions          []ScoredTerm          `json:"emotions"`
	Recommendations   []string              `json:"recommendations"`
	Summaries         []string              `json:"summaries"`
	AverageConfidence float64               `json:"averageConfidence"`
	TokenUsage        int                   `json:"tokenUsage"`
	ProcessingTime    time.Duration         `json:"processingTime"`
}

// NewAggregatedAnalysis returns an analysis with every collection allocated.
func NewAggregatedAnalysis() *AggregatedAnalysis {
	return &AggregatedAnalysis{
		OverallTrend:    SentimentPositive,
		Themes:          []ScoredTerm{},
		Emotions:        []ScoredTerm{},
		Recommendations: []string{},
		Summaries:       []string{},
	}
}

// SucceededBatches is the number of batches that contributed a result.
func (a *AggregatedAnalysis) SucceededBatches() int {
	return a.TotalBatches - a.FailedBatchCount
}

// Degraded reports whether some batches were skipped.
func (a *AggregatedAnalysis) Degraded() bool {
	return a.FailedBatchCount > 0
}

// StatusLine renders the partial-degradation message shown to users.
func (a *AggregatedAnalysis) StatusLine() string {
	if !a.Degraded() {
		return fmt.Sprintf("analysis complete (%d of %d batches succeeded)", a.SucceededBatches(), a.TotalBatches)
	}
	return fmt.Sprintf("analysis partially degraded (%d of %d batches succeeded)", a.SucceededBatches(), a.TotalBatches)
}
