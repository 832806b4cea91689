package orchestrator

import (
	"sort"
	"strings"

	"comment-insights/internal/models"
)

// Aggregate merges successful batch results. sizes[i] is the item count of
// the batch that produced results[i].
//
//   - sentiment counts, token usage and processing time are summed
//   - theme and emotion scores are summed per name, then ranked descending
//     with ties ordered by name
//   - recommendations keep their first spelling and first-seen order, compared
//     case-insensitively with whitespace collapsed
//   - confidence is the arithmetic mean
func Aggregate(results []models.BatchResult, sizes []int) *models.AggregatedAnalysis {
	out := models.NewAggregatedAnalysis()
	if len(results) == 0 {
		return out
	}

	themes := make(map[string]float64)
	emotions := make(map[string]float64)
	seen := make(map[string]struct{})
	var confidence float64

	for i, r := range results {
		if i < len(sizes) {
			out.TotalProcessed += sizes[i]
		}
		out.Sentiment = out.Sentiment.Add(r.Sentiment)
		for name, score := range r.Themes {
			themes[name] += score
		}
		for name, score := range r.Emotions {
			emotions[name] += score
		}
		for _, rec := range r.Recommendations {
			rec = strings.TrimSpace(rec)
			key := strings.ToLower(strings.Join(strings.Fields(rec), " "))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out.Recommendations = append(out.Recommendations, rec)
		}
		if s := strings.TrimSpace(r.Summary); s != "" {
			out.Summaries = append(out.Summaries, s)
		}
		confidence += r.Confidence
		out.TokenUsage += r.TokenUsage
		out.ProcessingTime += r.ProcessingTime
	}

	out.OverallTrend = out.Sentiment.Trend()
	out.Themes = rank(themes)
	out.Emotions = rank(emotions)
	out.AverageConfidence = confidence / float64(len(results))
	return out
}

func rank(scores map[string]float64) []models.ScoredTerm {
	terms := make([]models.ScoredTerm, 0, len(scores))
	for name, score := range scores {
		terms = append(terms, models.ScoredTerm{Name: name, Score: score})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Score != terms[j].Score {
			return terms[i].Score > terms[j].Score
		}
		return terms[i].Name < terms[j].Name
	})
	return terms
}
