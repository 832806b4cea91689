package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"comment-insights/internal/common/errors"
	"comment-insights/internal/engine/orchestrator"
)

const (
	maxRunsLimit       = 200
	defaultUsageWindow = 24 * time.Hour
)

// RunHistory is the read side of the usage ledger.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]orchestrator.RunRecord, error)
	TokensSince(ctx context.Context, since time.Time) (int64, error)
}

type runView struct {
	RunID       string    `json:"runId"`
	Model       string    `json:"model"`
	Items       int       `json:"items"`
	Processed   int       `json:"processed"`
	Batches     int       `json:"batches"`
	Failed      int       `json:"batchesFailed"`
	CacheHits   int       `json:"cacheHits"`
	RemoteCalls int       `json:"remoteCalls"`
	TokensSpent int       `json:"tokensSpent"`
	DurationMs  int64     `json:"durationMs"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"startedAt"`
}

// handleRuns serves GET /v1/runs?limit=N, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			s.writeError(w, r, errors.NewInputInvalidError("limit must be an integer between 1 and "+strconv.Itoa(maxRunsLimit)))
			return
		}
		limit = n
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	runs := make([]runView, 0, len(records))
	for _, rec := range records {
		runs = append(runs, runView{
			RunID:       rec.RunID,
			Model:       rec.Model,
			Items:       rec.Items,
			Processed:   rec.Processed,
			Batches:     rec.Batches,
			Failed:      rec.Failed,
			CacheHits:   rec.CacheHits,
			RemoteCalls: rec.RemoteCalls,
			TokensSpent: rec.TokensSpent,
			DurationMs:  rec.Duration.Milliseconds(),
			Status:      rec.Status,
			StartedAt:   rec.StartedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleUsage serves GET /v1/usage?since=RFC3339. The window defaults to the
// last 24 hours.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-defaultUsageWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, r, errors.NewInputInvalidError("since must be an RFC3339 timestamp"))
			return
		}
		since = t
	}

	tokens, err := s.history.TokensSince(r.Context(), since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"since":  since.UTC().Format(time.RFC3339),
		"tokens": tokens,
	})
}
