package orchestrator

import "time"

const (
	StatusComplete  = "complete"
	StatusDegraded  = "degraded"
	StatusCancelled = "cancelled"
)

// RunRecord summarizes one AnalyzeAll invocation for the usage ledger.
// TokensSpent only counts remote calls made by this run; cache hits cost
// nothing.
type RunRecord struct {
	RunID       string
	Model       string
	Items       int
	Processed   int
	Batches     int
	Failed      int
	CacheHits   int
	RemoteCalls int
	TokensSpent int
	Duration    time.Duration
	Status      string
	StartedAt   time.Time
}
