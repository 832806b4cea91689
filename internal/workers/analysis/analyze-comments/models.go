package analyzecomments

import "comment-insights/internal/models"

// Input is the job variable set the worker reads. Other process variables
// are ignored.
type Input struct {
	RequestID string   `json:"requestId,omitempty"`
	Comments  []string `json:"comments"`
}

// Output is written back to the process instance on completion.
type Output struct {
	Analysis      *models.AggregatedAnalysis `json:"analysis,omitempty"`
	Degraded      bool                       `json:"degraded"`
	Status        string                     `json:"status"`
	BatchesFailed int                        `json:"batchesFailed"`
}

func newOutput(a *models.AggregatedAnalysis) *Output {
	return &Output{
		Analysis:      a,
		Degraded:      a.Degraded(),
		Status:        a.StatusLine(),
		BatchesFailed: a.FailedBatchCount,
	}
}
