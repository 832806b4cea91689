package orchestrator

import "comment-insights/internal/models"

// Split partitions items into contiguous batches of size; the last batch may
// be shorter. Each batch is capacity-limited so appending to one can never
// overwrite its neighbour.
func Split(items []models.AnalysisItem, size int) [][]models.AnalysisItem {
	if size < 1 || len(items) == 0 {
		return nil
	}
	batches := make([][]models.AnalysisItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end:end])
	}
	return batches
}
