package model

import "time"

// SourceHealth tracks per-source operational counters. Updated after every
// runner execution; read by monitoring, never by the pipeline itself.
type SourceHealth struct {
	SourceID            string     `json:"source_id"`
	SuccessCount        int        `json:"success_count"`
	FailureCount        int        `json:"failure_count"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
}

// SuccessRate returns the fraction of successful runs, or 0 with no history.
func (h SourceHealth) SuccessRate() float64 {
	total := h.SuccessCount + h.FailureCount
	if total == 0 {
		return 0
	}
	return float64(h.SuccessCount) / float64(total)
}
