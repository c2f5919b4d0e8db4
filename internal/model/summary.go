package model

import "time"

// SourceOutcome records how a single source fared within a batch run.
type SourceOutcome struct {
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	Tier       Tier      `json:"tier"`
	Theme      string    `json:"theme"`
	Articles   []Article `json:"articles,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Succeeded reports whether the source produced usable data.
func (o SourceOutcome) Succeeded() bool { return o.Error == "" }

// TierCount aggregates outcomes for one tier.
type TierCount struct {
	Tier    Tier `json:"tier"`
	Total   int  `json:"total"`
	Success int  `json:"success"`
	Failed  int  `json:"failed"`
}

// RunSummary is the structured report of one orchestrator run, consumed by
// logging and monitoring collaborators.
type RunSummary struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	Elapsed   time.Duration   `json:"elapsed"`
	Total     int             `json:"total"`
	Success   []SourceOutcome `json:"success"`
	Failed    []SourceOutcome `json:"failed"`
	Tiers     []TierCount     `json:"tiers"`
}

// SuccessRate returns success/total as a percentage.
func (s RunSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(len(s.Success)) / float64(s.Total) * 100
}
