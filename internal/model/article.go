package model

import "time"

// LinkCandidate is a headline link harvested from a media portal front page.
// Candidates are resolved to full articles through the extraction waterfall.
type LinkCandidate struct {
	Title       string
	URL         string
	PublishedAt time.Time
}

// Article is the fully resolved output of a source run: either a tier-3 news
// item with extracted body text, or a tier-1/2 indicator rendered as a card.
type Article struct {
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	SourceID    string    `json:"source_id"`
	SourceName  string    `json:"source_name"`
	Tier        Tier      `json:"tier"`
	Theme       string    `json:"theme"`

	// Fallback marks an article synthesized from a source failure. The title
	// carries a [FALHA] tag so downstream consumers can filter these out
	// without losing the failure signal.
	Fallback bool `json:"fallback,omitempty"`
}
