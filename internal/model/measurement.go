package model

import "time"

// RawMeasurement is the direct output of an indicator extraction: the value
// exactly as it appeared on the page, before normalization. Ephemeral; it
// never leaves the run that produced it.
type RawMeasurement struct {
	AssetID     string
	RawValue    string
	SourceUnit  string
	CollectedAt time.Time

	// RawPayload is a truncated snapshot of the page for audit. May be empty.
	RawPayload string

	Success bool
	Error   string
}

// NormalizedRecord is a measurement after unit conversion, ready to persist.
// ReferenceDate is the date the measurement is about, not when it was
// collected.
type NormalizedRecord struct {
	AssetID         string
	RawValue        string
	NormalizedValue float64
	SourceUnit      string
	TargetUnit      string
	ReferenceDate   string // YYYY-MM-DD
	Source          string
	Tier            Tier
	RawPayload      string
}

// PriceRow is a persisted NormalizedRecord plus its integrity hash. Rows are
// append-only: created once, never updated or deleted.
type PriceRow struct {
	ID              int64     `json:"id"`
	AssetID         string    `json:"asset_id"`
	RawValue        string    `json:"raw_value"`
	NormalizedValue float64   `json:"normalized_value"`
	SourceUnit      string    `json:"source_unit"`
	TargetUnit      string    `json:"target_unit"`
	ReferenceDate   string    `json:"reference_date"`
	Source          string    `json:"source"`
	IntegrityHash   string    `json:"integrity_hash"`
	QualityScore    int       `json:"quality_score"`
	RawPayload      string    `json:"-"`
	CollectedAt     time.Time `json:"collected_at"`
}

// ConversionRule maps (asset, source unit, target unit) to a linear
// transform. Owned by reference data; the pipeline only reads it.
type ConversionRule struct {
	AssetID  string
	FromUnit string
	ToUnit   string
	Factor   float64
	Offset   float64
}

// SeriesPoint is one observation of a normalized daily series, ordered by
// reference date ascending when returned from the store.
type SeriesPoint struct {
	Date  time.Time
	Value float64
}
