package model

import "time"

// MetricType identifies one derived computation.
type MetricType string

const (
	MetricSpread         MetricType = "spread"
	MetricCompositeIndex MetricType = "composite_index"
	MetricCrushMargin    MetricType = "crush_margin"
	MetricPriceRatio     MetricType = "price_ratio"
	MetricRollingBeta    MetricType = "rolling_beta"
	MetricLeadLag        MetricType = "lead_lag"
	MetricMomentum       MetricType = "momentum"
	MetricMAGap          MetricType = "ma_gap"
)

// SignalStrength classifies a lead-lag correlation by magnitude.
type SignalStrength string

const (
	SignalStrong       SignalStrength = "STRONG_SIGNAL"
	SignalModerate     SignalStrength = "MODERATE_SIGNAL"
	SignalWeak         SignalStrength = "WEAK_SIGNAL"
	SignalInsufficient SignalStrength = "INSUFFICIENT_DATA"
)

// DerivedMetric is one computed analytic, upserted by
// (asset group, metric type, reference date). The only mutable entity in the
// model: recomputation for the same day replaces the prior row.
type DerivedMetric struct {
	AssetGroup    string     `json:"asset_group"`
	Type          MetricType `json:"type"`
	Value         float64    `json:"value"`
	ReferenceDate string     `json:"reference_date"`
	ComputedAt    time.Time  `json:"computed_at"`

	// Detail carries metric-specific context (lag, classification, horizon).
	Detail string `json:"detail,omitempty"`
}

// LeadLagResult is the outcome of a lead-lag correlation scan.
type LeadLagResult struct {
	BestLag        int
	Correlation    float64
	Classification SignalStrength
}
