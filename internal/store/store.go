package store

import (
	"context"
	"time"

	"github.com/anivertis/market-pipeline/internal/model"
)

// Store defines persistence for the ingestion-and-derivation pipeline. Two
// implementations exist: SQLite (default, single file) and Postgres.
type Store interface {
	// Fact table. InsertPrice is insert-or-ignore on the integrity hash:
	// false means the row already existed, which is expected on re-runs.
	InsertPrice(ctx context.Context, row model.PriceRow) (bool, error)
	LatestPrice(ctx context.Context, assetIDs ...string) (*model.PriceRow, error)
	DailySeries(ctx context.Context, assetID string) ([]model.SeriesPoint, error)
	ListPrices(ctx context.Context, assetID string, limit int) ([]model.PriceRow, error)

	// Derived metrics, upserted by (asset group, type, reference date).
	UpsertMetric(ctx context.Context, m model.DerivedMetric) error
	ListMetrics(ctx context.Context, assetGroup string, limit int) ([]model.DerivedMetric, error)

	// Unit conversions: read by the normalizer, seeded by operators.
	ConversionRule(ctx context.Context, assetID, fromUnit, toUnit string) (*model.ConversionRule, error)
	SeedConversionRule(ctx context.Context, rule model.ConversionRule) error

	// Source health counters, written after every runner execution.
	RecordSuccess(ctx context.Context, sourceID string, at time.Time) error
	RecordFailure(ctx context.Context, sourceID string, at time.Time) error
	ListHealth(ctx context.Context) ([]model.SourceHealth, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
