// Package ingest persists normalized records with content-addressed
// idempotency. Every row carries a SHA-256 integrity hash over its identity
// fields; re-ingesting the same measurement is a silent no-op, which makes
// whole-batch re-runs safe.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/store"
)

// MaxPayloadBytes caps the audit snapshot stored alongside each row.
const MaxPayloadBytes = 5 * 1024

// Result reports the outcome of a Save.
type Result struct {
	Inserted bool
	Hash     string
	Quality  int
}

// QualityIssue is one violated validation rule. Issues never block ingestion;
// they lower the quality score so consumers can filter.
type QualityIssue struct {
	Rule     string
	Severity string
}

// plausibleRanges holds per-asset sanity bands. Values outside the band are
// flagged as outliers, not rejected: a genuine price shock must still land.
var plausibleRanges = map[string][2]float64{
	"SEBO_BOVINO_SP": {3.0, 10.0},
}

// Ingestor writes normalized records to the store.
type Ingestor struct {
	store store.Store

	migrateOnce sync.Once
	migrateErr  error
}

func New(st store.Store) *Ingestor {
	return &Ingestor{store: st}
}

// IntegrityHash computes the content address of a record: SHA-256 over the
// identity fields joined with "|", in fixed order. Changing this ordering
// invalidates every stored hash, so it never changes.
func IntegrityHash(rec model.NormalizedRecord) string {
	content := strings.Join([]string{
		rec.AssetID, rec.RawValue, rec.ReferenceDate, rec.Source,
	}, "|")
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ValidateQuality returns the validation issues for a record.
func ValidateQuality(rec model.NormalizedRecord) []QualityIssue {
	var issues []QualityIssue
	if rec.NormalizedValue < 0 {
		issues = append(issues, QualityIssue{Rule: "NEGATIVE_VALUE", Severity: "CRITICAL"})
	}
	if band, ok := plausibleRanges[rec.AssetID]; ok {
		if rec.NormalizedValue < band[0] || rec.NormalizedValue > band[1] {
			issues = append(issues, QualityIssue{Rule: "OUTLIER_DETECTED", Severity: "WARNING"})
		}
	}
	return issues
}

// QualityScore maps issues to a 0..100 score: 20 points off per issue.
func QualityScore(issues []QualityIssue) int {
	score := 100 - len(issues)*20
	if score < 0 {
		score = 0
	}
	return score
}

// Save persists one normalized record. The schema is created on first use.
// A duplicate hash is not an error: Inserted is false and the row is logged
// at debug level.
func (g *Ingestor) Save(ctx context.Context, rec model.NormalizedRecord) (Result, error) {
	g.migrateOnce.Do(func() {
		g.migrateErr = g.store.Migrate(ctx)
	})
	if g.migrateErr != nil {
		return Result{}, eris.Wrap(g.migrateErr, "ingest: migrate")
	}

	hash := IntegrityHash(rec)
	issues := ValidateQuality(rec)
	score := QualityScore(issues)

	for _, issue := range issues {
		zap.L().Warn("quality issue",
			zap.String("asset", rec.AssetID),
			zap.String("rule", issue.Rule),
			zap.String("severity", issue.Severity),
			zap.Float64("value", rec.NormalizedValue))
	}

	payload := rec.RawPayload
	if len(payload) > MaxPayloadBytes {
		payload = payload[:MaxPayloadBytes]
	}

	inserted, err := g.store.InsertPrice(ctx, model.PriceRow{
		AssetID:         rec.AssetID,
		RawValue:        rec.RawValue,
		NormalizedValue: rec.NormalizedValue,
		SourceUnit:      rec.SourceUnit,
		TargetUnit:      rec.TargetUnit,
		ReferenceDate:   rec.ReferenceDate,
		Source:          rec.Source,
		IntegrityHash:   hash,
		QualityScore:    score,
		RawPayload:      payload,
		CollectedAt:     time.Now().UTC(),
	})
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: save %s", rec.AssetID)
	}

	if !inserted {
		zap.L().Debug("duplicate measurement skipped",
			zap.String("asset", rec.AssetID),
			zap.String("date", rec.ReferenceDate),
			zap.String("hash", hash))
	}
	return Result{Inserted: inserted, Hash: hash, Quality: score}, nil
}
