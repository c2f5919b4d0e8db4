package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/store"
)

func testIngestor(t *testing.T) (*Ingestor, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func record(assetID, raw, date string, value float64) model.NormalizedRecord {
	return model.NormalizedRecord{
		AssetID:         assetID,
		RawValue:        raw,
		NormalizedValue: value,
		SourceUnit:      "BRL/kg",
		TargetUnit:      "BRL/kg",
		ReferenceDate:   date,
		Source:          "cepea-sebo",
	}
}

func TestIntegrityHashStable(t *testing.T) {
	rec := record("SEBO_BOVINO_SP", "5,90", "2026-08-27", 5.90)
	h1 := IntegrityHash(rec)
	h2 := IntegrityHash(rec)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	// Any identity field changes the address.
	rec2 := rec
	rec2.ReferenceDate = "2026-08-28"
	assert.NotEqual(t, h1, IntegrityHash(rec2))

	rec3 := rec
	rec3.Source = "other-source"
	assert.NotEqual(t, h1, IntegrityHash(rec3))
}

func TestSaveIdempotent(t *testing.T) {
	g, _ := testIngestor(t)
	ctx := context.Background()
	rec := record("SEBO_BOVINO_SP", "5,90", "2026-08-27", 5.90)

	first, err := g.Save(ctx, rec)
	require.NoError(t, err)
	assert.True(t, first.Inserted)
	assert.Equal(t, 100, first.Quality)

	second, err := g.Save(ctx, rec)
	require.NoError(t, err)
	assert.False(t, second.Inserted, "re-ingestion is a no-op, not an error")
	assert.Equal(t, first.Hash, second.Hash)
}

func TestSaveDifferentDaysBothLand(t *testing.T) {
	g, st := testIngestor(t)
	ctx := context.Background()

	_, err := g.Save(ctx, record("SEBO_BOVINO_SP", "5,90", "2026-08-26", 5.90))
	require.NoError(t, err)
	_, err = g.Save(ctx, record("SEBO_BOVINO_SP", "5,90", "2026-08-27", 5.90))
	require.NoError(t, err)

	rows, err := st.ListPrices(ctx, "SEBO_BOVINO_SP", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestQualityScoring(t *testing.T) {
	assert.Equal(t, 100, QualityScore(ValidateQuality(record("SEBO_BOVINO_SP", "5,90", "2026-08-27", 5.90))))

	// Out of the plausible band: warning, 20 points off.
	assert.Equal(t, 80, QualityScore(ValidateQuality(record("SEBO_BOVINO_SP", "25,00", "2026-08-27", 25.0))))

	// Negative and out of band: two issues.
	assert.Equal(t, 60, QualityScore(ValidateQuality(record("SEBO_BOVINO_SP", "-1,00", "2026-08-27", -1.0))))

	// No band registered for the asset: only the negative rule applies.
	assert.Equal(t, 80, QualityScore(ValidateQuality(record("BOI_GORDO", "-350,50", "2026-08-27", -350.5))))
}

func TestSavePersistsQualityScore(t *testing.T) {
	g, st := testIngestor(t)
	ctx := context.Background()

	res, err := g.Save(ctx, record("SEBO_BOVINO_SP", "25,00", "2026-08-27", 25.0))
	require.NoError(t, err)
	assert.Equal(t, 80, res.Quality)

	rows, err := st.ListPrices(ctx, "SEBO_BOVINO_SP", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 80, rows[0].QualityScore)
}

func TestSaveTruncatesPayload(t *testing.T) {
	g, _ := testIngestor(t)

	rec := record("SEBO_BOVINO_SP", "5,90", "2026-08-27", 5.90)
	rec.RawPayload = strings.Repeat("x", MaxPayloadBytes*2)

	_, err := g.Save(context.Background(), rec)
	require.NoError(t, err)
}
