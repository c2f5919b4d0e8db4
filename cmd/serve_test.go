package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/monitoring"
	"github.com/anivertis/market-pipeline/internal/store"
)

func newServeStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestServeHealth(t *testing.T) {
	mux := newMux(newServeStore(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServePrices(t *testing.T) {
	st := newServeStore(t)
	ctx := context.Background()

	_, err := st.InsertPrice(ctx, model.PriceRow{
		AssetID:         "MILHO_CEPEA",
		RawValue:        "65,50",
		NormalizedValue: 65.50,
		SourceUnit:      "BRL/saca",
		TargetUnit:      "BRL/saca",
		ReferenceDate:   "2026-08-27",
		Source:          "cepea-milho",
		IntegrityHash:   "deadbeef",
		QualityScore:    100,
		CollectedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux := newMux(st)
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices/MILHO_CEPEA", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var rows []model.PriceRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 65.50, rows[0].NormalizedValue)

	// Unknown asset is an empty list, not an error.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices/NOPE", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServeSourceHealth(t *testing.T) {
	st := newServeStore(t)
	ctx := context.Background()

	for i := 0; i < monitoring.DegradedThreshold; i++ {
		require.NoError(t, st.RecordFailure(ctx, "scot-sebo", time.Now().UTC()))
	}

	rec := httptest.NewRecorder()
	newMux(st).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sources/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Contains(t, snap.Degraded, "scot-sebo")
}

func TestQueryLimit(t *testing.T) {
	assert.Equal(t, 100, queryLimit(httptest.NewRequest(http.MethodGet, "/api/prices/X", nil)))
	assert.Equal(t, 10, queryLimit(httptest.NewRequest(http.MethodGet, "/api/prices/X?limit=10", nil)))
	assert.Equal(t, 1000, queryLimit(httptest.NewRequest(http.MethodGet, "/api/prices/X?limit=99999", nil)))
	assert.Equal(t, 100, queryLimit(httptest.NewRequest(http.MethodGet, "/api/prices/X?limit=bogus", nil)))
}
