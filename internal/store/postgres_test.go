package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anivertis/market-pipeline/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgresInsertPrice(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO market_bi_precos").
		WithArgs("BOI_GORDO", "350,50", 350.50, "BRL/arroba", "BRL/arroba",
			"2026-08-27", "cepea-boi", "abc123", 100, nil, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := s.InsertPrice(context.Background(), testRow("BOI_GORDO", "2026-08-27", "abc123", 350.50))
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertPriceDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	// ON CONFLICT DO NOTHING reports zero rows affected for a duplicate hash.
	mock.ExpectExec("INSERT INTO market_bi_precos").
		WithArgs("BOI_GORDO", "350,50", 350.50, "BRL/arroba", "BRL/arroba",
			"2026-08-27", "cepea-boi", "abc123", 100, nil, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := s.InsertPrice(context.Background(), testRow("BOI_GORDO", "2026-08-27", "abc123", 350.50))
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatestPrice(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "ativo_id", "valor_bruto", "valor_normalizado", "unidade_origem",
		"unidade_destino", "data_referencia", "fonte", "integridade_hash_sha256",
		"quality_score", "coletado_em",
	}).AddRow(int64(7), "MILHO", "61,20", 61.20, "BRL/saca", "BRL/saca",
		"2026-08-27", "cepea-milho", "h3", 100, now)

	mock.ExpectQuery("SELECT (.+) FROM market_bi_precos WHERE ativo_id = ANY").
		WithArgs([]string{"MILHO"}).
		WillReturnRows(rows)

	p, err := s.LatestPrice(context.Background(), "MILHO")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, 61.20, p.NormalizedValue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatestPriceEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM market_bi_precos WHERE ativo_id = ANY").
		WithArgs([]string{"SOJA"}).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "ativo_id", "valor_bruto", "valor_normalizado", "unidade_origem",
			"unidade_destino", "data_referencia", "fonte", "integridade_hash_sha256",
			"quality_score", "coletado_em",
		}))

	p, err := s.LatestPrice(context.Background(), "SOJA")
	require.NoError(t, err)
	assert.Nil(t, p)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConversionRuleMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT fator, deslocamento FROM conversoes_unidade").
		WithArgs("DIESEL", "USD/gal", "BRL/m3").
		WillReturnRows(pgxmock.NewRows([]string{"fator", "deslocamento"}))

	rule, err := s.ConversionRule(context.Background(), "DIESEL", "USD/gal", "BRL/m3")
	require.NoError(t, err)
	assert.Nil(t, rule)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertMetric(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO "metricas_derivadas"`).
		WithArgs("DIESEL_SPREAD", "spread", 750.0, "2026-08-27", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertMetric(context.Background(), model.DerivedMetric{
		AssetGroup:    "DIESEL_SPREAD",
		Type:          model.MetricSpread,
		Value:         750.0,
		ReferenceDate: "2026-08-27",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordFailure(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO source_health").
		WithArgs("cepea-boi", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordFailure(context.Background(), "cepea-boi", now))
	require.NoError(t, mock.ExpectationsWereMet())
}
