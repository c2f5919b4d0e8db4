package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/anivertis/market-pipeline/internal/db"
	"github.com/anivertis/market-pipeline/internal/model"
)

// PostgresStore implements Store over a pgx pool. It is written against the
// db.Pool interface so tests can substitute pgxmock.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres using the given connection string.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 8
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS market_bi_precos (
	id                      BIGSERIAL PRIMARY KEY,
	ativo_id                TEXT NOT NULL,
	valor_bruto             TEXT NOT NULL,
	valor_normalizado       DOUBLE PRECISION NOT NULL,
	unidade_origem          TEXT NOT NULL,
	unidade_destino         TEXT NOT NULL,
	data_referencia         TEXT NOT NULL,
	fonte                   TEXT,
	integridade_hash_sha256 TEXT NOT NULL,
	quality_score           INTEGER NOT NULL DEFAULT 100,
	raw_payload_debug       TEXT,
	coletado_em             TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (integridade_hash_sha256)
);

CREATE TABLE IF NOT EXISTS metricas_derivadas (
	id              BIGSERIAL PRIMARY KEY,
	ativo_id        TEXT NOT NULL,
	tipo            TEXT NOT NULL,
	valor           DOUBLE PRECISION NOT NULL,
	data_referencia TEXT NOT NULL,
	detalhe         TEXT,
	criado_em       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (ativo_id, tipo, data_referencia)
);

CREATE TABLE IF NOT EXISTS conversoes_unidade (
	id              BIGSERIAL PRIMARY KEY,
	ativo_id        TEXT NOT NULL,
	unidade_origem  TEXT NOT NULL,
	unidade_destino TEXT NOT NULL,
	fator           DOUBLE PRECISION NOT NULL,
	deslocamento    DOUBLE PRECISION NOT NULL DEFAULT 0,
	UNIQUE (ativo_id, unidade_origem, unidade_destino)
);

CREATE TABLE IF NOT EXISTS source_health (
	source_id            TEXT PRIMARY KEY,
	success_count        BIGINT NOT NULL DEFAULT 0,
	failure_count        BIGINT NOT NULL DEFAULT 0,
	consecutive_failures BIGINT NOT NULL DEFAULT 0,
	last_success         TIMESTAMPTZ,
	last_failure         TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_precos_ativo_data ON market_bi_precos(ativo_id, data_referencia);
CREATE INDEX IF NOT EXISTS idx_metricas_ativo ON metricas_derivadas(ativo_id, data_referencia);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertPrice(ctx context.Context, row model.PriceRow) (bool, error) {
	collected := row.CollectedAt
	if collected.IsZero() {
		collected = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO market_bi_precos (
			ativo_id, valor_bruto, valor_normalizado, unidade_origem,
			unidade_destino, data_referencia, fonte, integridade_hash_sha256,
			quality_score, raw_payload_debug, coletado_em
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (integridade_hash_sha256) DO NOTHING`,
		row.AssetID, row.RawValue, row.NormalizedValue, row.SourceUnit,
		row.TargetUnit, row.ReferenceDate, row.Source, row.IntegrityHash,
		row.QualityScore, nullString(row.RawPayload == "", row.RawPayload), collected,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert price %s", row.AssetID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) LatestPrice(ctx context.Context, assetIDs ...string) (*model.PriceRow, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, ativo_id, valor_bruto, valor_normalizado, unidade_origem,
		 unidade_destino, data_referencia, COALESCE(fonte, ''), integridade_hash_sha256,
		 quality_score, coletado_em
		 FROM market_bi_precos WHERE ativo_id = ANY($1)
		 ORDER BY data_referencia DESC, coletado_em DESC LIMIT 1`,
		assetIDs,
	)
	var p model.PriceRow
	err := row.Scan(&p.ID, &p.AssetID, &p.RawValue, &p.NormalizedValue,
		&p.SourceUnit, &p.TargetUnit, &p.ReferenceDate, &p.Source,
		&p.IntegrityHash, &p.QualityScore, &p.CollectedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest price")
	}
	return &p, nil
}

func (s *PostgresStore) DailySeries(ctx context.Context, assetID string) ([]model.SeriesPoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data_referencia, valor_normalizado FROM market_bi_precos
		 WHERE ativo_id = $1 ORDER BY data_referencia ASC, coletado_em ASC`,
		assetID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: series %s", assetID)
	}
	defer rows.Close()

	var series []model.SeriesPoint
	for rows.Next() {
		var dateStr string
		var p model.SeriesPoint
		if err := rows.Scan(&dateStr, &p.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan series point")
		}
		d, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: bad reference date %q", dateStr)
		}
		p.Date = d
		series = append(series, p)
	}
	return series, eris.Wrap(rows.Err(), "postgres: series rows")
}

func (s *PostgresStore) ListPrices(ctx context.Context, assetID string, limit int) ([]model.PriceRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, ativo_id, valor_bruto, valor_normalizado, unidade_origem,
		 unidade_destino, data_referencia, COALESCE(fonte, ''), integridade_hash_sha256,
		 quality_score, coletado_em
		 FROM market_bi_precos WHERE ativo_id = $1
		 ORDER BY data_referencia DESC, coletado_em DESC LIMIT $2`,
		assetID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list prices %s", assetID)
	}
	defer rows.Close()

	var out []model.PriceRow
	for rows.Next() {
		var p model.PriceRow
		if err := rows.Scan(&p.ID, &p.AssetID, &p.RawValue, &p.NormalizedValue,
			&p.SourceUnit, &p.TargetUnit, &p.ReferenceDate, &p.Source,
			&p.IntegrityHash, &p.QualityScore, &p.CollectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: price rows")
}

func (s *PostgresStore) UpsertMetric(ctx context.Context, m model.DerivedMetric) error {
	computed := m.ComputedAt
	if computed.IsZero() {
		computed = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		db.UpsertSQL("metricas_derivadas",
			[]string{"ativo_id", "tipo", "valor", "data_referencia", "detalhe", "criado_em"},
			[]string{"ativo_id", "tipo", "data_referencia"}),
		m.AssetGroup, string(m.Type), m.Value, m.ReferenceDate, m.Detail, computed,
	)
	return eris.Wrapf(err, "postgres: upsert metric %s/%s", m.AssetGroup, m.Type)
}

func (s *PostgresStore) ListMetrics(ctx context.Context, assetGroup string, limit int) ([]model.DerivedMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ativo_id, tipo, valor, data_referencia, COALESCE(detalhe, ''), criado_em
		FROM metricas_derivadas`
	var args []any
	if assetGroup != "" {
		query += ` WHERE ativo_id = $1 ORDER BY data_referencia DESC, criado_em DESC LIMIT $2`
		args = append(args, assetGroup, limit)
	} else {
		query += ` ORDER BY data_referencia DESC, criado_em DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list metrics")
	}
	defer rows.Close()

	var out []model.DerivedMetric
	for rows.Next() {
		var m model.DerivedMetric
		var typ string
		if err := rows.Scan(&m.AssetGroup, &typ, &m.Value, &m.ReferenceDate, &m.Detail, &m.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric")
		}
		m.Type = model.MetricType(typ)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: metric rows")
}

func (s *PostgresStore) ConversionRule(ctx context.Context, assetID, fromUnit, toUnit string) (*model.ConversionRule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT fator, deslocamento FROM conversoes_unidade
		 WHERE ativo_id = $1 AND unidade_origem = $2 AND unidade_destino = $3 LIMIT 1`,
		assetID, fromUnit, toUnit,
	)
	rule := model.ConversionRule{AssetID: assetID, FromUnit: fromUnit, ToUnit: toUnit}
	err := row.Scan(&rule.Factor, &rule.Offset)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: conversion rule")
	}
	return &rule, nil
}

func (s *PostgresStore) SeedConversionRule(ctx context.Context, rule model.ConversionRule) error {
	_, err := s.pool.Exec(ctx,
		db.UpsertSQL("conversoes_unidade",
			[]string{"ativo_id", "unidade_origem", "unidade_destino", "fator", "deslocamento"},
			[]string{"ativo_id", "unidade_origem", "unidade_destino"}),
		rule.AssetID, rule.FromUnit, rule.ToUnit, rule.Factor, rule.Offset,
	)
	return eris.Wrap(err, "postgres: seed conversion rule")
}

func (s *PostgresStore) RecordSuccess(ctx context.Context, sourceID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_health (source_id, success_count, consecutive_failures, last_success)
		 VALUES ($1, 1, 0, $2)
		 ON CONFLICT (source_id) DO UPDATE SET
			success_count = source_health.success_count + 1,
			consecutive_failures = 0,
			last_success = EXCLUDED.last_success`,
		sourceID, at,
	)
	return eris.Wrapf(err, "postgres: record success %s", sourceID)
}

func (s *PostgresStore) RecordFailure(ctx context.Context, sourceID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_health (source_id, failure_count, consecutive_failures, last_failure)
		 VALUES ($1, 1, 1, $2)
		 ON CONFLICT (source_id) DO UPDATE SET
			failure_count = source_health.failure_count + 1,
			consecutive_failures = source_health.consecutive_failures + 1,
			last_failure = EXCLUDED.last_failure`,
		sourceID, at,
	)
	return eris.Wrapf(err, "postgres: record failure %s", sourceID)
}

func (s *PostgresStore) ListHealth(ctx context.Context) ([]model.SourceHealth, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_id, success_count, failure_count, consecutive_failures,
		 last_success, last_failure FROM source_health ORDER BY source_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list health")
	}
	defer rows.Close()

	var out []model.SourceHealth
	for rows.Next() {
		var h model.SourceHealth
		var lastSuccess, lastFailure sql.NullTime
		if err := rows.Scan(&h.SourceID, &h.SuccessCount, &h.FailureCount,
			&h.ConsecutiveFailures, &lastSuccess, &lastFailure); err != nil {
			return nil, eris.Wrap(err, "postgres: scan health")
		}
		if lastSuccess.Valid {
			h.LastSuccess = &lastSuccess.Time
		}
		if lastFailure.Valid {
			h.LastFailure = &lastFailure.Time
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: health rows")
}
