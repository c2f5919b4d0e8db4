package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/anivertis/market-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Table names match the original reporting layer's expectations: the
// dashboard reads market_bi_precos and metricas_derivadas directly.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS market_bi_precos (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	ativo_id                TEXT NOT NULL,
	valor_bruto             TEXT NOT NULL,
	valor_normalizado       REAL NOT NULL,
	unidade_origem          TEXT NOT NULL,
	unidade_destino         TEXT NOT NULL,
	data_referencia         TEXT NOT NULL,
	fonte                   TEXT,
	integridade_hash_sha256 TEXT NOT NULL,
	quality_score           INTEGER NOT NULL DEFAULT 100,
	raw_payload_debug       TEXT,
	coletado_em             DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (integridade_hash_sha256)
);

CREATE TABLE IF NOT EXISTS metricas_derivadas (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	ativo_id        TEXT NOT NULL,
	tipo            TEXT NOT NULL,
	valor           REAL NOT NULL,
	data_referencia TEXT NOT NULL,
	detalhe         TEXT,
	criado_em       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (ativo_id, tipo, data_referencia)
);

CREATE TABLE IF NOT EXISTS conversoes_unidade (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	ativo_id        TEXT NOT NULL,
	unidade_origem  TEXT NOT NULL,
	unidade_destino TEXT NOT NULL,
	fator           REAL NOT NULL,
	deslocamento    REAL NOT NULL DEFAULT 0,
	UNIQUE (ativo_id, unidade_origem, unidade_destino)
);

CREATE TABLE IF NOT EXISTS source_health (
	source_id            TEXT PRIMARY KEY,
	success_count        INTEGER NOT NULL DEFAULT 0,
	failure_count        INTEGER NOT NULL DEFAULT 0,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	last_success         DATETIME,
	last_failure         DATETIME
);

CREATE INDEX IF NOT EXISTS idx_precos_ativo_data ON market_bi_precos(ativo_id, data_referencia);
CREATE INDEX IF NOT EXISTS idx_metricas_ativo ON metricas_derivadas(ativo_id, data_referencia);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertPrice(ctx context.Context, row model.PriceRow) (bool, error) {
	collected := row.CollectedAt
	if collected.IsZero() {
		collected = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO market_bi_precos (
			ativo_id, valor_bruto, valor_normalizado, unidade_origem,
			unidade_destino, data_referencia, fonte, integridade_hash_sha256,
			quality_score, raw_payload_debug, coletado_em
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.AssetID, row.RawValue, row.NormalizedValue, row.SourceUnit,
		row.TargetUnit, row.ReferenceDate, row.Source, row.IntegrityHash,
		row.QualityScore, nullString(row.RawPayload == "", row.RawPayload), collected,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert price %s", row.AssetID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) LatestPrice(ctx context.Context, assetIDs ...string) (*model.PriceRow, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}
	query := `SELECT id, ativo_id, valor_bruto, valor_normalizado, unidade_origem,
		unidade_destino, data_referencia, COALESCE(fonte, ''), integridade_hash_sha256,
		quality_score, coletado_em
		FROM market_bi_precos WHERE ativo_id IN (` + placeholders(len(assetIDs)) + `)
		ORDER BY data_referencia DESC, coletado_em DESC LIMIT 1`

	args := make([]any, len(assetIDs))
	for i, id := range assetIDs {
		args[i] = id
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	var p model.PriceRow
	err := row.Scan(&p.ID, &p.AssetID, &p.RawValue, &p.NormalizedValue,
		&p.SourceUnit, &p.TargetUnit, &p.ReferenceDate, &p.Source,
		&p.IntegrityHash, &p.QualityScore, &p.CollectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest price")
	}
	return &p, nil
}

func (s *SQLiteStore) DailySeries(ctx context.Context, assetID string) ([]model.SeriesPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data_referencia, valor_normalizado FROM market_bi_precos
		 WHERE ativo_id = ? ORDER BY data_referencia ASC, coletado_em ASC`,
		assetID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: series %s", assetID)
	}
	defer rows.Close()

	var series []model.SeriesPoint
	for rows.Next() {
		var dateStr string
		var p model.SeriesPoint
		if err := rows.Scan(&dateStr, &p.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan series point")
		}
		d, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: bad reference date %q", dateStr)
		}
		p.Date = d
		series = append(series, p)
	}
	return series, eris.Wrap(rows.Err(), "sqlite: series rows")
}

func (s *SQLiteStore) ListPrices(ctx context.Context, assetID string, limit int) ([]model.PriceRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ativo_id, valor_bruto, valor_normalizado, unidade_origem,
		 unidade_destino, data_referencia, COALESCE(fonte, ''), integridade_hash_sha256,
		 quality_score, coletado_em
		 FROM market_bi_precos WHERE ativo_id = ?
		 ORDER BY data_referencia DESC, coletado_em DESC LIMIT ?`,
		assetID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list prices %s", assetID)
	}
	defer rows.Close()

	var out []model.PriceRow
	for rows.Next() {
		var p model.PriceRow
		if err := rows.Scan(&p.ID, &p.AssetID, &p.RawValue, &p.NormalizedValue,
			&p.SourceUnit, &p.TargetUnit, &p.ReferenceDate, &p.Source,
			&p.IntegrityHash, &p.QualityScore, &p.CollectedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: price rows")
}

func (s *SQLiteStore) UpsertMetric(ctx context.Context, m model.DerivedMetric) error {
	computed := m.ComputedAt
	if computed.IsZero() {
		computed = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metricas_derivadas (ativo_id, tipo, valor, data_referencia, detalhe, criado_em)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ativo_id, tipo, data_referencia)
		 DO UPDATE SET valor = excluded.valor, detalhe = excluded.detalhe, criado_em = excluded.criado_em`,
		m.AssetGroup, string(m.Type), m.Value, m.ReferenceDate, m.Detail, computed,
	)
	return eris.Wrapf(err, "sqlite: upsert metric %s/%s", m.AssetGroup, m.Type)
}

func (s *SQLiteStore) ListMetrics(ctx context.Context, assetGroup string, limit int) ([]model.DerivedMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ativo_id, tipo, valor, data_referencia, COALESCE(detalhe, ''), criado_em
		FROM metricas_derivadas`
	var args []any
	if assetGroup != "" {
		query += ` WHERE ativo_id = ?`
		args = append(args, assetGroup)
	}
	query += ` ORDER BY data_referencia DESC, criado_em DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list metrics")
	}
	defer rows.Close()

	var out []model.DerivedMetric
	for rows.Next() {
		var m model.DerivedMetric
		var typ string
		if err := rows.Scan(&m.AssetGroup, &typ, &m.Value, &m.ReferenceDate, &m.Detail, &m.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metric")
		}
		m.Type = model.MetricType(typ)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: metric rows")
}

func (s *SQLiteStore) ConversionRule(ctx context.Context, assetID, fromUnit, toUnit string) (*model.ConversionRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fator, deslocamento FROM conversoes_unidade
		 WHERE ativo_id = ? AND unidade_origem = ? AND unidade_destino = ? LIMIT 1`,
		assetID, fromUnit, toUnit,
	)
	rule := model.ConversionRule{AssetID: assetID, FromUnit: fromUnit, ToUnit: toUnit}
	err := row.Scan(&rule.Factor, &rule.Offset)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: conversion rule")
	}
	return &rule, nil
}

func (s *SQLiteStore) SeedConversionRule(ctx context.Context, rule model.ConversionRule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversoes_unidade (ativo_id, unidade_origem, unidade_destino, fator, deslocamento)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ativo_id, unidade_origem, unidade_destino)
		 DO UPDATE SET fator = excluded.fator, deslocamento = excluded.deslocamento`,
		rule.AssetID, rule.FromUnit, rule.ToUnit, rule.Factor, rule.Offset,
	)
	return eris.Wrap(err, "sqlite: seed conversion rule")
}

func (s *SQLiteStore) RecordSuccess(ctx context.Context, sourceID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_health (source_id, success_count, consecutive_failures, last_success)
		 VALUES (?, 1, 0, ?)
		 ON CONFLICT(source_id) DO UPDATE SET
			success_count = success_count + 1,
			consecutive_failures = 0,
			last_success = excluded.last_success`,
		sourceID, at,
	)
	return eris.Wrapf(err, "sqlite: record success %s", sourceID)
}

func (s *SQLiteStore) RecordFailure(ctx context.Context, sourceID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_health (source_id, failure_count, consecutive_failures, last_failure)
		 VALUES (?, 1, 1, ?)
		 ON CONFLICT(source_id) DO UPDATE SET
			failure_count = failure_count + 1,
			consecutive_failures = consecutive_failures + 1,
			last_failure = excluded.last_failure`,
		sourceID, at,
	)
	return eris.Wrapf(err, "sqlite: record failure %s", sourceID)
}

func (s *SQLiteStore) ListHealth(ctx context.Context) ([]model.SourceHealth, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, success_count, failure_count, consecutive_failures,
		 last_success, last_failure FROM source_health ORDER BY source_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list health")
	}
	defer rows.Close()

	var out []model.SourceHealth
	for rows.Next() {
		var h model.SourceHealth
		var lastSuccess, lastFailure sql.NullTime
		if err := rows.Scan(&h.SourceID, &h.SuccessCount, &h.FailureCount,
			&h.ConsecutiveFailures, &lastSuccess, &lastFailure); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan health")
		}
		if lastSuccess.Valid {
			h.LastSuccess = &lastSuccess.Time
		}
		if lastFailure.Valid {
			h.LastFailure = &lastFailure.Time
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: health rows")
}

func placeholders(n int) string {
	switch n {
	case 0:
		return ""
	case 1:
		return "?"
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',', ' ')
		}
		b = append(b, '?')
	}
	return string(b)
}

func nullString(isNull bool, v string) any {
	if isNull {
		return nil
	}
	return v
}
