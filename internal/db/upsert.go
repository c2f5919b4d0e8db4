package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// UpsertSQL builds an INSERT ... ON CONFLICT DO UPDATE statement for the
// given table, columns, and conflict keys. Used for conversion-rule seeding
// and derived-metric upserts, where last-writer-wins is the intended
// semantics.
func UpsertSQL(table string, columns, conflictKeys []string) string {
	colList := quoteAndJoin(columns)
	conflictList := quoteAndJoin(conflictKeys)

	conflictSet := make(map[string]bool, len(conflictKeys))
	for _, k := range conflictKeys {
		conflictSet[k] = true
	}

	var setClauses []string
	for _, c := range columns {
		if conflictSet[c] {
			continue
		}
		q := pgx.Identifier{c}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}

	params := make([]string, len(columns))
	for i := range columns {
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(table),
		colList,
		strings.Join(params, ", "),
		conflictList,
		strings.Join(setClauses, ", "),
	)
}

// sanitizeTable handles schema-qualified table names like "marketbi.precos".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
