package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// ensureColumns adds any column in defs that table does not have yet.
// defs maps column name to its ALTER TABLE statement.
func ensureColumns(ctx context.Context, db *sql.DB, table string, defs [][2]string) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return fmt.Errorf("describe %s table: %w", table, err)
	}
	defer rows.Close()

	columns := map[string]struct{}{}
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("scan pragma table info: %w", err)
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate pragma table info: %w", err)
	}

	for _, def := range defs {
		if _, exists := columns[def[0]]; exists {
			continue
		}
		if _, err := db.ExecContext(ctx, def[1]); err != nil {
			return fmt.Errorf("add column %s: %w", def[0], err)
		}
	}
	return nil
}
