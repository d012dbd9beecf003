package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// derefString safely dereferences a string pointer, returning empty string if nil
func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// collectNamed drains (id, name) rows into domain values via build.
func collectNamed[T any](rows pgx.Rows, build func(id int64, name string) T) ([]T, error) {
	var result []T
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result = append(result, build(id, name))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
