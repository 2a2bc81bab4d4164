package dbutil

import (
	"github.com/jmoiron/sqlx"
)

// Finalize rebinds a ?-placeholder query (as produced by gendry) to the
// $-style placeholders Postgres expects.
func Finalize(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}
