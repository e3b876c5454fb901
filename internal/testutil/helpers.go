// Package testutil provides shared test helpers for prestods packages.
package testutil

import (
	"database/sql"
	"testing"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/grafana/grafana-plugin-sdk-go/data/sqlutil"
	_ "modernc.org/sqlite"
)

// OpenSQLite returns an in-memory SQLite database with stmts applied. The
// pool is pinned to one connection so every query sees the same database.
// The database is closed when the test completes.
func OpenSQLite(t *testing.T, stmts ...string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return db
}

// SQLiteConverters maps the declared column types used in test schemas to
// fixed nullable scan types. The driver reports no scan type for a result
// without rows, so frames cannot be built from it without these.
func SQLiteConverters() []sqlutil.Converter {
	ints := sqlutil.NullInt64Converter
	ints.InputTypeName = "INTEGER"
	floats := sqlutil.NullDecimalConverter
	floats.InputTypeName = "REAL"
	texts := sqlutil.NullStringConverter
	texts.InputTypeName = "TEXT"
	return []sqlutil.Converter{ints, floats, texts}
}

// Values returns the concrete values of a field, nil for null cells.
func Values(f *data.Field) []any {
	out := make([]any, f.Len())
	for i := range out {
		v, ok := f.ConcreteAt(i)
		if ok {
			out[i] = v
		}
	}
	return out
}

// DisplayNames returns DisplayNameFromDS of every field, "" when unset.
func DisplayNames(frame *data.Frame) []string {
	out := make([]string, len(frame.Fields))
	for i, f := range frame.Fields {
		if f.Config != nil {
			out[i] = f.Config.DisplayNameFromDS
		}
	}
	return out
}
