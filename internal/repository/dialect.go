// internal/repository/dialect.go
package repository

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Dialect renders the parts of a statement that differ between Postgres and
// SQLite. Everything else is written once in the shared SQL.
type Dialect interface {
	Name() string
	Placeholder(n int) string
	// In renders "column IN values". next binds one argument and returns its
	// placeholder.
	In(column string, values []string, next func(any) string) string
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) In(column string, values []string, next func(any) string) string {
	if len(values) == 0 {
		return "1 = 0"
	}
	return fmt.Sprintf("%s = ANY(%s)", column, next(pq.Array(values)))
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) In(column string, values []string, next func(any) string) string {
	if len(values) == 0 {
		return "1 = 0"
	}
	ph := make([]string, 0, len(values))
	for _, v := range values {
		ph = append(ph, next(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(ph, ", "))
}

var (
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pq", "":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

// binder numbers placeholders as arguments are appended.
type binder struct {
	d    Dialect
	args []any
}

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

// rebind rewrites a statement written with "?" placeholders for d.
func rebind(d Dialect, query string) string {
	if d.Name() == SQLite.Name() {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString(d.Placeholder(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
