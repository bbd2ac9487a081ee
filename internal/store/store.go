// Package store is the relational persistence layer: organisations,
// machines, nodes, metrics, logs, version data, and alert state. It
// talks to either Postgres or SQLite through database/sql, mirroring the
// dual-driver connection strings the rest of the stack accepts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Driver identifies which SQL dialect a Store is talking to; a handful
// of DDL and upsert statements differ between them.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite3"
)

// Store wraps a database/sql connection pool plus the driver it was
// opened against.
type Store struct {
	db     *sql.DB
	driver Driver
}

// ParseDatabaseURL splits a `sqlite://path` or `postgres(ql)://...`
// connection string into the driver name and DSN sql.Open expects.
func ParseDatabaseURL(dbURL string) (driver Driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(dbURL, "sqlite://"):
		dsn = strings.TrimPrefix(dbURL, "sqlite://")
		if !strings.Contains(dsn, "?") {
			dsn += "?_fk=1"
		}
		return DriverSQLite, dsn, nil
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return DriverPostgres, dbURL, nil
	default:
		return "", "", fmt.Errorf("store: unsupported database URL %q (use sqlite:// or postgres://)", dbURL)
	}
}

// Open connects to dbURL and runs the auto-DDL schema creation.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	driver, dsn, err := ParseDatabaseURL(dbURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites a query containing `?` placeholders into the driver's
// native placeholder style.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
