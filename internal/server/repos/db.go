package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) Rebind(q string) string {
	if d != Postgres {
		return q
	}
	var sb strings.Builder
	sb.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// DB pairs a connection pool with the SQL dialect it speaks.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects and prepares the connection for the dialect. For sqlite a
// single connection is kept so in-memory databases stay shared.
func Open(driver, dsn string) (*DB, error) {
	d, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if d == MySQL && !strings.Contains(dsn, "clientFoundRows") {
		// RowsAffected must count matched rows, not changed ones.
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "clientFoundRows=true"
	}
	conn, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, err
	}
	if d == SQLite {
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return &DB{DB: conn, Dialect: d}, nil
}

func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (db *DB) q(query string) string { return db.Dialect.Rebind(query) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface{ Scan(dest ...any) error }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
