package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects the SQL flavour and the database/sql driver behind a Store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect accepts the driver names used in configuration.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "mysql":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("sqlstore: unsupported driver %q", driver)
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return string(d)
}

// rebind rewrites ? placeholders into $n for Postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate is the row lock suffix of a SELECT. SQLite serializes writers
// with an immediate transaction instead.
func (d Dialect) forUpdate() string {
	if d == DialectSQLite {
		return ""
	}
	return " FOR UPDATE"
}

// lockTimeout bounds row lock waits for the current transaction.
func (d Dialect) lockTimeout(wait time.Duration) string {
	if wait <= 0 {
		return ""
	}
	switch d {
	case DialectPostgres:
		return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", wait.Milliseconds())
	case DialectMySQL:
		secs := int64(wait.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		return fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)
	}
	return ""
}

func (d Dialect) upsertStock() string {
	if d == DialectMySQL {
		return `
INSERT INTO stock (stock_key, product_id, variant_id, quantity, version, updated_at)
VALUES (?, ?, ?, ?, 0, ?)
ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), version = version + 1, updated_at = VALUES(updated_at)`
	}
	return `
INSERT INTO stock (stock_key, product_id, variant_id, quantity, version, updated_at)
VALUES (?, ?, ?, ?, 0, ?)
ON CONFLICT (stock_key) DO UPDATE SET quantity = excluded.quantity, version = stock.version + 1, updated_at = excluded.updated_at`
}

func (d Dialect) isUniqueViolation(err error) bool {
	switch d {
	case DialectPostgres:
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == "23505"
	case DialectMySQL:
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1062
	default:
		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
}

// isLockConflict covers lock wait timeouts, serialization failures and deadlocks.
func (d Dialect) isLockConflict(err error) bool {
	switch d {
	case DialectPostgres:
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return false
		}
		switch pgErr.Code {
		case "55P03", "40001", "40P01":
			return true
		}
		return false
	case DialectMySQL:
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && (myErr.Number == 1205 || myErr.Number == 1213)
	default:
		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
}
