// Package sqlstore persists orders, stock and the audit log in SQLite, MySQL
// or Postgres behind the same UnitOfWork the in-memory store implements.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domaudit "github.com/Zhima-Mochi/minishop-orders/internal/domain/audit"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultLockWait = 5 * time.Second

type Options struct {
	Driver string
	DSN    string
	// LockWait bounds row lock waits inside a unit. Zero uses five seconds.
	LockWait time.Duration
}

type Store struct {
	db       *sql.DB
	dialect  Dialect
	lockWait time.Duration
	now      func() time.Time
}

// Open connects and pings. Call Migrate before first use of a fresh database.
func Open(ctx context.Context, opts Options) (*Store, error) {
	dialect, err := ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	lockWait := opts.LockWait
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}

	db, err := openDB(dialect, opts.DSN, lockWait)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", dialect, err)
	}
	return &Store{db: db, dialect: dialect, lockWait: lockWait, now: time.Now}, nil
}

func openDB(d Dialect, dsn string, lockWait time.Duration) (*sql.DB, error) {
	switch d {
	case DialectPostgres:
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: parse postgres dsn: %w", err)
		}
		return stdlib.OpenDB(*cfg), nil
	case DialectMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: parse mysql dsn: %w", err)
		}
		db, err := sql.Open(d.driverName(), cfg.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open mysql: %w", err)
		}
		return db, nil
	default:
		db, err := sql.Open(d.driverName(), sqliteDSN(dsn, lockWait))
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
		}
		// One connection serializes writers in process; busy_timeout covers other processes.
		db.SetMaxOpenConns(1)
		return db, nil
	}
}

func sqliteDSN(path string, lockWait time.Duration) string {
	if strings.Contains(path, "?") {
		return path
	}
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_txlock=immediate",
		filepath.Clean(path), lockWait.Milliseconds())
}

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

func (s *Store) Inventory() *InventoryRepository { return &InventoryRepository{s: s} }

func (s *Store) AuditLog() *AuditRepository { return &AuditRepository{s: s} }

// Atomically runs fn in one database transaction with bounded lock waits.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	return s.withTx(ctx, func(q *sql.Tx) error {
		return fn(ctx, &tx{s: s, q: q})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(q *sql.Tx) error) error {
	q, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(fmt.Errorf("sqlstore: begin: %w", err))
	}
	rollbackWith := func(cause error) error {
		if rbErr := q.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w: rollback: %v", cause, rbErr)
		}
		return cause
	}

	if stmt := s.dialect.lockTimeout(s.lockWait); stmt != "" {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return rollbackWith(fmt.Errorf("sqlstore: lock timeout: %w", err))
		}
	}
	if err := fn(q); err != nil {
		return rollbackWith(s.classify(err))
	}
	if err := q.Commit(); err != nil {
		return s.classify(fmt.Errorf("sqlstore: commit: %w", err))
	}
	return nil
}

// classify folds driver lock errors into application.ErrLockTimeout.
func (s *Store) classify(err error) error {
	if err == nil || errors.Is(err, application.ErrLockTimeout) {
		return err
	}
	if s.dialect.isLockConflict(err) {
		return fmt.Errorf("%w: %v", application.ErrLockTimeout, err)
	}
	return err
}

func (s *Store) q(query string) string { return s.dialect.rebind(query) }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type tx struct {
	s *Store
	q *sql.Tx
}

func (t *tx) Orders() domorder.TxRepository { return txOrders{t} }
func (t *tx) Stock() dominv.TxRepository    { return txStock{t} }
func (t *tx) Audit() domaudit.Appender      { return txAudit{t} }

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
