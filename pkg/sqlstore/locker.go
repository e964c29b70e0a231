package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

// RowLocker implements statemachine.Locker on database/sql. On MySQL it holds
// a row lock (SELECT ... FOR UPDATE); on SQLite it holds the database write
// lock. The locking transaction travels in the context passed to fn.
type RowLocker struct {
	db          *sql.DB
	dialect     Dialect
	tables      map[string]string
	idColumn    string
	lockTimeout time.Duration
}

// LockerOption configures a RowLocker.
type LockerOption func(*RowLocker) error

// WithTable maps an entity type to its table. Unmapped entity types use the
// entity type itself as the table name.
func WithTable(entityType, table string) LockerOption {
	return func(l *RowLocker) error {
		quoted, err := l.dialect.Quote(table)
		if err != nil {
			return err
		}
		l.tables[entityType] = quoted
		return nil
	}
}

// WithIDColumn sets the primary key column; defaults to "id".
func WithIDColumn(column string) LockerOption {
	return func(l *RowLocker) error {
		quoted, err := l.dialect.Quote(column)
		if err != nil {
			return err
		}
		l.idColumn = quoted
		return nil
	}
}

// WithLockTimeout bounds the MySQL row lock wait while the lock is held; the
// session keeps its previous value afterwards. SQLite uses the busy
// timeout set by Open.
func WithLockTimeout(d time.Duration) LockerOption {
	return func(l *RowLocker) error {
		if d >= 0 {
			l.lockTimeout = d
		}
		return nil
	}
}

func NewRowLocker(db *sql.DB, dialect Dialect, opts ...LockerOption) (*RowLocker, error) {
	if dialect != DialectSQLite && dialect != DialectMySQL {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, dialect)
	}

	l := &RowLocker{
		db:      db,
		dialect: dialect,
		tables:  make(map[string]string),
	}
	l.idColumn, _ = dialect.Quote("id")

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// WithLock implements statemachine.Locker.
func (l *RowLocker) WithLock(ctx context.Context, entityType, id string, fn func(ctx context.Context) error) error {
	query, err := l.lockQuery(entityType)
	if err != nil {
		return err
	}

	return WithTx(ctx, l.db, func(ctx context.Context) error {
		tx, _ := TxFromContext(ctx)

		if l.dialect == DialectMySQL && l.lockTimeout > 0 {
			restore, err := setLockWaitTimeout(ctx, tx, int(math.Ceil(l.lockTimeout.Seconds())))
			if err != nil {
				return err
			}
			defer restore()
		}

		if err := l.lock(ctx, tx, query, id); err != nil {
			switch {
			case errors.Is(err, ErrEntityNotFound):
				return fmt.Errorf("%w: %s %s", ErrEntityNotFound, entityType, id)
			case IsLockTimeoutError(err):
				return errors.Join(ErrLockTimeout, err)
			default:
				return fmt.Errorf("lock %s %s: %w", entityType, id, err)
			}
		}

		return fn(ctx)
	})
}

// setLockWaitTimeout sets the MySQL row lock wait of the session and returns
// a func that puts the previous value back. The setting outlives the
// transaction, so it must be restored before the connection returns to the
// pool.
func setLockWaitTimeout(ctx context.Context, tx *sql.Tx, secs int) (restore func(), err error) {
	var prev int
	if err := tx.QueryRowContext(ctx, "SELECT @@SESSION.innodb_lock_wait_timeout").Scan(&prev); err != nil {
		return nil, fmt.Errorf("read lock timeout: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "SET SESSION innodb_lock_wait_timeout = ?", secs); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}
	return func() {
		_, _ = tx.ExecContext(context.WithoutCancel(ctx), "SET SESSION innodb_lock_wait_timeout = ?", prev)
	}, nil
}

func (l *RowLocker) lock(ctx context.Context, tx *sql.Tx, query, id string) error {
	if l.dialect == DialectSQLite {
		res, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrEntityNotFound
		}
		return nil
	}

	var one int
	if err := tx.QueryRowContext(ctx, query, id).Scan(&one); err != nil {
		if IsNotFoundError(err) {
			return ErrEntityNotFound
		}
		return err
	}
	return nil
}

func (l *RowLocker) lockQuery(entityType string) (string, error) {
	table, ok := l.tables[entityType]
	if !ok {
		var err error
		if table, err = l.dialect.Quote(entityType); err != nil {
			return "", err
		}
	}
	return l.dialect.lockQuery(table, l.idColumn), nil
}
