package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RowLocker serializes work on an entity across processes by holding a
// row lock (SELECT ... FOR UPDATE) on the entity's record for the duration
// of a transaction. The transaction travels in the context passed to the
// locked function; repositories must use Conn to join it.
type RowLocker struct {
	pool        *pgxpool.Pool
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
		quoted, err := quoteIdent(table)
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
		quoted, err := quoteIdent(column)
		if err != nil {
			return err
		}
		l.idColumn = quoted
		return nil
	}
}

// WithLockTimeout bounds the wait for the row lock.
func WithLockTimeout(d time.Duration) LockerOption {
	return func(l *RowLocker) error {
		if d >= 0 {
			l.lockTimeout = d
		}
		return nil
	}
}

// NewRowLocker creates a locker on top of pool.
func NewRowLocker(pool *pgxpool.Pool, opts ...LockerOption) (*RowLocker, error) {
	l := &RowLocker{
		pool:     pool,
		tables:   make(map[string]string),
		idColumn: `"id"`,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// WithLock implements statemachine.Locker. The id is sent as text and cast
// by PostgreSQL to the column type.
func (l *RowLocker) WithLock(ctx context.Context, entityType, id string, fn func(ctx context.Context) error) error {
	query, err := l.lockQuery(entityType)
	if err != nil {
		return err
	}

	return WithTx(ctx, l.pool, func(ctx context.Context) error {
		tx, _ := TxFromContext(ctx)

		if l.lockTimeout > 0 {
			if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", l.lockTimeout.Milliseconds())); err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}

		var one int
		if err := tx.QueryRow(ctx, query, id).Scan(&one); err != nil {
			switch {
			case IsNotFoundError(err):
				return fmt.Errorf("%w: %s %s", ErrEntityNotFound, entityType, id)
			case IsLockNotAvailableError(err):
				return errors.Join(ErrLockTimeout, err)
			default:
				return fmt.Errorf("lock %s %s: %w", entityType, id, err)
			}
		}

		return fn(ctx)
	})
}

func (l *RowLocker) lockQuery(entityType string) (string, error) {
	table, ok := l.tables[entityType]
	if !ok {
		var err error
		if table, err = quoteIdent(entityType); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("SELECT 1 FROM %s WHERE %s = $1 FOR UPDATE", table, l.idColumn), nil
}
