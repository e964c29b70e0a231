package sqlstore_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/sqlstore"
)

// openMySQL returns a single-connection pool for MYSQL_DSN or skips the test.
func openMySQL(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN is not set")
	}

	db, dialect, err := sqlstore.Open(t.Context(), sqlstore.Config{
		Driver:       "mysql",
		DSN:          dsn,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	require.Equal(t, sqlstore.DialectMySQL, dialect)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRowLockerMySQLRestoresLockWaitTimeout(t *testing.T) {
	db := openMySQL(t)

	table := "doc_" + uuid.NewString()[:8]
	_, err := db.ExecContext(t.Context(), `CREATE TABLE `+table+` (id VARCHAR(64) PRIMARY KEY, status VARCHAR(32) NOT NULL)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), `DROP TABLE `+table)
	})
	_, err = db.ExecContext(t.Context(), `INSERT INTO `+table+` (id, status) VALUES ('d1', 'draft')`)
	require.NoError(t, err)

	sessionTimeout := func(q sqlstore.Querier) int {
		var secs int
		require.NoError(t, q.QueryRowContext(t.Context(), "SELECT @@SESSION.innodb_lock_wait_timeout").Scan(&secs))
		return secs
	}
	before := sessionTimeout(db)

	locker, err := sqlstore.NewRowLocker(db, sqlstore.DialectMySQL,
		sqlstore.WithTable("document", table),
		sqlstore.WithLockTimeout(time.Duration(before+7)*time.Second))
	require.NoError(t, err)

	for _, fail := range []bool{false, true} {
		err := locker.WithLock(t.Context(), "document", "d1", func(ctx context.Context) error {
			assert.Equal(t, before+7, sessionTimeout(sqlstore.Conn(ctx, db)))
			if fail {
				return assert.AnError
			}
			return nil
		})
		if fail {
			require.ErrorIs(t, err, assert.AnError)
		} else {
			require.NoError(t, err)
		}
		assert.Equal(t, before, sessionTimeout(db), "the pooled connection keeps its original lock wait")
	}
}
