package sqlstore

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported sql driver")
	ErrEmptyDSN          = errors.New("empty sql dsn, use SQL_DSN env var")
	ErrFailedToOpen      = errors.New("failed to open sql database")
	ErrEntityNotFound    = errors.New("entity row not found")
	ErrInvalidIdentifier = errors.New("invalid sql identifier")
	ErrLockTimeout       = errors.New("timed out waiting for entity row lock")
)

// IsNotFoundError detects sql.ErrNoRows.
func IsNotFoundError(err error) bool {
	return err != nil && errors.Is(err, sql.ErrNoRows)
}

// IsLockTimeoutError detects MySQL lock wait timeouts (1205) and SQLite busy errors.
func IsLockTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1205
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_BUSY
	}

	return false
}

// IsDuplicateKeyError detects unique constraint violations.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}
