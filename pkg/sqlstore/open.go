package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Open opens and pings a database for cfg.Driver.
//
// SQLite databases are opened in WAL mode with a busy timeout, foreign keys
// on and immediate transactions, so a transaction takes the write lock when
// it begins.
func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	if cfg.DSN == "" {
		return nil, "", ErrEmptyDSN
	}

	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	var driver, dsn string
	switch dialect {
	case DialectSQLite:
		driver, dsn = "sqlite", sqliteDSN(cfg.DSN, cfg.BusyTimeout)
	case DialectMySQL:
		driver = "mysql"
		if dsn, err = mysqlDSN(cfg.DSN); err != nil {
			return nil, "", errors.Join(ErrFailedToOpen, err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", errors.Join(ErrFailedToOpen, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", errors.Join(ErrFailedToOpen, err)
	}

	return db, dialect, nil
}

func sqliteDSN(path string, busy time.Duration) string {
	if busy <= 0 {
		busy = 5 * time.Second
	}

	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params.Encode()
}

func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}
