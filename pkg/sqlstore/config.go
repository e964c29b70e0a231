package sqlstore

import "time"

type Config struct {
	Driver          string        `env:"SQL_DRIVER" envDefault:"sqlite"`         // Driver is "sqlite" or "mysql".
	DSN             string        `env:"SQL_DSN,required"`                       // DSN is a file path for sqlite or a go-sql-driver DSN for mysql.
	MaxOpenConns    int           `env:"SQL_MAX_OPEN_CONNS" envDefault:"10"`     // MaxOpenConns limits open connections.
	MaxIdleConns    int           `env:"SQL_MAX_IDLE_CONNS" envDefault:"2"`      // MaxIdleConns limits idle connections.
	ConnMaxLifetime time.Duration `env:"SQL_CONN_MAX_LIFETIME" envDefault:"30m"` // ConnMaxLifetime bounds connection reuse.

	// BusyTimeout is how long SQLite waits for the database write lock.
	BusyTimeout time.Duration `env:"SQL_BUSY_TIMEOUT" envDefault:"5s"`
	// LockTimeout bounds the wait for a MySQL row lock, rounded up to seconds.
	LockTimeout time.Duration `env:"SQL_LOCK_TIMEOUT" envDefault:"30s"`
}
