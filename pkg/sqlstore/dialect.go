package sqlstore

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect captures the SQL differences between the supported drivers.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// ParseDialect maps a driver name to its dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

var identPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Quote validates a possibly schema-qualified identifier and quotes it.
func (d Dialect) Quote(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}

	q := `"`
	if d == DialectMySQL {
		q = "`"
	}

	for i, p := range parts {
		if !identPart.MatchString(p) {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
		}
		parts[i] = q + p + q
	}
	return strings.Join(parts, "."), nil
}

// lockQuery returns the statement that takes a write lock on one row.
// SQLite has no row locks; a no-op update takes the database write lock.
func (d Dialect) lockQuery(table, idColumn string) string {
	if d == DialectSQLite {
		return fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = ?", table, idColumn, idColumn, idColumn)
	}
	return fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ? FOR UPDATE", table, idColumn)
}
