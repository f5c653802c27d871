package migration

import (
	"errors"
	"strings"
)

// DetectDatabaseType infers the dialect from the shape of a DSN, with the
// same rules the audit store uses to pick its driver:
// postgres:// / postgresql:// prefixes or a host= key mean PostgreSQL,
// a mysql:// prefix or an @tcp( fragment means MySQL, anything else is
// treated as a SQLite file path.
func DetectDatabaseType(dsn string) (DatabaseType, error) {
	switch {
	case dsn == "":
		// The audit store falls back to in-memory SQLite here, but a
		// migration against a throwaway database is a silent no-op.
		return "", errors.New("database DSN is required")
	case strings.HasPrefix(dsn, "postgres://"),
		strings.HasPrefix(dsn, "postgresql://"),
		strings.Contains(dsn, "host="):
		return DatabaseTypePostgres, nil
	case strings.HasPrefix(dsn, "mysql://"),
		strings.Contains(dsn, "@tcp("):
		return DatabaseTypeMySQL, nil
	default:
		return DatabaseTypeSQLite, nil
	}
}

// NewMigratorFromDSN creates a migrator for the database a DSN points at,
// inferring the dialect from the DSN itself. A mysql:// prefix is stripped
// because go-sql-driver DSNs carry no scheme.
func NewMigratorFromDSN(dsn string) (*DefaultMigrator, error) {
	dbType, err := DetectDatabaseType(dsn)
	if err != nil {
		return nil, err
	}

	if dbType == DatabaseTypeMySQL {
		dsn = strings.TrimPrefix(dsn, "mysql://")
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dsn,
	})
}

// NewMigratorFromURL creates a migrator with an explicitly named dialect
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}

	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
	})
}
