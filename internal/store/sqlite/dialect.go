package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/loykin/sqlupgrade/internal/constants"
	"github.com/loykin/sqlupgrade/internal/store/connector"
	_ "modernc.org/sqlite"
)

// Dialect implements SQL dialect for SQLite
type Dialect struct{}

// NewDialect creates a new SQLite dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// GetPlaceholder returns SQLite-style placeholders (?)
func (s *Dialect) GetPlaceholder() string {
	return "?"
}

// ConvertBoolToStorage converts bool to SQLite storage format (integer 0/1)
func (s *Dialect) ConvertBoolToStorage(b bool) interface{} {
	if b {
		return 1
	}
	return 0
}

// ConvertTimeToStorage converts time to SQLite storage format (RFC3339Nano string)
func (s *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC().Format(time.RFC3339Nano)
}

// ConvertBoolFromStorage converts SQLite integer storage to bool
func (s *Dialect) ConvertBoolFromStorage(val interface{}) bool {
	if i, ok := val.(int64); ok {
		return i != 0
	}
	if i, ok := val.(int); ok {
		return i != 0
	}
	return false
}

// ConvertTimeFromStorage converts SQLite string storage to RFC3339Nano string
func (s *Dialect) ConvertTimeFromStorage(val interface{}) string {
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

// Connect opens SQLite with a single-writer pool.
func (s *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultSQLiteMaxConnections)
	db.SetMaxIdleConns(constants.DefaultSQLiteMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultSQLiteLifetime)
	db.SetConnMaxIdleTime(constants.DefaultSQLiteIdleTime)

	return db, nil
}

// GetEnsureStatements returns SQLite-specific table creation statements
func (s *Dialect) GetEnsureStatements(th connector.TableNames) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY CHECK (id = 1), version TEXT NOT NULL, updated_at TEXT NOT NULL)", th.SchemaVersion),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, version TEXT NOT NULL, statements INTEGER NOT NULL DEFAULT 0, failed INTEGER NOT NULL DEFAULT 0, failed_statement INTEGER NOT NULL DEFAULT -1, error TEXT NULL, duration_ms INTEGER NOT NULL DEFAULT 0, ran_at TEXT NOT NULL)", th.MigrationRuns),
	}
}

// GetUpsertVersionQuery returns the single-row checkpoint upsert.
func (s *Dialect) GetUpsertVersionQuery(table string) string {
	return fmt.Sprintf("INSERT INTO %s(id, version, updated_at) VALUES(1, ?, ?) ON CONFLICT(id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at", table)
}

// GetDriverName returns the driver name for logging
func (s *Dialect) GetDriverName() string {
	return "sqlite"
}
