package postgresql

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/loykin/sqlupgrade/internal/constants"
	"github.com/loykin/sqlupgrade/internal/store/connector"
)

// Dialect implements SQL dialect for PostgreSQL
type Dialect struct{}

// NewDialect creates a new PostgreSQL dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// GetPlaceholder returns PostgreSQL-style placeholders ($1, $2, etc.)
func (p *Dialect) GetPlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// ConvertBoolToStorage converts bool to PostgreSQL storage format (native bool)
func (p *Dialect) ConvertBoolToStorage(b bool) interface{} {
	return b
}

// ConvertTimeToStorage converts time to PostgreSQL storage format (native time.Time)
func (p *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC()
}

// ConvertBoolFromStorage converts PostgreSQL bool storage to bool
func (p *Dialect) ConvertBoolFromStorage(val interface{}) bool {
	if b, ok := val.(bool); ok {
		return b
	}
	return false
}

// ConvertTimeFromStorage converts PostgreSQL time storage to RFC3339Nano string
func (p *Dialect) ConvertTimeFromStorage(val interface{}) string {
	if t, ok := val.(*time.Time); ok && t != nil {
		return t.UTC().Format(time.RFC3339Nano)
	}
	if t, ok := val.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return ""
}

// Connect establishes a connection to PostgreSQL with connection pooling
func (p *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultPostgresMaxConnections)
	db.SetMaxIdleConns(constants.DefaultPostgresMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultMaxConnLifetime)
	db.SetConnMaxIdleTime(constants.DefaultMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	return db, nil
}

// GetEnsureStatements returns PostgreSQL-specific table creation statements
func (p *Dialect) GetEnsureStatements(th connector.TableNames) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY CHECK (id = 1), version TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL)", th.SchemaVersion),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id BIGSERIAL PRIMARY KEY, version TEXT NOT NULL, statements INTEGER NOT NULL DEFAULT 0, failed BOOLEAN NOT NULL DEFAULT FALSE, failed_statement INTEGER NOT NULL DEFAULT -1, error TEXT NULL, duration_ms BIGINT NOT NULL DEFAULT 0, ran_at TIMESTAMPTZ NOT NULL)", th.MigrationRuns),
	}
}

// GetUpsertVersionQuery returns the single-row checkpoint upsert.
func (p *Dialect) GetUpsertVersionQuery(table string) string {
	return fmt.Sprintf("INSERT INTO %s(id, version, updated_at) VALUES(1, %s, %s) ON CONFLICT(id) DO UPDATE SET version = EXCLUDED.version, updated_at = EXCLUDED.updated_at",
		table, p.GetPlaceholder(1), p.GetPlaceholder(2))
}

// GetDriverName returns the driver name for logging
func (p *Dialect) GetDriverName() string {
	return "postgresql"
}
