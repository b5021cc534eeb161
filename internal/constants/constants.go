package constants

import "time"

// Database Constants
const (
	// PostgreSQL defaults
	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"

	// Connection pool settings
	DefaultPostgresMaxConnections = 25
	DefaultPostgresMaxIdleConns   = 5
	DefaultSQLiteMaxConnections   = 1 // SQLite allows only one writer
	DefaultSQLiteMaxIdleConns     = 1

	// SQLite DSN parameters
	DefaultSQLiteBusyTimeoutMS = 5000

	// Default table names
	DefaultSchemaVersionTable = "schema_version"
	DefaultMigrationRunsTable = "migration_runs"
	DefaultLockTable          = "schema_lock"

	// Table name suffixes when using prefixes
	SchemaVersionSuffix = "_schema_version"
	MigrationRunsSuffix = "_migration_runs"
	LockSuffix          = "_schema_lock"

	// DefaultStoreFileName is the sqlite file used when no path is configured.
	DefaultStoreFileName = "sqlupgrade.db"
)

// Time and Duration Constants
const (
	DefaultMaxConnLifetime = 5 * time.Minute
	DefaultMaxIdleTime     = 1 * time.Minute
	DefaultSQLiteLifetime  = 10 * time.Minute
	DefaultSQLiteIdleTime  = 5 * time.Minute
)

// Script Constants
const (
	// ScriptExtension is the file extension of migration scripts.
	ScriptExtension = ".sql"
	// DefaultScriptDir is where the CLI looks for scripts when none is configured.
	DefaultScriptDir = "./update-sql"
)

// Status server defaults
const (
	DefaultStatusAddr     = "127.0.0.1:8089"
	DefaultHistoryLimit   = 10
	DefaultStatusBasePath = "/upgrade"
)
