package connector

import "database/sql"

// Run is one step attempt recorded in the migration_runs table.
type Run struct {
	ID         int64
	Version    string
	Statements int
	Failed     bool
	// FailedStatement is the zero-based index of the failing statement, or -1.
	FailedStatement int
	Error           *string
	DurationMS      int64
	RanAt           string // RFC3339Nano for both drivers
}

// TableNames represents database table names
type TableNames struct {
	SchemaVersion string
	MigrationRuns string
	Lock          string
}

// Connector is implemented by each store driver.
type Connector interface {
	Connect() (*sql.DB, error)
	// Attach makes the connector use an already open database. The
	// connector does not close an attached database.
	Attach(db *sql.DB)
	Validate() error
	Load(config map[string]interface{}) error
	Ensure(th TableNames) error
	// InstalledVersion returns "" when no version has been recorded.
	InstalledVersion(th TableNames) (string, error)
	SetInstalledVersion(th TableNames, v string) error
	RecordRun(th TableNames, run Run) error
	// ListRuns returns the most recent runs, newest first. limit <= 0 means all.
	ListRuns(th TableNames, limit int) ([]Run, error)
	DriverName() string
	Close() error
}
