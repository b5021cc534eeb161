package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/sqlupgrade/internal/common"
	"github.com/loykin/sqlupgrade/internal/store/connector"
)

type Store struct {
	db       *sql.DB
	dialect  *Dialect
	attached bool
	DSN      string
}

// NewStore creates a new SQLite store
func NewStore() *Store {
	return &Store{
		dialect: NewDialect(),
	}
}

// Load decodes a driver config map ("path" or "dsn").
func (s *Store) Load(config map[string]interface{}) error {
	var c Config
	if err := mapstructure.Decode(config, &c); err != nil {
		return fmt.Errorf("invalid sqlite store config: %w", err)
	}
	if dsn := c.BuildDSN(); dsn != "" {
		s.DSN = dsn
	}
	return nil
}

// Connect establishes a connection to SQLite
func (s *Store) Connect() (*sql.DB, error) {
	if s.DSN == "" {
		// Default to in-memory database for testing
		s.DSN = ":memory:"
	}

	db, err := s.dialect.Connect(s.DSN)
	if err != nil {
		return nil, err
	}
	s.db = db
	s.attached = false

	logger := common.GetLogger().WithStore("sqlite")
	logger.Info("SQLite database connection established successfully")
	return db, nil
}

// Attach uses an existing database handle.
func (s *Store) Attach(db *sql.DB) {
	s.db = db
	s.attached = true
}

// Validate performs basic validation (default implementation)
func (s *Store) Validate() error {
	return nil
}

// Close closes the database connection unless it was attached.
func (s *Store) Close() error {
	if s.db != nil && !s.attached {
		return s.db.Close()
	}
	return nil
}

// DriverName returns "sqlite".
func (s *Store) DriverName() string {
	return s.dialect.GetDriverName()
}

// Ensure creates the necessary tables using SQLite-specific schema
func (s *Store) Ensure(th connector.TableNames) error {
	logger := common.GetLogger().WithStore("sqlite")
	logger.Debug("ensuring SQLite database schema", "tables", []string{th.SchemaVersion, th.MigrationRuns})

	for i, q := range s.dialect.GetEnsureStatements(th) {
		logger.Debug("executing schema creation statement", "table_index", i+1, "sql", q)
		if _, err := s.db.Exec(q); err != nil {
			logger.Error("failed to create table in schema setup", "error", err, "table_index", i+1, "sql", q)
			return fmt.Errorf("failed to create table %d in schema setup: %w", i+1, err)
		}
	}
	logger.Debug("SQLite database schema ensured successfully")
	return nil
}

// InstalledVersion reads the checkpoint row.
func (s *Store) InstalledVersion(th connector.TableNames) (string, error) {
	q := fmt.Sprintf("SELECT version FROM %s WHERE id = 1", th.SchemaVersion)

	var v string
	err := s.db.QueryRow(q).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read installed version: %w", err)
	}
	return v, nil
}

// SetInstalledVersion upserts the checkpoint row.
func (s *Store) SetInstalledVersion(th connector.TableNames, v string) error {
	logger := common.GetLogger().WithStore("sqlite").WithVersion(v)
	logger.Debug("writing installed version")

	q := s.dialect.GetUpsertVersionQuery(th.SchemaVersion)
	if _, err := s.db.Exec(q, v, s.dialect.ConvertTimeToStorage(time.Now())); err != nil {
		logger.Error("failed to write installed version", "error", err)
		return fmt.Errorf("failed to write installed version %s: %w", v, err)
	}
	return nil
}

// RecordRun appends a step attempt to the run history.
func (s *Store) RecordRun(th connector.TableNames, run connector.Run) error {
	logger := common.GetLogger().WithStore("sqlite").WithVersion(run.Version)
	logger.Debug("recording migration run", "failed", run.Failed, "statements", run.Statements)

	ranAt := s.dialect.ConvertTimeToStorage(time.Now())
	q := fmt.Sprintf("INSERT INTO %s(version, statements, failed, failed_statement, error, duration_ms, ran_at) VALUES(?,?,?,?,?,?,?)", th.MigrationRuns)

	_, err := s.db.Exec(q, run.Version, run.Statements, s.dialect.ConvertBoolToStorage(run.Failed), run.FailedStatement, run.Error, run.DurationMS, ranAt)
	if err != nil {
		logger.Error("failed to record migration run", "error", err)
		return fmt.Errorf("failed to record migration run (version %s): %w", run.Version, err)
	}
	return nil
}

// ListRuns returns run history, newest first.
func (s *Store) ListRuns(th connector.TableNames, limit int) ([]connector.Run, error) {
	logger := common.GetLogger().WithStore("sqlite")
	logger.Debug("listing migration runs", "limit", limit)

	q := fmt.Sprintf("SELECT id, version, statements, failed, failed_statement, error, duration_ms, ran_at FROM %s ORDER BY id DESC", th.MigrationRuns)
	var args []interface{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		logger.Error("failed to query migration runs", "error", err)
		return nil, fmt.Errorf("failed to list migration runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []connector.Run
	for rows.Next() {
		var run connector.Run
		var errText sql.NullString
		var failed int64
		var ranAt string
		if err := rows.Scan(&run.ID, &run.Version, &run.Statements, &failed, &run.FailedStatement, &errText, &run.DurationMS, &ranAt); err != nil {
			logger.Error("failed to scan migration run", "error", err)
			return nil, fmt.Errorf("failed to scan migration run: %w", err)
		}
		if errText.Valid {
			run.Error = &errText.String
		}
		run.Failed = s.dialect.ConvertBoolFromStorage(failed)
		run.RanAt = s.dialect.ConvertTimeFromStorage(ranAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration runs: %w", err)
	}
	return runs, nil
}
