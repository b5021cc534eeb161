package postgresql

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

// NewStore creates a new PostgreSQL store
func NewStore() *Store {
	return &Store{
		dialect: NewDialect(),
	}
}

// Load decodes a driver config map (dsn or host/port/user/password/dbname/sslmode).
func (p *Store) Load(config map[string]interface{}) error {
	var c Config
	if err := mapstructure.Decode(config, &c); err != nil {
		return fmt.Errorf("invalid postgres store config: %w", err)
	}
	if dsn := c.BuildDSN(); dsn != "" {
		p.DSN = dsn
	}
	return nil
}

// Connect establishes a connection to PostgreSQL
func (p *Store) Connect() (*sql.DB, error) {
	db, err := p.dialect.Connect(p.DSN)
	if err != nil {
		return nil, err
	}
	p.db = db
	p.attached = false

	logger := common.GetLogger().WithStore("postgresql")
	logger.Info("PostgreSQL database connection established successfully")
	return db, nil
}

// Attach uses an existing database handle.
func (p *Store) Attach(db *sql.DB) {
	p.db = db
	p.attached = true
}

// Validate requires a DSN.
func (p *Store) Validate() error {
	if p.DSN == "" && p.db == nil {
		return errors.New("postgres store requires a dsn or host")
	}
	return nil
}

// Close closes the database connection unless it was attached.
func (p *Store) Close() error {
	if p.db != nil && !p.attached {
		return p.db.Close()
	}
	return nil
}

// DriverName returns "postgresql".
func (p *Store) DriverName() string {
	return p.dialect.GetDriverName()
}

// Ensure creates the necessary tables using PostgreSQL-specific schema
func (p *Store) Ensure(th connector.TableNames) error {
	logger := common.GetLogger().WithStore("postgresql")
	logger.Debug("ensuring PostgreSQL database schema", "tables", []string{th.SchemaVersion, th.MigrationRuns})

	for i, q := range p.dialect.GetEnsureStatements(th) {
		logger.Debug("executing schema creation statement", "table_index", i+1, "sql", q)
		if _, err := p.db.Exec(q); err != nil {
			logger.Error("failed to create table in schema setup", "error", err, "table_index", i+1, "sql", q)
			return fmt.Errorf("failed to create table %d in PostgreSQL schema setup: %w", i+1, err)
		}
	}
	logger.Debug("PostgreSQL database schema ensured successfully")
	return nil
}

// InstalledVersion reads the checkpoint row.
func (p *Store) InstalledVersion(th connector.TableNames) (string, error) {
	q := fmt.Sprintf("SELECT version FROM %s WHERE id = 1", th.SchemaVersion)

	var v string
	err := p.db.QueryRow(q).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read installed version: %w", err)
	}
	return v, nil
}

// SetInstalledVersion upserts the checkpoint row.
func (p *Store) SetInstalledVersion(th connector.TableNames, v string) error {
	logger := common.GetLogger().WithStore("postgresql").WithVersion(v)
	logger.Debug("writing installed version")

	q := p.dialect.GetUpsertVersionQuery(th.SchemaVersion)
	if _, err := p.db.Exec(q, v, p.dialect.ConvertTimeToStorage(time.Now())); err != nil {
		logger.Error("failed to write installed version", "error", err)
		return fmt.Errorf("failed to write installed version %s: %w", v, err)
	}
	return nil
}

// RecordRun appends a step attempt to the run history.
func (p *Store) RecordRun(th connector.TableNames, run connector.Run) error {
	logger := common.GetLogger().WithStore("postgresql").WithVersion(run.Version)
	logger.Debug("recording migration run", "failed", run.Failed, "statements", run.Statements)

	q := fmt.Sprintf("INSERT INTO %s(version, statements, failed, failed_statement, error, duration_ms, ran_at) VALUES(%s,%s,%s,%s,%s,%s,%s)",
		th.MigrationRuns,
		p.dialect.GetPlaceholder(1), p.dialect.GetPlaceholder(2), p.dialect.GetPlaceholder(3),
		p.dialect.GetPlaceholder(4), p.dialect.GetPlaceholder(5), p.dialect.GetPlaceholder(6),
		p.dialect.GetPlaceholder(7))

	_, err := p.db.Exec(q, run.Version, run.Statements, p.dialect.ConvertBoolToStorage(run.Failed),
		run.FailedStatement, run.Error, run.DurationMS, p.dialect.ConvertTimeToStorage(time.Now()))
	if err != nil {
		logger.Error("failed to record migration run", "error", err)
		return fmt.Errorf("failed to record migration run (version %s): %w", run.Version, err)
	}
	return nil
}

// ListRuns returns run history, newest first.
func (p *Store) ListRuns(th connector.TableNames, limit int) ([]connector.Run, error) {
	logger := common.GetLogger().WithStore("postgresql")
	logger.Debug("listing migration runs", "limit", limit)

	q := fmt.Sprintf("SELECT id, version, statements, failed, failed_statement, error, duration_ms, ran_at FROM %s ORDER BY id DESC", th.MigrationRuns)
	var args []interface{}
	if limit > 0 {
		q += " LIMIT " + p.dialect.GetPlaceholder(1)
		args = append(args, limit)
	}

	rows, err := p.db.Query(q, args...)
	if err != nil {
		logger.Error("failed to query migration runs", "error", err)
		return nil, fmt.Errorf("failed to list migration runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []connector.Run
	for rows.Next() {
		var run connector.Run
		var errText sql.NullString
		var ranAt time.Time
		if err := rows.Scan(&run.ID, &run.Version, &run.Statements, &run.Failed, &run.FailedStatement, &errText, &run.DurationMS, &ranAt); err != nil {
			logger.Error("failed to scan migration run", "error", err)
			return nil, fmt.Errorf("failed to scan migration run: %w", err)
		}
		if errText.Valid {
			run.Error = &errText.String
		}
		run.RanAt = p.dialect.ConvertTimeFromStorage(ranAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration runs: %w", err)
	}
	return runs, nil
}
