// Package store persists the installed schema version and the history of
// step attempts. The version is a single row that only moves when a step
// has completed; the history is append-only.
package store

import (
	"database/sql"
	"fmt"

	"github.com/loykin/sqlupgrade/internal/common"
	"github.com/loykin/sqlupgrade/internal/store/connector"
	"github.com/loykin/sqlupgrade/internal/store/postgresql"
	"github.com/loykin/sqlupgrade/internal/store/sqlite"
	"github.com/loykin/sqlupgrade/internal/version"
)

type Store struct {
	DB         *sql.DB
	connector  connector.Connector
	tableNames TableNames
	driver     string
}

func newConnector(driver string) (connector.Connector, error) {
	switch driver {
	case DriverSqlite:
		return sqlite.NewStore(), nil
	case DriverPostgresql:
		return postgresql.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// Connect opens the configured driver and ensures the store tables exist.
func (s *Store) Connect(config Config) error {
	driver := NormalizeDriver(config.Driver)
	c, err := newConnector(driver)
	if err != nil {
		return err
	}
	if config.DriverConfig != nil {
		if err := c.Load(config.DriverConfig.ToMap()); err != nil {
			return err
		}
	}
	if err := c.Validate(); err != nil {
		return err
	}
	db, err := c.Connect()
	if err != nil {
		return err
	}
	s.DB = db
	s.connector = c
	s.driver = driver
	s.tableNames = withDefaults(config.TableNames)

	if err := s.EnsureSchema(); err != nil {
		_ = c.Close()
		return err
	}
	return nil
}

// FromDB builds a Store on an already open database, typically the
// database being upgraded. Close leaves db open.
func FromDB(driver string, db *sql.DB, th TableNames) (*Store, error) {
	driver = NormalizeDriver(driver)
	c, err := newConnector(driver)
	if err != nil {
		return nil, err
	}
	c.Attach(db)
	s := &Store{DB: db, connector: c, tableNames: withDefaults(th), driver: driver}
	if err := s.EnsureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Driver returns the normalized driver name.
func (s *Store) Driver() string {
	return s.driver
}

// TableNames returns the table names in use.
func (s *Store) TableNames() TableNames {
	return s.tableNames
}

func (s *Store) Close() error {
	if s == nil || s.connector == nil {
		return nil
	}
	return s.connector.Close()
}

// EnsureSchema creates the store tables if they do not exist.
func (s *Store) EnsureSchema() error {
	return s.connector.Ensure(s.tableNames)
}

// InstalledVersion returns the checkpointed version, or version.Zero on a
// fresh store.
func (s *Store) InstalledVersion() (version.Version, error) {
	raw, err := s.connector.InstalledVersion(s.tableNames)
	if err != nil {
		return version.Zero, err
	}
	v, err := version.ParseOptional(raw)
	if err != nil {
		return version.Zero, fmt.Errorf("stored version is corrupt: %w", err)
	}
	return v, nil
}

// SetInstalledVersion checkpoints v. Writing the current value again is a no-op in effect.
func (s *Store) SetInstalledVersion(v version.Version) error {
	if v.IsZero() {
		return fmt.Errorf("cannot checkpoint an empty version")
	}
	return s.connector.SetInstalledVersion(s.tableNames, v.String())
}

// ForceSetVersion moves the checkpoint without running any step. Unlike
// the runner it may move the version backwards.
func (s *Store) ForceSetVersion(v version.Version) error {
	logger := common.GetLogger().WithStore(s.driver).WithVersion(v.String())
	logger.Warn("forcing installed version")
	return s.SetInstalledVersion(v)
}

// RecordRun appends to the run history.
func (s *Store) RecordRun(run Run) error {
	return s.connector.RecordRun(s.tableNames, run)
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	return s.connector.ListRuns(s.tableNames, limit)
}

// Open connects to a database through the driver's connector without
// creating any store tables. The caller owns the returned handle.
func Open(driver string, cfg DriverConfig) (*sql.DB, error) {
	c, err := newConnector(NormalizeDriver(driver))
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		if err := c.Load(cfg.ToMap()); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c.Connect()
}
