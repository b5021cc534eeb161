package sqlupgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/loykin/sqlupgrade/internal/common"
	"github.com/loykin/sqlupgrade/internal/lock"
	"github.com/loykin/sqlupgrade/internal/migration"
	"github.com/loykin/sqlupgrade/internal/registry"
	"github.com/loykin/sqlupgrade/internal/retry"
	"github.com/loykin/sqlupgrade/internal/script"
	"github.com/loykin/sqlupgrade/internal/store"
	"github.com/loykin/sqlupgrade/internal/version"
	"github.com/loykin/sqlupgrade/pkg/status"
)

// Re-export commonly used types for public API

// Version is a dotted numeric schema version; the zero value means nothing is installed.
type Version = version.Version

// Registry maps versions to upgrade scripts.
type Registry = registry.Registry

// Step is one registered upgrade step.
type Step = registry.Step

type Result = migration.Result

type AppliedStep = migration.AppliedStep

type StepError = migration.StepError

type Hooks = migration.Hooks

type ScriptReport = migration.ScriptReport

type Statement = script.Statement

type Source = script.Source

type FSSource = script.FSSource

type MapSource = script.MapSource

type Dialect = script.Dialect

type PrefixRewrite = script.PrefixRewrite

type RetryConfig = retry.Config

type Store = store.Store

type StoreConfig = store.Config

type TableNames = store.TableNames

type SqliteConfig = store.SqliteConfig

type PostgresConfig = store.PostgresConfig

type Run = store.Run

// DriverConfig is implemented by *SqliteConfig and *PostgresConfig.
type DriverConfig = store.DriverConfig

const (
	DriverSqlite     = store.DriverSqlite
	DriverPostgresql = store.DriverPostgresql

	DialectGeneric  = script.DialectGeneric
	DialectSQLite   = script.DialectSQLite
	DialectPostgres = script.DialectPostgres
	DialectMySQL    = script.DialectMySQL

	// DefaultLockKey names the advisory lock taken by Up.
	DefaultLockKey = "sqlupgrade"
)

var (
	ErrScriptNotFound     = migration.ErrScriptNotFound
	ErrStatementSyntax    = migration.ErrStatementSyntax
	ErrExecution          = migration.ErrExecution
	ErrVersionPersistence = migration.ErrVersionPersistence
	ErrRegistryOrdering   = migration.ErrRegistryOrdering
	ErrMalformedVersion   = version.ErrMalformed
	ErrLocked             = lock.ErrLocked
)

// ZeroVersion is the installed version of a fresh database.
var ZeroVersion = version.Zero

func ParseVersion(s string) (Version, error) { return version.Parse(s) }

func MustParseVersion(s string) Version { return version.MustParse(s) }

func NewRegistry() *Registry { return registry.New() }

// RegistryFromMap registers version -> script pairs; every bad entry is reported.
func RegistryFromMap(m map[string]string) (*Registry, error) { return registry.FromMap(m) }

// RegistryFromDir registers one step per "<version>.sql" file in dir.
func RegistryFromDir(dir string) (*Registry, error) { return registry.FromDir(dir) }

// RegistryFromFS registers one step per "<version>.sql" file under dir in fsys, e.g. an embed.FS.
func RegistryFromFS(fsys fs.FS, dir string) (*Registry, error) { return registry.FromFS(fsys, dir) }

// RegistryFromManifest reads a YAML manifest of {version, script} entries.
func RegistryFromManifest(path string) (*Registry, error) { return registry.FromManifest(path) }

func NewDirSource(dir string) *FSSource { return script.NewDirSource(dir) }

func ParseDialect(s string) Dialect { return script.ParseDialect(s) }

// SplitStatements splits a script with the given dialect's lexical rules.
func SplitStatements(d Dialect, sql string) []Statement { return script.NewSplitter(d).Split(sql) }

// DefaultRetryConfig is the checkpoint retry policy used when Upgrader.Retry is nil.
func DefaultRetryConfig() *RetryConfig { return retry.DefaultRetryConfig() }

func AsStepError(err error) (*StepError, bool) { return migration.AsStepError(err) }

// NormalizeDriver maps "pg", "postgres", "sqlite3" and friends to a driver constant.
func NormalizeDriver(s string) string { return store.NormalizeDriver(s) }

// BuildTableNames derives store table names from an optional prefix; explicit names win.
func BuildTableNames(prefix, schemaVersion, migrationRuns, lockTable string) TableNames {
	return store.BuildTableNames(prefix, schemaVersion, migrationRuns, lockTable)
}

// OpenDatabase connects to the database to be upgraded.
func OpenDatabase(driver string, cfg DriverConfig) (*sql.DB, error) {
	return store.Open(driver, cfg)
}

// OpenStore connects to a dedicated version store and creates its tables.
func OpenStore(cfg StoreConfig) (*Store, error) {
	st := &Store{}
	if err := st.Connect(cfg); err != nil {
		return nil, err
	}
	return st, nil
}

// Upgrader applies the registry to a database. The installed version lives
// in Store when set, in a store opened from StoreConfig otherwise, and by
// default in tables created inside DB itself.
type Upgrader struct {
	Registry *Registry
	Source   Source
	Dialect  Dialect
	// Rewrite renames prefixed tables in every script before execution.
	Rewrite PrefixRewrite

	DB     *sql.DB
	Driver string

	Store       *Store
	StoreConfig *StoreConfig
	TableNames  TableNames

	Hooks  Hooks
	Retry  *RetryConfig
	Target Version
	DryRun bool

	// Lock takes the upgrade lock on the version store for the whole run.
	Lock    bool
	LockKey string
}

func (u *Upgrader) loader() *script.Loader {
	d := u.Dialect
	if d == DialectGeneric {
		d = script.ParseDialect(u.driver())
	}
	l := script.NewLoader(u.Source, d)
	l.Rewrite = u.Rewrite
	return l
}

func (u *Upgrader) runner(st *Store) *migration.Runner {
	r := &migration.Runner{
		Registry: u.Registry,
		Loader:   u.loader(),
		Hooks:    u.Hooks,
		Retry:    u.Retry,
		Target:   u.Target,
		DryRun:   u.DryRun,
	}
	if u.DB != nil {
		r.DB = u.DB
	}
	if st != nil {
		r.Store = st
	}
	return r
}

// openStore returns the store to use and a function releasing what was opened here.
func (u *Upgrader) openStore() (*Store, func(), error) {
	if u.Store != nil {
		return u.Store, func() {}, nil
	}
	if u.StoreConfig != nil {
		st, err := OpenStore(*u.StoreConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("open version store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	}
	if u.DB == nil {
		return nil, nil, errors.New("upgrader needs a database or a version store")
	}
	st, err := store.FromDB(u.driver(), u.DB, u.TableNames)
	if err != nil {
		return nil, nil, fmt.Errorf("open version store: %w", err)
	}
	return st, func() { _ = st.Close() }, nil
}

func (u *Upgrader) driver() string {
	if strings.TrimSpace(u.Driver) == "" {
		return DriverSqlite
	}
	return u.Driver
}

func (u *Upgrader) acquire(ctx context.Context, st *Store) (func() error, error) {
	if !u.Lock || u.DryRun {
		return func() error { return nil }, nil
	}
	key := u.LockKey
	if key == "" {
		key = DefaultLockKey
	}
	l, err := lock.New(st.Driver(), st.DB, st.TableNames(), key)
	if err != nil {
		return nil, err
	}
	return l.Acquire(ctx)
}

// Up applies every pending step after the installed version.
func (u *Upgrader) Up(ctx context.Context) (*Result, error) {
	st, closeStore, err := u.openStore()
	if err != nil {
		return nil, err
	}
	defer closeStore()

	release, err := u.acquire(ctx, st)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			common.GetLogger().WithComponent("upgrader").Warn("failed to release upgrade lock", "error", rerr)
		}
	}()
	return u.runner(st).Up(ctx)
}

// ApplyPending applies the steps after current, ignoring the stored version.
// The store still receives a checkpoint after each step.
func (u *Upgrader) ApplyPending(ctx context.Context, current Version) (*Result, error) {
	st, closeStore, err := u.openStore()
	if err != nil {
		return nil, err
	}
	defer closeStore()

	release, err := u.acquire(ctx, st)
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()
	return u.runner(st).ApplyPending(ctx, current)
}

// Plan lists the steps Up would run now.
func (u *Upgrader) Plan() ([]Step, error) {
	st, closeStore, err := u.openStore()
	if err != nil {
		return nil, err
	}
	defer closeStore()
	cur, err := st.InstalledVersion()
	if err != nil {
		return nil, err
	}
	return u.runner(st).Plan(cur), nil
}

// Validate loads and splits every registered script without a database.
func (u *Upgrader) Validate() ([]ScriptReport, error) {
	return u.runner(nil).Validate()
}

// Status reports the installed version, pending steps and up to
// historyLimit recorded runs (all when historyLimit <= 0).
func (u *Upgrader) Status(historyLimit int) (status.Info, error) {
	st, closeStore, err := u.openStore()
	if err != nil {
		return status.Info{}, err
	}
	defer closeStore()
	return status.FromStore(st, u.Registry, historyLimit)
}

// SetVersion moves the installed version without running any step.
func (u *Upgrader) SetVersion(v Version) error {
	st, closeStore, err := u.openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	return st.ForceSetVersion(v)
}

// ForceUnlock clears a SQLite lock row left behind by a crashed run.
// PostgreSQL advisory locks end with the session that holds them.
func (u *Upgrader) ForceUnlock(ctx context.Context) error {
	st, closeStore, err := u.openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	if st.Driver() != DriverSqlite {
		return fmt.Errorf("%s advisory locks are released when the holding session ends", st.Driver())
	}
	return lock.NewSQLiteLock(st.DB, st.TableNames().Lock).ForceRelease(ctx)
}
