package store

import (
	"github.com/loykin/sqlupgrade/internal/constants"
	"github.com/loykin/sqlupgrade/internal/store/connector"
	"github.com/loykin/sqlupgrade/internal/store/postgresql"
	"github.com/loykin/sqlupgrade/internal/store/sqlite"
	"github.com/loykin/sqlupgrade/internal/util"
)

const (
	DriverSqlite     = "sqlite"
	DriverPostgresql = "postgresql"
)

type Config struct {
	Driver       string `mapstructure:"driver"`
	TableNames   TableNames
	DriverConfig DriverConfig
}

type DriverConfig interface {
	ToMap() map[string]interface{}
}

// TableNames represents database table names
type TableNames = connector.TableNames

// Run is one recorded step attempt.
type Run = connector.Run

type SqliteConfig = sqlite.Config

type PostgresConfig = postgresql.Config

// NormalizeDriver maps user spellings ("pg", "postgres", "sqlite3") to a driver constant.
func NormalizeDriver(s string) string {
	switch util.TrimAndLower(s) {
	case "postgres", "postgresql", "pg":
		return DriverPostgresql
	case "sqlite", "sqlite3", "":
		return DriverSqlite
	default:
		return util.TrimAndLower(s)
	}
}

// BuildTableNames derives table names from an optional prefix. Explicit
// names win; empty names fall back to prefix+suffix, then to the defaults.
func BuildTableNames(prefix, schemaVersion, migrationRuns, lock string) TableNames {
	fields := util.TrimSpaceFields(prefix, schemaVersion, migrationRuns, lock)
	prefix, sv, mr, lk := fields[0], fields[1], fields[2], fields[3]

	if prefix != "" {
		if sv == "" {
			sv = prefix + constants.SchemaVersionSuffix
		}
		if mr == "" {
			mr = prefix + constants.MigrationRunsSuffix
		}
		if lk == "" {
			lk = prefix + constants.LockSuffix
		}
	}
	return withDefaults(TableNames{SchemaVersion: sv, MigrationRuns: mr, Lock: lk})
}

func withDefaults(th TableNames) TableNames {
	th.SchemaVersion = util.TrimWithDefault(th.SchemaVersion, constants.DefaultSchemaVersionTable)
	th.MigrationRuns = util.TrimWithDefault(th.MigrationRuns, constants.DefaultMigrationRunsTable)
	th.Lock = util.TrimWithDefault(th.Lock, constants.DefaultLockTable)
	return th
}
