package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/loykin/sqlupgrade"
	"github.com/loykin/sqlupgrade/internal/constants"
	"github.com/loykin/sqlupgrade/internal/util"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	// sqlite (default) or postgres
	Type     string                    `mapstructure:"type" yaml:"type"`
	SQLite   sqlupgrade.SqliteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres sqlupgrade.PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

func (d DatabaseConfig) driver() string {
	return sqlupgrade.NormalizeDriver(d.Type)
}

func (d DatabaseConfig) driverConfig() sqlupgrade.DriverConfig {
	if d.driver() == sqlupgrade.DriverPostgresql {
		pg := d.Postgres
		return &pg
	}
	sq := d.SQLite
	if sq.Path == "" && sq.DSN == "" {
		sq.Path = constants.DefaultStoreFileName
	}
	return &sq
}

type StoreConfig struct {
	// Empty keeps the version tables inside the upgraded database.
	Type     string                    `mapstructure:"type" yaml:"type"`
	SQLite   sqlupgrade.SqliteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres sqlupgrade.PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	// Optional table name customization
	TablePrefix        string `mapstructure:"table_prefix" yaml:"table_prefix"`
	TableSchemaVersion string `mapstructure:"table_schema_version" yaml:"table_schema_version"`
	TableMigrationRuns string `mapstructure:"table_migration_runs" yaml:"table_migration_runs"`
	TableLock          string `mapstructure:"table_lock" yaml:"table_lock"`
}

func (c StoreConfig) tableNames() sqlupgrade.TableNames {
	return sqlupgrade.BuildTableNames(c.TablePrefix, c.TableSchemaVersion, c.TableMigrationRuns, c.TableLock)
}

// toStoreConfig returns nil when the store shares the upgraded database.
func (c StoreConfig) toStoreConfig() *sqlupgrade.StoreConfig {
	if strings.TrimSpace(c.Type) == "" {
		return nil
	}
	db := DatabaseConfig{Type: c.Type, SQLite: c.SQLite, Postgres: c.Postgres}
	return &sqlupgrade.StoreConfig{
		Driver:       db.driver(),
		TableNames:   c.tableNames(),
		DriverConfig: db.driverConfig(),
	}
}

type RewriteConfig struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

type ScriptsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Manifest lists {version, script} pairs; without it Dir is scanned for <version>.sql.
	Manifest      string        `mapstructure:"manifest" yaml:"manifest"`
	Dialect       string        `mapstructure:"dialect" yaml:"dialect"`
	RewritePrefix RewriteConfig `mapstructure:"rewrite_prefix" yaml:"rewrite_prefix"`
}

type LockConfig struct {
	Enabled *bool  `mapstructure:"enabled" yaml:"enabled"`
	Key     string `mapstructure:"key" yaml:"key"`
}

type RetryConfig struct {
	MaxRetries   *int   `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelay string `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     string `mapstructure:"max_delay" yaml:"max_delay"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format        string `mapstructure:"format" yaml:"format"`                 // text, json, color
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // enable/disable sensitive data masking
	Color         *bool  `mapstructure:"color" yaml:"color"`                   // enable/disable colorized output
}

type StatusConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	BasePath    string `mapstructure:"base_path" yaml:"base_path"`
	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
}

type ConfigDoc struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Scripts  ScriptsConfig  `mapstructure:"scripts" yaml:"scripts"`
	// Target is the highest version to apply; empty applies everything.
	Target  string        `mapstructure:"target" yaml:"target"`
	Lock    LockConfig    `mapstructure:"lock" yaml:"lock"`
	Retry   RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Status  StatusConfig  `mapstructure:"status" yaml:"status"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references; any other '$' is kept as written.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// Load reads a YAML config. ${VAR} references are expanded from the
// environment before decoding so secrets can stay out of the file.
func (c *ConfigDoc) Load(path string) error {
	clean := filepath.Clean(path)
	// Ensure path points to a regular file to avoid opening directories/special files
	info, err := os.Stat(clean)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", clean)
	}
	// #nosec G304 -- config path is provided intentionally by the user/CI; cleaned and validated above
	b, err := os.ReadFile(clean)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal([]byte(expandEnv(string(b))), c); err != nil {
		return fmt.Errorf("parse config %s: %w", clean, err)
	}
	return nil
}

// loadConfig loads path. A missing file at the default location yields an
// empty document so the CLI works with built-in defaults.
func loadConfig(path string, isDefault bool) (*ConfigDoc, error) {
	doc := &ConfigDoc{}
	if strings.TrimSpace(path) == "" {
		return doc, nil
	}
	if err := doc.Load(path); err != nil {
		if isDefault && errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return nil, err
	}
	return doc, nil
}

func (c *ConfigDoc) scriptDir() string {
	return util.TrimWithDefault(c.Scripts.Dir, constants.DefaultScriptDir)
}

func (c *ConfigDoc) lockEnabled() bool {
	return c.Lock.Enabled == nil || *c.Lock.Enabled
}

func (c *ConfigDoc) retryConfig() (*sqlupgrade.RetryConfig, error) {
	rc := sqlupgrade.DefaultRetryConfig()
	if c.Retry.MaxRetries != nil {
		rc.MaxRetries = *c.Retry.MaxRetries
	}
	if d, ok := util.TrimEmptyCheck(c.Retry.InitialDelay); ok {
		v, err := time.ParseDuration(d)
		if err != nil {
			return nil, fmt.Errorf("retry.initial_delay: %w", err)
		}
		rc.InitialDelay = v
	}
	if d, ok := util.TrimEmptyCheck(c.Retry.MaxDelay); ok {
		v, err := time.ParseDuration(d)
		if err != nil {
			return nil, fmt.Errorf("retry.max_delay: %w", err)
		}
		rc.MaxDelay = v
	}
	return rc, nil
}

// SetupLogging configures the global logger based on config settings
func (c *ConfigDoc) SetupLogging() error {
	level, err := sqlupgrade.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return err
	}

	var logger *sqlupgrade.Logger
	format := util.TrimAndLower(c.Logging.Format)

	// Check if color is explicitly requested or auto-detect
	useColor := false
	if c.Logging.Color != nil {
		useColor = *c.Logging.Color
	} else if format == "color" || format == "colour" {
		useColor = true
	}

	switch format {
	case "json":
		logger = sqlupgrade.NewJSONLogger(level)
	case "color", "colour":
		logger = sqlupgrade.NewColorLogger(level)
	case "text", "":
		if useColor {
			logger = sqlupgrade.NewColorLogger(level)
		} else {
			logger = sqlupgrade.NewLogger(level)
		}
	default:
		return fmt.Errorf("invalid logging format: %s (valid: text, json, color)", c.Logging.Format)
	}

	maskingEnabled := true
	if c.Logging.MaskSensitive != nil {
		maskingEnabled = *c.Logging.MaskSensitive
	}
	logger.EnableMasking(maskingEnabled)
	sqlupgrade.SetDefaultLogger(logger)
	sqlupgrade.EnableMasking(maskingEnabled)

	logger.Debug("logging configured",
		"level", level.String(),
		"format", util.TrimWithDefault(format, "text"),
		"color", useColor,
		"mask_sensitive", maskingEnabled)
	return nil
}
