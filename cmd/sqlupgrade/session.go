package main

import (
	"database/sql"
	"fmt"

	"github.com/loykin/sqlupgrade"
	"github.com/loykin/sqlupgrade/internal/common"
	"github.com/loykin/sqlupgrade/internal/util"
)

// session is the upgrader a command works with plus what was opened for it.
type session struct {
	doc *ConfigDoc
	up  *sqlupgrade.Upgrader
	db  *sql.DB
}

func (s *session) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func buildRegistry(doc *ConfigDoc) (*sqlupgrade.Registry, error) {
	if manifest, ok := util.TrimEmptyCheck(doc.Scripts.Manifest); ok {
		return sqlupgrade.RegistryFromManifest(manifest)
	}
	return sqlupgrade.RegistryFromDir(doc.scriptDir())
}

// openSession builds the upgrader described by doc. withDB connects to the
// upgraded database; without it only registry and scripts are available.
func openSession(doc *ConfigDoc, withDB bool) (*session, error) {
	reg, err := buildRegistry(doc)
	if err != nil {
		return nil, err
	}
	rc, err := doc.retryConfig()
	if err != nil {
		return nil, err
	}
	target, err := parseTarget(doc.Target)
	if err != nil {
		return nil, err
	}

	u := &sqlupgrade.Upgrader{
		Registry:    reg,
		Source:      sqlupgrade.NewDirSource(doc.scriptDir()),
		Dialect:     sqlupgrade.ParseDialect(doc.Scripts.Dialect),
		Rewrite:     sqlupgrade.PrefixRewrite{From: doc.Scripts.RewritePrefix.From, To: doc.Scripts.RewritePrefix.To},
		Driver:      doc.Database.driver(),
		StoreConfig: doc.Store.toStoreConfig(),
		TableNames:  doc.Store.tableNames(),
		Retry:       rc,
		Target:      target,
		Lock:        doc.lockEnabled(),
		LockKey:     doc.Lock.Key,
	}
	s := &session{doc: doc, up: u}
	if !withDB {
		return s, nil
	}

	logger := common.GetLogger().WithComponent("cli").WithStore(u.Driver)
	db, err := sqlupgrade.OpenDatabase(u.Driver, doc.Database.driverConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Debug("database opened", "scripts", doc.scriptDir(), "steps", reg.Len())
	u.DB = db
	s.db = db
	return s, nil
}

func parseTarget(raw string) (sqlupgrade.Version, error) {
	t, ok := util.TrimEmptyCheck(raw)
	if !ok {
		return sqlupgrade.ZeroVersion, nil
	}
	v, err := sqlupgrade.ParseVersion(t)
	if err != nil {
		return sqlupgrade.ZeroVersion, fmt.Errorf("invalid target: %w", err)
	}
	return v, nil
}
