package sqlupgrade

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/sqlupgrade/internal/constants"
	"github.com/loykin/sqlupgrade/internal/registry"
	"github.com/loykin/sqlupgrade/internal/version"
)

// CreateOptions configures CreateScript.
type CreateOptions struct {
	Dir string
	// Version of the new script. Empty means the next version after the
	// newest script already in Dir ("1.0.0" for an empty directory).
	Version string
}

const scriptTemplate = `-- Upgrade to %s
--
-- Statements are separated by ";" and run in order. Each statement
-- autocommits on its own. The installed version moves to %s only after every
-- statement below has succeeded.

`

// CreateScript writes an empty "<version>.sql" into Dir and returns its path.
// An existing file is never overwritten.
func CreateScript(opts CreateOptions) (string, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return "", errors.New("script directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}

	var v version.Version
	if raw := strings.TrimSpace(opts.Version); raw != "" {
		parsed, err := version.Parse(raw)
		if err != nil {
			return "", err
		}
		v = parsed
	} else {
		reg, err := registry.FromDir(dir)
		if err != nil {
			return "", err
		}
		v = reg.Latest().Next()
	}

	p := filepath.Join(dir, v.String()+constants.ScriptExtension)
	// #nosec G304 -- path is built from a validated version inside the configured directory
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("script for %s already exists: %s", v, p)
		}
		return "", err
	}
	defer func() { _ = f.Close() }()
	if _, err := fmt.Fprintf(f, scriptTemplate, v, v); err != nil {
		return "", err
	}
	return p, nil
}

// CreateScript scaffolds the next script in dir; see the package-level CreateScript.
func (u *Upgrader) CreateScript(dir, ver string) (string, error) {
	return CreateScript(CreateOptions{Dir: dir, Version: ver})
}
