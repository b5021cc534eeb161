package registry

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/loykin/sqlupgrade/internal/common"
	"github.com/loykin/sqlupgrade/internal/constants"
	"github.com/loykin/sqlupgrade/internal/version"
	"gopkg.in/yaml.v3"
)

// FromFS registers every "<version>.sql" file found directly in dir of fsys.
// Files whose base name is not a version are ignored.
func FromFS(fsys fs.FS, dir string) (*Registry, error) {
	if dir == "" {
		dir = "."
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	logger := common.GetLogger().WithComponent("registry")
	r := New()
	var errs *multierror.Error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if path.Ext(name) != constants.ScriptExtension {
			continue
		}
		base := strings.TrimSuffix(name, constants.ScriptExtension)
		if _, err := version.Parse(base); err != nil {
			logger.Debug("skipping non-version script file", "file", name)
			continue
		}
		if err := r.Register(base, base); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

// FromDir is FromFS over a directory on disk.
func FromDir(dir string) (*Registry, error) {
	return FromFS(os.DirFS(dir), ".")
}

// Manifest is the YAML form of a registry:
//
//	steps:
//	  - version: 1.3.8.0
//	  - version: 2.0.20
//	    script: 2.0.20-mysql
type Manifest struct {
	Steps []ManifestStep `yaml:"steps"`
}

// ManifestStep is one entry of a Manifest.
type ManifestStep struct {
	Version string `yaml:"version"`
	Script  string `yaml:"script"`
}

// DecodeManifest parses a manifest and builds the Registry it describes.
func DecodeManifest(r io.Reader) (*Registry, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	reg := New()
	var errs *multierror.Error
	for i, s := range m.Steps {
		if err := reg.Register(s.Version, s.Script); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("steps[%d]: %w", i, err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return reg, nil
}

// FromManifest loads a manifest file from disk.
func FromManifest(p string) (*Registry, error) {
	clean := filepath.Clean(p)
	// #nosec G304 -- manifest path is supplied by the operator
	f, err := os.Open(clean)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return DecodeManifest(f)
}
