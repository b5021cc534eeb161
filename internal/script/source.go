package script

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/loykin/sqlupgrade/internal/constants"
)

// ErrNotFound is returned when a script identifier has no backing file.
var ErrNotFound = errors.New("script not found")

// Source resolves a script identifier to its SQL text.
type Source interface {
	Read(name string) (string, error)
}

// FSSource reads "<name>.sql" files from a file system, e.g. os.DirFS or an embed.FS.
type FSSource struct {
	FS  fs.FS
	Dir string // optional sub-directory inside FS
	Ext string // defaults to ".sql"
}

// NewDirSource returns a Source backed by a directory on disk.
func NewDirSource(dir string) *FSSource {
	return &FSSource{FS: os.DirFS(dir)}
}

// FileName returns the file name a script identifier maps to.
func (s *FSSource) FileName(name string) string {
	ext := s.Ext
	if ext == "" {
		ext = constants.ScriptExtension
	}
	if strings.HasSuffix(name, ext) {
		return name
	}
	return name + ext
}

func (s *FSSource) Read(name string) (string, error) {
	p := s.FileName(name)
	if s.Dir != "" {
		p = path.Join(s.Dir, p)
	}
	b, err := fs.ReadFile(s.FS, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", fmt.Errorf("read script %s: %w", p, err)
	}
	return string(b), nil
}

// MapSource is an in-memory Source keyed by script identifier.
type MapSource map[string]string

func (m MapSource) Read(name string) (string, error) {
	s, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s, nil
}
