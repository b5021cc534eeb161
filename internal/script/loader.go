package script

import "fmt"

// Loader reads a script from a Source and turns it into statements.
type Loader struct {
	Source   Source
	Splitter Splitter
	Rewrite  PrefixRewrite
}

// NewLoader returns a Loader for the given source and dialect.
func NewLoader(src Source, d Dialect) *Loader {
	return &Loader{Source: src, Splitter: NewSplitter(d)}
}

// Load returns the statements of the named script. A missing script
// yields an error wrapping ErrNotFound.
func (l *Loader) Load(name string) ([]Statement, error) {
	if l.Source == nil {
		return nil, fmt.Errorf("%w: %s (no script source configured)", ErrNotFound, name)
	}
	text, err := l.Source.Read(name)
	if err != nil {
		return nil, err
	}
	stmts := l.Splitter.Split(text)
	if l.Rewrite.Enabled() {
		for i := range stmts {
			stmts[i].SQL = l.Rewrite.Apply(stmts[i].SQL)
		}
	}
	return stmts, nil
}
