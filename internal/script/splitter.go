package script

import (
	"strings"
)

// Dialect selects the lexical rules used when splitting a script.
type Dialect string

const (
	DialectGeneric  Dialect = ""
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// ParseDialect maps config values to a Dialect; unknown values fall back to generic.
func ParseDialect(s string) Dialect {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "postgres", "postgresql", "pg":
		return DialectPostgres
	case "mysql", "mariadb":
		return DialectMySQL
	default:
		return DialectGeneric
	}
}

// Statement is one executable statement taken from a script.
type Statement struct {
	Index int    // zero-based position within the script
	Line  int    // 1-based line where the statement starts
	SQL   string // statement text without the terminating delimiter or comments
}

// Splitter splits SQL text on ';' while honouring string literals, quoted
// identifiers and comments. Comments are dropped from the output.
type Splitter struct {
	// HashComments treats '#' as a line comment (MySQL).
	HashComments bool
	// DollarQuotes recognises $tag$...$tag$ bodies (PostgreSQL).
	DollarQuotes bool
	// BackslashEscapes lets '\' escape the next character inside quotes (MySQL).
	BackslashEscapes bool
	// NestedComments lets /* ... */ comments nest (PostgreSQL).
	NestedComments bool
}

// NewSplitter returns a Splitter configured for the dialect. The generic
// dialect follows standard SQL: quotes escape only by doubling.
func NewSplitter(d Dialect) Splitter {
	switch d {
	case DialectMySQL:
		return Splitter{HashComments: true, BackslashEscapes: true}
	case DialectPostgres:
		return Splitter{DollarQuotes: true, NestedComments: true}
	default:
		return Splitter{}
	}
}

// Split returns the statements of src in order. Empty statements (for
// example after a trailing ';' or between ';;') and comment-only fragments
// are skipped. An unterminated final statement is still returned.
func (sp Splitter) Split(src string) []Statement {
	var (
		out       []Statement
		cur       strings.Builder
		line      = 1
		startLine = 0
	)
	emit := func() {
		sql := strings.TrimSpace(cur.String())
		if sql != "" {
			out = append(out, Statement{Index: len(out), Line: startLine, SQL: sql})
		}
		cur.Reset()
		startLine = 0
	}
	write := func(s string) {
		if startLine == 0 && strings.TrimSpace(s) != "" {
			startLine = line
		}
		cur.WriteString(s)
	}

	n := len(src)
	for i := 0; i < n; {
		c := src[i]
		switch {
		case c == '\n':
			cur.WriteByte(c)
			line++
			i++

		case c == '-' && i+1 < n && src[i+1] == '-', c == '#' && sp.HashComments:
			for i < n && src[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && src[i+1] == '*':
			j := sp.commentEnd(src, i)
			body := src[i:j]
			i = j
			nl := strings.Count(body, "\n")
			if sp.HashComments && strings.HasPrefix(body, "/*!") {
				// MySQL executable comment
				write(body)
				line += nl
				continue
			}
			line += nl
			if nl > 0 {
				cur.WriteString(strings.Repeat("\n", nl))
			} else {
				cur.WriteByte(' ')
			}

		case c == '\'' || c == '"' || c == '`':
			j := sp.scanQuoted(src, i, c)
			seg := src[i:j]
			write(seg)
			line += strings.Count(seg, "\n")
			i = j

		case c == '$' && sp.DollarQuotes:
			if tag, ok := dollarTag(src, i); ok {
				end := strings.Index(src[i+len(tag):], tag)
				j := n
				if end >= 0 {
					j = i + len(tag) + end + len(tag)
				}
				seg := src[i:j]
				write(seg)
				line += strings.Count(seg, "\n")
				i = j
				continue
			}
			write("$")
			i++

		case c == ';':
			emit()
			i++

		default:
			if startLine == 0 && c != ' ' && c != '\t' && c != '\r' {
				startLine = line
			}
			cur.WriteByte(c)
			i++
		}
	}
	emit()
	return out
}

// scanQuoted returns the index just past the closing quote that matches src[start].
// A doubled quote character is an escaped quote.
func (sp Splitter) scanQuoted(src string, start int, q byte) int {
	n := len(src)
	i := start + 1
	for i < n {
		c := src[i]
		if sp.BackslashEscapes && c == '\\' && q != '`' && i+1 < n {
			i += 2
			continue
		}
		if c == q {
			if i+1 < n && src[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return n
}

// commentEnd returns the index just past the block comment opened at src[start].
func (sp Splitter) commentEnd(src string, start int) int {
	n := len(src)
	depth := 1
	for i := start + 2; i < n-1; {
		switch {
		case src[i] == '*' && src[i+1] == '/':
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		case sp.NestedComments && src[i] == '/' && src[i+1] == '*':
			depth++
			i += 2
		default:
			i++
		}
	}
	return n
}

// dollarTag reports the $tag$ opener at src[i], if any.
func dollarTag(src string, i int) (string, bool) {
	j := i + 1
	for j < len(src) {
		c := src[j]
		if c == '$' {
			return src[i : j+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || j > i+1 && c >= '0' && c <= '9') {
			return "", false
		}
		j++
	}
	return "", false
}

// Split splits src using the generic rules.
func Split(src string) []Statement {
	return NewSplitter(DialectGeneric).Split(src)
}
