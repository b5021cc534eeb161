package script

import "strings"

// PrefixRewrite renames tables written with a default prefix (for example
// `mw_list`) to the installation's prefix (`app_list`). Only identifiers
// quoted with backticks or double quotes are rewritten.
type PrefixRewrite struct {
	From string
	To   string
}

// Enabled reports whether the rewrite changes anything.
func (p PrefixRewrite) Enabled() bool {
	return p.From != "" && p.From != p.To
}

// Apply rewrites sql.
func (p PrefixRewrite) Apply(sql string) string {
	if !p.Enabled() {
		return sql
	}
	r := strings.NewReplacer("`"+p.From, "`"+p.To, `"`+p.From, `"`+p.To)
	return r.Replace(sql)
}
