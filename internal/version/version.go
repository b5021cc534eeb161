// Package version implements dotted numeric schema versions such as
// "1.3.8.0". Versions compare component by component as integers, and
// missing trailing components count as zero, so "1.0" equals "1.0.0"
// and "1.10.0" sorts after "1.9.0".
package version

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// ErrMalformed is returned for identifiers that are not dotted numbers.
var ErrMalformed = errors.New("malformed schema version")

var dottedNumeric = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

// Version is a schema version. The zero value means "nothing installed"
// and orders before every parsed version.
type Version struct {
	v *goversion.Version
}

// Zero is the version of a fresh installation.
var Zero = Version{}

// Parse parses a dotted numeric version. Surrounding whitespace is ignored.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if !dottedNumeric.MatchString(s) {
		return Zero, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	v, err := goversion.NewVersion(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
	}
	return Version{v: v}, nil
}

// ParseOptional parses s, treating an empty string as Zero.
func ParseOptional(s string) (Version, error) {
	if strings.TrimSpace(s) == "" {
		return Zero, nil
	}
	return Parse(s)
}

// MustParse is like Parse but panics on error. Intended for static tables.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v is the "nothing installed" version.
func (v Version) IsZero() bool {
	return v.v == nil
}

// String returns the version as originally written, or "" for Zero.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// Segments returns the numeric components.
func (v Version) Segments() []int {
	if v.v == nil {
		return nil
	}
	return v.v.Segments()
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.v == nil && o.v == nil:
		return 0
	case v.v == nil:
		return -1
	case o.v == nil:
		return 1
	}
	return v.v.Compare(o.v)
}

func (v Version) LessThan(o Version) bool    { return v.Compare(o) < 0 }
func (v Version) GreaterThan(o Version) bool { return v.Compare(o) > 0 }
func (v Version) Equal(o Version) bool       { return v.Compare(o) == 0 }

// Sort sorts versions ascending in place.
func Sort(vs []Version) {
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].LessThan(vs[j]) })
}

// Next returns v with its last written component incremented
// ("2.0.20" -> "2.0.21", "1.1" -> "1.2"). Zero yields "1.0.0".
func (v Version) Next() Version {
	if v.v == nil {
		return MustParse("1.0.0")
	}
	parts := strings.Split(v.v.Original(), ".")
	last := len(parts) - 1
	n, _ := strconv.Atoi(parts[last])
	parts[last] = strconv.Itoa(n + 1)
	return MustParse(strings.Join(parts, "."))
}
