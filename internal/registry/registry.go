// Package registry holds the ordered set of migration steps known to the
// application. A step binds a schema version to the script that upgrades
// the database to it.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/loykin/sqlupgrade/internal/version"
)

// ErrOrderingViolation is returned when a version is malformed or registered twice.
var ErrOrderingViolation = errors.New("registry ordering violation")

// Step is one unit of upgrade work.
type Step struct {
	Version version.Version
	// Script identifies the SQL source; it defaults to the version string.
	Script string
}

func (s Step) String() string {
	return s.Version.String()
}

// Registry is an ascending list of steps with unique versions. The zero
// value is empty and ready to use. A Registry is not safe for concurrent
// registration.
type Registry struct {
	steps []Step
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// FromMap builds a Registry from version → script identifiers. Every
// malformed or duplicate entry is reported, not just the first.
func FromMap(m map[string]string) (*Registry, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r := New()
	var errs *multierror.Error
	for _, k := range keys {
		if err := r.Register(k, m[k]); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds a step. An empty script defaults to the version string.
func (r *Registry) Register(ver, scriptName string) error {
	v, err := version.Parse(ver)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOrderingViolation, err)
	}
	scriptName = strings.TrimSpace(scriptName)
	if scriptName == "" {
		scriptName = v.String()
	}
	i := sort.Search(len(r.steps), func(i int) bool { return !r.steps[i].Version.LessThan(v) })
	if i < len(r.steps) && r.steps[i].Version.Equal(v) {
		return fmt.Errorf("%w: version %q duplicates %q", ErrOrderingViolation, ver, r.steps[i].Version.String())
	}
	r.steps = append(r.steps, Step{})
	copy(r.steps[i+1:], r.steps[i:])
	r.steps[i] = Step{Version: v, Script: scriptName}
	return nil
}

// MustRegister is like Register but panics. Intended for static registries.
func (r *Registry) MustRegister(ver, scriptName string) {
	if err := r.Register(ver, scriptName); err != nil {
		panic(err)
	}
}

// Len returns the number of registered steps.
func (r *Registry) Len() int {
	return len(r.steps)
}

// Steps returns all steps in ascending version order.
func (r *Registry) Steps() []Step {
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Latest returns the highest registered version, or version.Zero when empty.
func (r *Registry) Latest() version.Version {
	if len(r.steps) == 0 {
		return version.Zero
	}
	return r.steps[len(r.steps)-1].Version
}

// Lookup finds the step registered for v.
func (r *Registry) Lookup(v version.Version) (Step, bool) {
	i := sort.Search(len(r.steps), func(i int) bool { return !r.steps[i].Version.LessThan(v) })
	if i < len(r.steps) && r.steps[i].Version.Equal(v) {
		return r.steps[i], true
	}
	return Step{}, false
}

// Pending returns the steps with current < version <= target in ascending
// order. A zero target means no upper bound.
func (r *Registry) Pending(current, target version.Version) []Step {
	out := make([]Step, 0)
	for _, s := range r.steps {
		if !s.Version.GreaterThan(current) {
			continue
		}
		if !target.IsZero() && s.Version.GreaterThan(target) {
			break
		}
		out = append(out, s)
	}
	return out
}
