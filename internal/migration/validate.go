package migration

import (
	"github.com/hashicorp/go-multierror"
	"github.com/loykin/sqlupgrade/internal/version"
)

// ScriptReport summarises one registered step without running it.
type ScriptReport struct {
	Version    version.Version
	Script     string
	Statements int
}

// Validate loads and splits every registered script. All missing scripts
// are reported together.
func (r *Runner) Validate() ([]ScriptReport, error) {
	if err := r.checkStatic(); err != nil {
		return nil, err
	}
	steps := r.Registry.Steps()
	reports := make([]ScriptReport, 0, len(steps))
	var errs *multierror.Error
	for _, step := range steps {
		stmts, err := r.Loader.Load(step.Script)
		if err != nil {
			errs = multierror.Append(errs, &StepError{Version: step.Version, StatementIndex: NoStatement, Kind: ErrScriptNotFound, Err: err})
			continue
		}
		reports = append(reports, ScriptReport{Version: step.Version, Script: step.Script, Statements: len(stmts)})
	}
	return reports, errs.ErrorOrNil()
}

func (r *Runner) checkStatic() error {
	dry := *r
	dry.DryRun = true
	return dry.check()
}
