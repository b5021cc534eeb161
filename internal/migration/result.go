package migration

import (
	"time"

	"github.com/loykin/sqlupgrade/internal/registry"
	"github.com/loykin/sqlupgrade/internal/version"
)

// State is the lifecycle of an upgrade run.
type State int

const (
	StatePending State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AppliedStep is a step that ran to completion and was checkpointed
// (or, in a dry run, would have been).
type AppliedStep struct {
	Version    version.Version
	Script     string
	Statements int
	Duration   time.Duration
}

// Result is the outcome of one ApplyPending call.
type Result struct {
	// Plan holds the pending steps in execution order.
	Plan []registry.Step
	// Cursor is the index into Plan of the running or failed step.
	Cursor int
	State  State
	DryRun bool

	Applied      []AppliedStep
	StartVersion version.Version
	// FinalVersion is the installed version once the run ended.
	FinalVersion version.Version

	FailedStep *registry.Step
	Err        *StepError
}

// Remaining returns the planned steps that were not applied.
func (r *Result) Remaining() []registry.Step {
	if r == nil {
		return nil
	}
	n := len(r.Applied)
	if n > len(r.Plan) {
		return nil
	}
	out := make([]registry.Step, len(r.Plan)-n)
	copy(out, r.Plan[n:])
	return out
}

// NoOp reports whether nothing was pending.
func (r *Result) NoOp() bool {
	return r != nil && len(r.Plan) == 0
}

func (r *Result) start(i int) {
	r.State = StateRunning
	r.Cursor = i
}

func (r *Result) fail(step registry.Step, err *StepError) {
	r.State = StateFailed
	s := step
	r.FailedStep = &s
	r.Err = err
}
