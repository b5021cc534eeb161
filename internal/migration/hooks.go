package migration

import (
	"context"

	"github.com/loykin/sqlupgrade/internal/registry"
	"github.com/loykin/sqlupgrade/internal/script"
)

// Hooks observe a run. Any field may be nil. Hooks are called on the
// runner's goroutine and cannot alter the outcome.
type Hooks struct {
	BeforeStep      func(ctx context.Context, step registry.Step)
	BeforeStatement func(ctx context.Context, step registry.Step, stmt script.Statement)
	AfterStep       func(ctx context.Context, step registry.Step, applied AppliedStep)
	OnFailure       func(ctx context.Context, step registry.Step, err *StepError)
}

func (h Hooks) beforeStep(ctx context.Context, s registry.Step) {
	if h.BeforeStep != nil {
		h.BeforeStep(ctx, s)
	}
}

func (h Hooks) beforeStatement(ctx context.Context, s registry.Step, st script.Statement) {
	if h.BeforeStatement != nil {
		h.BeforeStatement(ctx, s, st)
	}
}

func (h Hooks) afterStep(ctx context.Context, s registry.Step, a AppliedStep) {
	if h.AfterStep != nil {
		h.AfterStep(ctx, s, a)
	}
}

func (h Hooks) onFailure(ctx context.Context, s registry.Step, err *StepError) {
	if h.OnFailure != nil {
		h.OnFailure(ctx, s, err)
	}
}
