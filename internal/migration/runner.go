// Package migration applies pending upgrade steps to a database. Steps run
// strictly in ascending version order; statements autocommit one by one
// and the installed version is checkpointed after every completed step,
// so an interrupted run resumes at the first incomplete step.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/sqlupgrade/internal/common"
	"github.com/loykin/sqlupgrade/internal/registry"
	"github.com/loykin/sqlupgrade/internal/retry"
	"github.com/loykin/sqlupgrade/internal/script"
	"github.com/loykin/sqlupgrade/internal/store"
	"github.com/loykin/sqlupgrade/internal/util"
	"github.com/loykin/sqlupgrade/internal/version"
)

// Execer runs a single statement. *sql.DB, *sql.Conn and *sql.Tx qualify.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// VersionStore persists the installed version and the run history.
type VersionStore interface {
	InstalledVersion() (version.Version, error)
	SetInstalledVersion(v version.Version) error
	RecordRun(run store.Run) error
}

type Runner struct {
	Registry *registry.Registry
	Loader   *script.Loader
	DB       Execer
	Store    VersionStore
	Hooks    Hooks
	// Retry governs checkpoint writes. Nil uses retry.DefaultRetryConfig.
	Retry *retry.Config
	// Target, when set, is the highest version to apply.
	Target version.Version
	// DryRun loads and splits scripts but executes and records nothing.
	DryRun bool
}

// Up reads the installed version from the store and applies what is pending.
func (r *Runner) Up(ctx context.Context) (*Result, error) {
	if r.Store == nil {
		return nil, errors.New("runner has no version store")
	}
	current, err := r.Store.InstalledVersion()
	if err != nil {
		return nil, fmt.Errorf("read installed version: %w", err)
	}
	return r.ApplyPending(ctx, current)
}

// Plan returns the steps ApplyPending would run from current.
func (r *Runner) Plan(current version.Version) []registry.Step {
	if r.Registry == nil {
		return []registry.Step{}
	}
	return r.Registry.Pending(current, r.Target)
}

// ApplyPending runs every registered step newer than current, in order.
// On failure it stops at the failing step and returns its *StepError;
// the installed version is left at the last completed step.
func (r *Runner) ApplyPending(ctx context.Context, current version.Version) (*Result, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	logger := common.GetLogger().WithComponent("migration")

	plan := r.Plan(current)
	res := &Result{
		Plan:         plan,
		State:        StatePending,
		DryRun:       r.DryRun,
		Applied:      make([]AppliedStep, 0, len(plan)),
		StartVersion: current,
		FinalVersion: current,
	}
	if len(plan) == 0 {
		logger.Info("schema is up to date", "installed", current.String())
		res.State = StateSucceeded
		return res, nil
	}
	logger.Info("applying pending upgrades", "installed", current.String(), "pending", len(plan), "dry_run", r.DryRun)

	for i, step := range plan {
		res.start(i)
		applied, serr := r.runStep(ctx, step)
		if serr != nil {
			res.fail(step, serr)
			r.Hooks.onFailure(ctx, step, serr)
			logger.Error("upgrade stopped", "failed_version", step.Version.String(), "installed", res.FinalVersion.String(), "error", serr)
			return res, serr
		}
		res.Applied = append(res.Applied, applied)
		if !r.DryRun {
			res.FinalVersion = step.Version
		}
		r.Hooks.afterStep(ctx, step, applied)
	}

	res.State = StateSucceeded
	logger.Info("upgrade complete", "installed", res.FinalVersion.String(), "applied", len(res.Applied))
	return res, nil
}

func (r *Runner) check() error {
	if r.Registry == nil {
		return errors.New("runner has no registry")
	}
	if r.Loader == nil {
		return errors.New("runner has no script loader")
	}
	if r.DryRun {
		return nil
	}
	if r.DB == nil {
		return errors.New("runner has no database")
	}
	if r.Store == nil {
		return errors.New("runner has no version store")
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step registry.Step) (AppliedStep, *StepError) {
	logger := common.GetLogger().WithComponent("migration").WithVersion(step.Version.String())
	r.Hooks.beforeStep(ctx, step)
	started := time.Now()

	stmts, err := r.Loader.Load(step.Script)
	if err != nil {
		serr := &StepError{Version: step.Version, StatementIndex: NoStatement, Kind: ErrScriptNotFound, Err: err}
		r.record(step, 0, started, serr)
		return AppliedStep{}, serr
	}
	logger.Info("running upgrade step", "script", step.Script, "statements", len(stmts))

	for _, st := range stmts {
		r.Hooks.beforeStatement(ctx, step, st)
		if r.DryRun {
			logger.Info("dry run statement", "index", st.Index, "line", st.Line, "sql", util.Truncate(st.SQL, 200))
			continue
		}
		logger.Debug("executing statement", "index", st.Index, "line", st.Line, "sql", util.Truncate(st.SQL, 200))
		if _, err := r.DB.ExecContext(ctx, st.SQL); err != nil {
			serr := &StepError{
				Version:        step.Version,
				StatementIndex: st.Index,
				Statement:      st.SQL,
				Kind:           classifyExecError(err),
				Err:            err,
			}
			r.record(step, len(stmts), started, serr)
			return AppliedStep{}, serr
		}
	}

	applied := AppliedStep{Version: step.Version, Script: step.Script, Statements: len(stmts)}
	if r.DryRun {
		applied.Duration = time.Since(started)
		return applied, nil
	}

	err = retry.WithRetry(ctx, r.retryConfig(), func() error {
		return r.Store.SetInstalledVersion(step.Version)
	})
	if err != nil {
		serr := &StepError{Version: step.Version, StatementIndex: NoStatement, Kind: ErrVersionPersistence, Err: err}
		r.record(step, len(stmts), started, serr)
		return AppliedStep{}, serr
	}
	applied.Duration = time.Since(started)
	r.record(step, len(stmts), started, nil)
	logger.Info("upgrade step applied", "statements", len(stmts), "duration", applied.Duration)
	return applied, nil
}

func (r *Runner) retryConfig() *retry.Config {
	if r.Retry != nil {
		return r.Retry
	}
	return retry.DefaultRetryConfig()
}

// record appends to the run history. History is informational, so a
// failed write is logged and otherwise ignored.
func (r *Runner) record(step registry.Step, statements int, started time.Time, serr *StepError) {
	if r.DryRun || r.Store == nil {
		return
	}
	run := store.Run{
		Version:         step.Version.String(),
		Statements:      statements,
		FailedStatement: NoStatement,
		DurationMS:      time.Since(started).Milliseconds(),
	}
	if serr != nil {
		msg := serr.Error()
		run.Failed = true
		run.FailedStatement = serr.StatementIndex
		run.Error = &msg
	}
	if err := r.Store.RecordRun(run); err != nil {
		common.GetLogger().WithComponent("migration").Warn("failed to record run history", "version", run.Version, "error", err)
	}
}
