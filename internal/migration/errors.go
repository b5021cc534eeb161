package migration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/loykin/sqlupgrade/internal/registry"
	"github.com/loykin/sqlupgrade/internal/util"
	"github.com/loykin/sqlupgrade/internal/version"
)

// Failure kinds. A *StepError matches exactly one of these with errors.Is.
var (
	ErrScriptNotFound     = errors.New("script not found")
	ErrStatementSyntax    = errors.New("statement syntax error")
	ErrExecution          = errors.New("statement execution failed")
	ErrVersionPersistence = errors.New("version persistence failed")
)

// ErrRegistryOrdering is reported when building a registry, never during a run.
var ErrRegistryOrdering = registry.ErrOrderingViolation

// pgSyntaxError is SQLSTATE syntax_error.
const pgSyntaxError = "42601"

// NoStatement marks a failure that is not tied to a statement.
const NoStatement = -1

// StepError describes where an upgrade run stopped.
type StepError struct {
	Version version.Version
	// StatementIndex is zero-based, or NoStatement for load and checkpoint failures.
	StatementIndex int
	Statement      string
	Kind           error
	Err            error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "upgrade to %s failed: %v", e.Version, e.Kind)
	if e.StatementIndex != NoStatement {
		fmt.Fprintf(&b, " at statement %d (%s)", e.StatementIndex, util.Truncate(e.Statement, 120))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying driver error.
func (e *StepError) Unwrap() []error {
	out := []error{e.Kind}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// AsStepError extracts a *StepError from err.
func AsStepError(err error) (*StepError, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// syntaxMessages are lower-cased driver messages reporting malformed SQL.
var syntaxMessages = []string{
	"syntax error",
	"error in your sql syntax",
	"unrecognized token", // sqlite
	"incomplete input",   // sqlite
}

// classifyExecError decides between ErrStatementSyntax and ErrExecution.
func classifyExecError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgSyntaxError {
			return ErrStatementSyntax
		}
		return ErrExecution
	}
	msg := strings.ToLower(err.Error())
	for _, m := range syntaxMessages {
		if strings.Contains(msg, m) {
			return ErrStatementSyntax
		}
	}
	return ErrExecution
}
