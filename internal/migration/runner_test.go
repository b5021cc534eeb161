package migration

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/loykin/sqlupgrade/internal/registry"
	"github.com/loykin/sqlupgrade/internal/retry"
	"github.com/loykin/sqlupgrade/internal/script"
	"github.com/loykin/sqlupgrade/internal/store"
	"github.com/loykin/sqlupgrade/internal/version"
	_ "modernc.org/sqlite"
)

// memStore is an in-memory VersionStore with failure injection.
type memStore struct {
	v       version.Version
	setErrs []error
	writes  []string
	runs    []store.Run
}

func (m *memStore) InstalledVersion() (version.Version, error) { return m.v, nil }

func (m *memStore) SetInstalledVersion(v version.Version) error {
	if len(m.setErrs) > 0 {
		err := m.setErrs[0]
		m.setErrs = m.setErrs[1:]
		if err != nil {
			return err
		}
	}
	m.v = v
	m.writes = append(m.writes, v.String())
	return nil
}

func (m *memStore) RecordRun(run store.Run) error {
	m.runs = append(m.runs, run)
	return nil
}

func newRegistry(t *testing.T, versions ...string) *registry.Registry {
	t.Helper()
	r := registry.New()
	for _, v := range versions {
		if err := r.Register(v, ""); err != nil {
			t.Fatalf("Register(%s): %v", v, err)
		}
	}
	return r
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func stepVersions(steps []registry.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Version.String()
	}
	return out
}

func TestApplyPending_NumericOrderRegardlessOfRegistration(t *testing.T) {
	db, mock := newMock(t)
	src := script.MapSource{
		"1.9.0":  "UPDATE t SET v = 9;",
		"1.10.0": "UPDATE t SET v = 10;",
		"2.0":    "UPDATE t SET v = 20;",
	}
	reg := newRegistry(t, "2.0", "1.10.0", "1.9.0")
	mock.ExpectExec(regexp.QuoteMeta("UPDATE t SET v = 9")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE t SET v = 10")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE t SET v = 20")).WillReturnResult(sqlmock.NewResult(0, 1))

	st := &memStore{}
	r := &Runner{Registry: reg, Loader: script.NewLoader(src, script.DialectGeneric), DB: db, Store: st}
	res, err := r.ApplyPending(context.Background(), version.Zero)
	if err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	if res.State != StateSucceeded {
		t.Fatalf("state = %s", res.State)
	}
	if got := strings.Join(st.writes, ","); got != "1.9.0,1.10.0,2.0" {
		t.Fatalf("checkpoints = %s", got)
	}
	if res.FinalVersion.String() != "2.0" {
		t.Errorf("FinalVersion = %s", res.FinalVersion)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyPending_FreshInstallTwoSteps(t *testing.T) {
	db, mock := newMock(t)
	src := script.MapSource{
		"1.0": "CREATE TABLE a (id INT);",
		"1.1": "ALTER TABLE a ADD COLUMN name TEXT;\nCREATE TABLE b (id INT);",
	}
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a (id INT)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE a ADD COLUMN name TEXT")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id INT)")).WillReturnResult(sqlmock.NewResult(0, 0))

	st := &memStore{}
	r := &Runner{Registry: newRegistry(t, "1.0", "1.1"), Loader: script.NewLoader(src, script.DialectGeneric), DB: db, Store: st}
	res, err := r.ApplyPending(context.Background(), version.Zero)
	if err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	if len(res.Applied) != 2 {
		t.Fatalf("applied = %d, want 2", len(res.Applied))
	}
	if res.Applied[0].Statements != 1 || res.Applied[1].Statements != 2 {
		t.Errorf("statement counts = %d, %d", res.Applied[0].Statements, res.Applied[1].Statements)
	}
	if st.v.String() != "1.1" || res.FinalVersion.String() != "1.1" {
		t.Errorf("installed = %s, final = %s", st.v, res.FinalVersion)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyPending_NothingPendingIsNoOp(t *testing.T) {
	db, mock := newMock(t)
	st := &memStore{v: version.MustParse("2.0")}
	r := &Runner{Registry: newRegistry(t, "1.0", "2.0"), Loader: script.NewLoader(script.MapSource{}, ""), DB: db, Store: st}

	res, err := r.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if !res.NoOp() || res.State != StateSucceeded {
		t.Fatalf("expected no-op success, got %+v", res)
	}
	if len(st.writes) != 0 || len(st.runs) != 0 {
		t.Errorf("store touched on no-op: writes=%v runs=%v", st.writes, st.runs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyPending_EmptyScriptAdvancesWithoutExec(t *testing.T) {
	db, mock := newMock(t)
	src := script.MapSource{"1.3.8.0": "-- nothing to do in this release\n/* really */\n;;\n"}
	st := &memStore{}
	r := &Runner{Registry: newRegistry(t, "1.3.8.0"), Loader: script.NewLoader(src, script.DialectMySQL), DB: db, Store: st}

	res, err := r.ApplyPending(context.Background(), version.Zero)
	if err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	if res.FinalVersion.String() != "1.3.8.0" || len(res.Applied) != 1 || res.Applied[0].Statements != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if st.v.String() != "1.3.8.0" {
		t.Fatalf("installed = %s", st.v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyPending_CommentWithDelimiterInside(t *testing.T) {
	db, mock := newMock(t)
	src := script.MapSource{"1.0": "UPDATE a SET x=1; -- comment with ; inside\nUPDATE b SET y=2;"}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE a SET x=1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE b SET y=2")).WillReturnResult(sqlmock.NewResult(0, 1))

	st := &memStore{}
	r := &Runner{Registry: newRegistry(t, "1.0"), Loader: script.NewLoader(src, script.DialectMySQL), DB: db, Store: st}
	res, err := r.ApplyPending(context.Background(), version.Zero)
	if err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	if res.Applied[0].Statements != 2 {
		t.Errorf("statements = %d, want 2", res.Applied[0].Statements)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyPending_ScriptNotFound(t *testing.T) {
	db, mock := newMock(t)
	st := &memStore{v: version.MustParse("1.0")}
	r := &Runner{Registry: newRegistry(t, "1.0", "1.1"), Loader: script.NewLoader(script.MapSource{}, ""), DB: db, Store: st}

	res, err := r.Up(context.Background())
	if !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("err = %v, want ErrScriptNotFound", err)
	}
	if !errors.Is(err, script.ErrNotFound) {
		t.Errorf("underlying loader error should be reachable: %v", err)
	}
	se, ok := AsStepError(err)
	if !ok || se.StatementIndex != NoStatement || se.Version.String() != "1.1" {
		t.Fatalf("unexpected step error: %+v", se)
	}
	if res.State != StateFailed || res.FailedStep == nil || res.FailedStep.Version.String() != "1.1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if st.v.String() != "1.0" {
		t.Errorf("installed moved to %s", st.v)
	}
	if len(st.runs) != 1 || !st.runs[0].Failed {
		t.Errorf("expected one failed run, got %+v", st.runs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyPending_ExecutionErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		driveErr error
		want     error
	}{
		{"postgres syntax", &pgconn.PgError{Code: "42601", Message: "syntax error at or near \"SELEC\""}, ErrStatementSyntax},
		{"postgres unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, ErrExecution},
		{"sqlite syntax", errors.New(`SQL logic error: near "SELEC": syntax error (1)`), ErrStatementSyntax},
		{"sqlite unrecognized token", errors.New(`SQL logic error: unrecognized token: "'b" (1)`), ErrStatementSyntax},
		{"sqlite incomplete input", errors.New("SQL logic error: incomplete input (1)"), ErrStatementSyntax},
		{"mysql syntax", errors.New("Error 1064: You have an error in your SQL syntax"), ErrStatementSyntax},
		{"generic", errors.New("no such table: campaign"), ErrExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			src := script.MapSource{"2.0.20": "UPDATE ok SET a = 1;\nSELEC broken;\nUPDATE never SET b = 2;"}
			mock.ExpectExec(regexp.QuoteMeta("UPDATE ok SET a = 1")).WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec(regexp.QuoteMeta("SELEC broken")).WillReturnError(tt.driveErr)

			st := &memStore{v: version.MustParse("1.7.8")}
			r := &Runner{Registry: newRegistry(t, "1.7.8", "2.0.20"), Loader: script.NewLoader(src, ""), DB: db, Store: st}
			_, err := r.Up(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want kind %v", err, tt.want)
			}
			if !errors.Is(err, tt.driveErr) {
				t.Errorf("driver error not wrapped: %v", err)
			}
			se, _ := AsStepError(err)
			if se.StatementIndex != 1 || se.Statement != "SELEC broken" || se.Version.String() != "2.0.20" {
				t.Errorf("unexpected step error: %+v", se)
			}
			if st.v.String() != "1.7.8" {
				t.Errorf("installed moved to %s", st.v)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestApplyPending_CheckpointFailure(t *testing.T) {
	db, mock := newMock(t)
	src := script.MapSource{"1.0": "UPDATE a SET x = 1;", "1.1": "UPDATE b SET y = 1;"}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE a SET x = 1")).WillReturnResult(sqlmock.NewResult(0, 1))

	diskErr := errors.New("disk I/O error")
	st := &memStore{setErrs: []error{diskErr}}
	r := &Runner{Registry: newRegistry(t, "1.0", "1.1"), Loader: script.NewLoader(src, ""), DB: db, Store: st, Retry: retry.NoRetry()}

	res, err := r.ApplyPending(context.Background(), version.Zero)
	if !errors.Is(err, ErrVersionPersistence) || !errors.Is(err, diskErr) {
		t.Fatalf("err = %v", err)
	}
	if !res.FinalVersion.IsZero() || len(res.Applied) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := stepVersions(res.Remaining()); strings.Join(got, ",") != "1.0,1.1" {
		t.Errorf("Remaining = %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyPending_CheckpointRetried(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE a SET x = 1")).WillReturnResult(sqlmock.NewResult(0, 1))

	locked := errors.New("database is locked")
	st := &memStore{setErrs: []error{locked, locked}}
	cfg := retry.DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	r := &Runner{
		Registry: newRegistry(t, "1.0"),
		Loader:   script.NewLoader(script.MapSource{"1.0": "UPDATE a SET x = 1"}, ""),
		DB:       db,
		Store:    st,
		Retry:    cfg,
	}
	res, err := r.ApplyPending(context.Background(), version.Zero)
	if err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	if res.FinalVersion.String() != "1.0" || len(st.writes) != 1 {
		t.Fatalf("result %+v writes %v", res, st.writes)
	}
}

func TestApplyPending_Target(t *testing.T) {
	db, mock := newMock(t)
	src := script.MapSource{"1.0": "SELECT 1", "1.5": "SELECT 15", "2.0": "SELECT 2"}
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT 15").WillReturnResult(sqlmock.NewResult(0, 0))

	st := &memStore{}
	r := &Runner{Registry: newRegistry(t, "1.0", "1.5", "2.0"), Loader: script.NewLoader(src, ""), DB: db, Store: st, Target: version.MustParse("1.5")}
	res, err := r.ApplyPending(context.Background(), version.Zero)
	if err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	if res.FinalVersion.String() != "1.5" {
		t.Errorf("FinalVersion = %s", res.FinalVersion)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyPending_DryRun(t *testing.T) {
	src := script.MapSource{"1.0": "CREATE TABLE a(x INT); INSERT INTO a VALUES(1);", "1.1": ""}
	st := &memStore{}
	var seen []string
	r := &Runner{
		Registry: newRegistry(t, "1.0", "1.1"),
		Loader:   script.NewLoader(src, ""),
		Store:    st,
		DryRun:   true,
		Hooks: Hooks{BeforeStatement: func(_ context.Context, _ registry.Step, s script.Statement) {
			seen = append(seen, s.SQL)
		}},
	}
	res, err := r.ApplyPending(context.Background(), version.Zero)
	if err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	if !res.DryRun || len(res.Applied) != 2 || !res.FinalVersion.IsZero() {
		t.Fatalf("unexpected dry run result: %+v", res)
	}
	if len(seen) != 2 {
		t.Errorf("statements seen = %v", seen)
	}
	if len(st.writes) != 0 || len(st.runs) != 0 {
		t.Errorf("dry run wrote to store: %v %v", st.writes, st.runs)
	}
}

func TestApplyPending_Hooks(t *testing.T) {
	db, mock := newMock(t)
	src := script.MapSource{"1.0": "SELECT 1", "1.1": "SELECT bad"}
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT bad").WillReturnError(errors.New("boom"))

	var events []string
	r := &Runner{
		Registry: newRegistry(t, "1.0", "1.1"),
		Loader:   script.NewLoader(src, ""),
		DB:       db,
		Store:    &memStore{},
		Hooks: Hooks{
			BeforeStep: func(_ context.Context, s registry.Step) { events = append(events, "before "+s.Version.String()) },
			AfterStep: func(_ context.Context, s registry.Step, a AppliedStep) {
				events = append(events, "after "+a.Version.String())
			},
			OnFailure: func(_ context.Context, s registry.Step, err *StepError) {
				events = append(events, "fail "+s.Version.String()+" "+err.Kind.Error())
			},
		},
	}
	if _, err := r.ApplyPending(context.Background(), version.Zero); err == nil {
		t.Fatal("expected failure")
	}
	want := "before 1.0|after 1.0|before 1.1|fail 1.1 statement execution failed"
	if got := strings.Join(events, "|"); got != want {
		t.Errorf("events = %s\nwant     %s", got, want)
	}
}

func TestRunner_MissingDependencies(t *testing.T) {
	if _, err := (&Runner{}).ApplyPending(context.Background(), version.Zero); err == nil {
		t.Error("expected error without registry")
	}
	r := &Runner{Registry: registry.New(), Loader: script.NewLoader(script.MapSource{}, "")}
	if _, err := r.ApplyPending(context.Background(), version.Zero); err == nil {
		t.Error("expected error without database")
	}
	if _, err := r.Up(context.Background()); err == nil {
		t.Error("expected error without store")
	}
}

func TestStepError_Message(t *testing.T) {
	se := &StepError{Version: version.MustParse("2.0.20"), StatementIndex: 3, Statement: "ALTER TABLE x", Kind: ErrExecution, Err: errors.New("denied")}
	want := "upgrade to 2.0.20 failed: statement execution failed at statement 3 (ALTER TABLE x): denied"
	if se.Error() != want {
		t.Errorf("Error() = %q", se.Error())
	}
	se = &StepError{Version: version.MustParse("1.0"), StatementIndex: NoStatement, Kind: ErrVersionPersistence}
	if se.Error() != "upgrade to 1.0 failed: version persistence failed" {
		t.Errorf("Error() = %q", se.Error())
	}
	if !errors.Is(se, ErrVersionPersistence) || errors.Is(se, ErrExecution) {
		t.Errorf("kind matching is wrong")
	}
}

func TestValidate(t *testing.T) {
	src := script.MapSource{"1.0": "SELECT 1; SELECT 2;", "1.2": "-- empty"}
	r := &Runner{Registry: newRegistry(t, "1.0", "1.1", "1.2", "1.3"), Loader: script.NewLoader(src, "")}
	reports, err := r.Validate()
	if err == nil {
		t.Fatal("expected missing scripts to be reported")
	}
	if !errors.Is(err, ErrScriptNotFound) || !strings.Contains(err.Error(), "2 errors occurred") {
		t.Errorf("unexpected error: %v", err)
	}
	if len(reports) != 2 || reports[0].Statements != 2 || reports[1].Statements != 0 {
		t.Errorf("reports = %+v", reports)
	}
}

// resumability against a real database: a failing step leaves the
// installed version at the last completed step and a rerun picks up there.
func TestResumeAfterFailure_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	st, err := store.FromDB(store.DriverSqlite, db, store.TableNames{})
	if err != nil {
		t.Fatalf("FromDB: %v", err)
	}

	src := script.MapSource{
		"1.3.8.0": "CREATE TABLE `mw_campaign` (id INTEGER PRIMARY KEY, name TEXT);",
		"1.7.8":   "ALTER TABLE `mw_campaign` ADD COLUMN status TEXT DEFAULT 'draft';\n-- seed; with a delimiter in a comment\nINSERT INTO `mw_campaign`(name) VALUES ('a;b');",
		"2.0.20":  "UPDATE `mw_campaign` SET status = 'sent';\nSELEC oops;",
	}
	loader := script.NewLoader(src, script.DialectSQLite)
	loader.Rewrite = script.PrefixRewrite{From: "mw_", To: "app_"}
	r := &Runner{
		Registry: newRegistry(t, "2.0.20", "1.7.8", "1.3.8.0"),
		Loader:   loader,
		DB:       db,
		Store:    st,
		Retry:    retry.NoRetry(),
	}

	res, err := r.Up(ctx)
	if !errors.Is(err, ErrStatementSyntax) {
		t.Fatalf("err = %v, want syntax error", err)
	}
	se, _ := AsStepError(err)
	if se.Version.String() != "2.0.20" || se.StatementIndex != 1 {
		t.Fatalf("unexpected step error: %+v", se)
	}
	if res.FinalVersion.String() != "1.7.8" {
		t.Fatalf("FinalVersion = %s", res.FinalVersion)
	}
	installed, err := st.InstalledVersion()
	if err != nil || installed.String() != "1.7.8" {
		t.Fatalf("installed = %v, %v", installed, err)
	}
	if got := stepVersions(r.Plan(installed)); strings.Join(got, ",") != "2.0.20" {
		t.Fatalf("pending after failure = %v", got)
	}

	var name string
	if err := db.QueryRow("SELECT name FROM app_campaign").Scan(&name); err != nil || name != "a;b" {
		t.Fatalf("seed row = %q, %v", name, err)
	}

	// fix the script and resume
	src["2.0.20"] = "UPDATE `mw_campaign` SET status = 'sent';"
	res, err = r.Up(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := stepVersions(res.Plan); strings.Join(got, ",") != "2.0.20" {
		t.Fatalf("resumed plan = %v", got)
	}
	var status string
	if err := db.QueryRow("SELECT status FROM app_campaign").Scan(&status); err != nil || status != "sent" {
		t.Fatalf("status = %q, %v", status, err)
	}

	// a second run is a no-op
	res, err = r.Up(ctx)
	if err != nil || !res.NoOp() {
		t.Fatalf("second run: %+v, %v", res, err)
	}

	runs, err := st.ListRuns(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 4 {
		t.Fatalf("runs = %d, want 4", len(runs))
	}
	if !runs[1].Failed || runs[1].Version != "2.0.20" || runs[1].FailedStatement != 1 {
		t.Errorf("failed run not recorded: %+v", runs[1])
	}
}
