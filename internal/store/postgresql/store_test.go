package postgresql

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/loykin/sqlupgrade/internal/store/connector"
)

var testTables = connector.TableNames{SchemaVersion: "schema_version", MigrationRuns: "migration_runs", Lock: "schema_lock"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := NewStore()
	s.Attach(db)
	return s, mock
}

func TestStore_Load(t *testing.T) {
	s := NewStore()
	if err := s.Load(map[string]interface{}{"host": "localhost", "user": "u", "password": "p", "dbname": "d"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DSN != "postgres://u:p@localhost:5432/d?sslmode=disable" {
		t.Errorf("DSN = %q", s.DSN)
	}
	if err := NewStore().Load(map[string]interface{}{"port": "not-a-number"}); err == nil {
		t.Errorf("expected decode error")
	}
	if err := NewStore().Validate(); err == nil {
		t.Errorf("Validate without dsn should fail")
	}
}

func TestStore_Ensure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_version")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS migration_runs")).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.Ensure(testTables); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_InstalledVersion(t *testing.T) {
	s, mock := newMockStore(t)
	q := regexp.QuoteMeta("SELECT version FROM schema_version WHERE id = 1")

	mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows([]string{"version"}))
	v, err := s.InstalledVersion(testTables)
	if err != nil || v != "" {
		t.Fatalf("empty table => %q,%v", v, err)
	}

	mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("1.7.8"))
	v, err = s.InstalledVersion(testTables)
	if err != nil || v != "1.7.8" {
		t.Fatalf("InstalledVersion => %q,%v", v, err)
	}
}

func TestStore_SetInstalledVersion(t *testing.T) {
	s, mock := newMockStore(t)
	q := regexp.QuoteMeta("INSERT INTO schema_version(id, version, updated_at) VALUES(1, $1, $2)")
	mock.ExpectExec(q).WithArgs("2.0.20", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.SetInstalledVersion(testTables, "2.0.20"); err != nil {
		t.Fatalf("SetInstalledVersion: %v", err)
	}

	boom := errors.New("connection reset")
	mock.ExpectExec(q).WillReturnError(boom)
	if err := s.SetInstalledVersion(testTables, "2.0.21"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestStore_RecordAndListRuns(t *testing.T) {
	s, mock := newMockStore(t)
	msg := "boom"
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO migration_runs(version, statements, failed, failed_statement, error, duration_ms, ran_at) VALUES($1,$2,$3,$4,$5,$6,$7)")).
		WithArgs("2.0", 3, true, 1, &msg, int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := s.RecordRun(testTables, connector.Run{Version: "2.0", Statements: 3, Failed: true, FailedStatement: 1, Error: &msg, DurationMS: 7}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	ranAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "version", "statements", "failed", "failed_statement", "error", "duration_ms", "ran_at"}).
		AddRow(int64(2), "2.0", 3, true, 1, "boom", int64(7), ranAt).
		AddRow(int64(1), "1.0", 1, false, -1, nil, int64(2), ranAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM migration_runs ORDER BY id DESC LIMIT $1")).WithArgs(5).WillReturnRows(rows)

	runs, err := s.ListRuns(testTables, 5)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d", len(runs))
	}
	if !runs[0].Failed || runs[0].Error == nil || *runs[0].Error != "boom" || runs[0].RanAt != "2024-01-01T00:00:00Z" {
		t.Errorf("unexpected run: %+v", runs[0])
	}
	if runs[1].Failed || runs[1].Error != nil || runs[1].FailedStatement != -1 {
		t.Errorf("unexpected run: %+v", runs[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
