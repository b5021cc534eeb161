package sqlite

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/loykin/sqlupgrade/internal/store/connector"
)

func TestDialect_GetPlaceholder(t *testing.T) {
	if got := NewDialect().GetPlaceholder(); got != "?" {
		t.Errorf("GetPlaceholder() = %v, want ?", got)
	}
}

func TestDialect_ConvertBool(t *testing.T) {
	d := NewDialect()
	tests := []struct {
		name  string
		input bool
		want  interface{}
	}{
		{name: "true value", input: true, want: 1},
		{name: "false value", input: false, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.ConvertBoolToStorage(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ConvertBoolToStorage() = %v, want %v", got, tt.want)
			}
		})
	}

	fromTests := []struct {
		name  string
		input interface{}
		want  bool
	}{
		{"int64 one", int64(1), true},
		{"int64 zero", int64(0), false},
		{"int one", 1, true},
		{"string", "1", false},
		{"nil", nil, false},
	}
	for _, tt := range fromTests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.ConvertBoolFromStorage(tt.input); got != tt.want {
				t.Errorf("ConvertBoolFromStorage(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDialect_ConvertTime(t *testing.T) {
	d := NewDialect()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6, time.FixedZone("KST", 9*3600))
	got := d.ConvertTimeToStorage(ts)
	want := "2024-01-01T18:04:05.000000006Z"
	if got != want {
		t.Errorf("ConvertTimeToStorage() = %v, want %v", got, want)
	}
	if s := d.ConvertTimeFromStorage(want); s != want {
		t.Errorf("ConvertTimeFromStorage() = %v", s)
	}
	if s := d.ConvertTimeFromStorage(42); s != "" {
		t.Errorf("ConvertTimeFromStorage(int) = %q, want empty", s)
	}
}

func TestDialect_GetEnsureStatements(t *testing.T) {
	th := connector.TableNames{SchemaVersion: "app_schema_version", MigrationRuns: "app_migration_runs"}
	stmts := NewDialect().GetEnsureStatements(th)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0], "CREATE TABLE IF NOT EXISTS app_schema_version") || !strings.Contains(stmts[0], "CHECK (id = 1)") {
		t.Errorf("unexpected schema_version DDL: %s", stmts[0])
	}
	if !strings.Contains(stmts[1], "CREATE TABLE IF NOT EXISTS app_migration_runs") || !strings.Contains(stmts[1], "AUTOINCREMENT") {
		t.Errorf("unexpected migration_runs DDL: %s", stmts[1])
	}
}

func TestDialect_GetUpsertVersionQuery(t *testing.T) {
	q := NewDialect().GetUpsertVersionQuery("schema_version")
	if !strings.Contains(q, "ON CONFLICT(id) DO UPDATE SET version = excluded.version") {
		t.Errorf("unexpected upsert: %s", q)
	}
}

func TestDialect_GetDriverName(t *testing.T) {
	if got := NewDialect().GetDriverName(); got != "sqlite" {
		t.Errorf("GetDriverName() = %v, want sqlite", got)
	}
}
