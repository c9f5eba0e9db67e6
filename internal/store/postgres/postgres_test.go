package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/switchboard/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var leafColumns = []string{"path", "value"}

func TestGet_AssemblesSubtree(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectQuery("SELECT path, value\\s+FROM nodes WHERE path = \\$1 OR starts_with\\(path, \\$2\\)").
		WithArgs("switches/login", "switches/login/").
		WillReturnRows(sqlmock.NewRows(leafColumns).
			AddRow("switches/login/1_0/mode", []byte(`"RESTRICTED"`)).
			AddRow("switches/login/1_0/basedOn", []byte(`"Responsibility"`)).
			AddRow("switches/login/2_0/mode", []byte(`"OPEN"`)))

	got, err := s.Get(context.Background(), "switches/login")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := `{"1_0":{"basedOn":"Responsibility","mode":"RESTRICTED"},"2_0":{"mode":"OPEN"}}`
	if string(got) != want {
		t.Errorf("Get = %s, want %s", got, want)
	}
}

func TestGet_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectQuery("SELECT path, value").
		WithArgs("switches/unknown", "switches/unknown/").
		WillReturnRows(sqlmock.NewRows(leafColumns))

	if _, err := s.Get(context.Background(), "switches/unknown"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestGet_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectQuery("SELECT path, value").WillReturnError(errors.New("connection reset"))

	_, err := s.Get(context.Background(), "defects")
	if err == nil || errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get error = %v, want query error", err)
	}
}

func TestPut_ReplacesSubtreeInTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock\\(hashtext\\(\\$1\\)\\)").
		WithArgs("switches").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM nodes\\s+WHERE path = \\$1 OR starts_with\\(path, \\$2\\) OR path = ANY\\(\\$3\\)").
		WithArgs("switches/login/1_0", "switches/login/1_0/", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO nodes").
		WithArgs("switches/login/1_0/accessControl", []byte(`""`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO nodes").
		WithArgs("switches/login/1_0/basedOn", []byte(`"Responsibility"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO nodes").
		WithArgs("switches/login/1_0/mode", []byte(`"OPEN"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Put(context.Background(), "switches/login/1_0",
		json.RawMessage(`{"mode":"OPEN","basedOn":"Responsibility","accessControl":""}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestPut_InsertErrorRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs("defects").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM nodes").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO nodes").
		WithArgs("defects", []byte(`[]`)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := s.Put(context.Background(), "defects", json.RawMessage(`[]`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestPut_InvalidJSONTouchesNothing(t *testing.T) {
	db, _ := newMockDB(t)
	s := &PostgresStore{db: db}

	// No expectations: an unexpected query would fail the test.
	if err := s.Put(context.Background(), "defects", json.RawMessage(`[1,`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestCreate_Exists(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs("switches").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("switches/login/1_0", "switches/login/1_0/").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := s.Create(context.Background(), "switches/login/1_0", json.RawMessage(`{"mode":"OPEN"}`))
	if !errors.Is(err, store.ErrExists) {
		t.Fatalf("Create error = %v, want ErrExists", err)
	}
}

func TestCreate_Inserts(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs("switches").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("switches/login/1_0", "switches/login/1_0/").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("DELETE FROM nodes").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO nodes").
		WithArgs("switches/login/1_0/mode", []byte(`"RESTRICTED"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Create(context.Background(), "switches/login/1_0", json.RawMessage(`{"mode":"RESTRICTED"}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestBeginError(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	if err := s.Put(context.Background(), "defects", json.RawMessage(`[]`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestScanLeaves(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(leafColumns).
		AddRow("defects", []byte(`[{"date":"2024-01-01","defects":[]}]`)))

	rows, err := db.Query("SELECT path, value FROM nodes")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	leaves, err := scanLeaves(rows)
	if err != nil {
		t.Fatalf("scanLeaves: %v", err)
	}
	if string(leaves["defects"]) != `[{"date":"2024-01-01","defects":[]}]` {
		t.Errorf("leaves = %v", leaves)
	}
}
