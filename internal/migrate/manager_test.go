package migrate

import (
	"context"
	"errors"
	"io/fs"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func testFiles() fstest.MapFS {
	return fstest.MapFS{
		"sql/0001_a.up.sql":   {Data: []byte("create table a (id text);\n")},
		"sql/0001_a.down.sql": {Data: []byte("drop table a;\n")},
		"sql/0002_b.up.sql":   {Data: []byte("-- second\ncreate table b (id text);\ncreate index b_idx on b (id);\n")},
		"seeds/0001_demo.sql": {Data: []byte("insert into a (id) values ('x;y');\n")},
	}
}

func expectEnsure(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table b (id text);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("create index b_idx on b (id);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_b.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := NewManager(db, testFiles()).Up(context.Background())
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0002_b.up.sql" {
		t.Fatalf("applied = %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table a").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	applied, err := NewManager(db, testFiles()).Up(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(applied) != 0 {
		t.Fatalf("applied = %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations order by applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("drop table a;")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("delete from schema_migrations").WithArgs("0001_a.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))

	name, err := NewManager(db, testFiles()).Down(context.Background())
	if err != nil {
		t.Fatalf("down: %v", err)
	}
	if name != "0001_a.up.sql" {
		t.Fatalf("rolled back %q", name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if _, err := NewManager(db, testFiles()).Down(context.Background()); !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("expected ErrNothingApplied, got %v", err)
	}
}

func TestSeedKeepsQuotedSemicolons(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_seeds").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into a (id) values ('x;y');")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_seeds").WithArgs("0001_demo.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewManager(db, testFiles()).Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("-- header\ncreate table x (v text default 'a;b');\n\n  -- note\ninsert into x values ('it''s');\nselect 1")
	want := []string{
		"create table x (v text default 'a;b');",
		"insert into x values ('it''s');",
		"select 1",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d statements: %q", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statement %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEmbeddedMigrationsPair(t *testing.T) {
	ups, err := collectSQL(Embedded(), migrationsDir, ".up.sql")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no embedded migrations")
	}
	for _, up := range ups {
		down := up.Path[:len(up.Path)-len(".up.sql")] + ".down.sql"
		if _, err := fs.Stat(Embedded(), down); err != nil {
			t.Fatalf("%s has no down migration", up.Base)
		}
	}
	seeds, err := collectSQL(Embedded(), seedsDir, ".sql")
	if err != nil || len(seeds) == 0 {
		t.Fatalf("seeds: %v (%d)", err, len(seeds))
	}
}
