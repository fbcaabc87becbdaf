package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

func newStoreWithMock(t *testing.T) (*DocumentStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewDocumentStore(db, DialectPostgres), mock, func() { _ = db.Close() }
}

func TestRebindPostgresPlaceholders(t *testing.T) {
	got := DialectPostgres.rebind("UPDATE files SET status = ? WHERE id = ? AND status = ?")
	want := "UPDATE files SET status = $1 WHERE id = $2 AND status = $3"
	if got != want {
		t.Fatalf("rebind() = %q, want %q", got, want)
	}
	if DialectSQLite.rebind("id = ?") != "id = ?" {
		t.Fatalf("sqlite queries must keep ? placeholders")
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT id, original_name, size, .* FROM files WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimForProcessingLosesWhenNoRowsAffected(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE files").
		WithArgs(string(domain.StatusProcessing), sqlmock.AnyArg(), "doc-1", string(domain.StatusUploaded)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := store.ClaimForProcessing(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ClaimForProcessing() error = %v", err)
	}
	if claimed {
		t.Fatalf("expected lost claim")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkErrorReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE files").
		WithArgs(string(domain.StatusError), "boom", sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkError(context.Background(), "missing", "boom")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveResultLocksRowAndCommits(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM files WHERE id = \$1 FOR UPDATE`).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(domain.StatusProcessing)))
	mock.ExpectExec("INSERT INTO results").
		WithArgs("doc-1", "run-1", []byte(`{"error":"Document is not legal in nature"}`), sqlmock.AnyArg(), []byte(`{}`), []byte(`{}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE files").
		WithArgs(string(domain.StatusProcessed), sqlmock.AnyArg(), sqlmock.AnyArg(), "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result := domain.NotLegalResult()
	result.RunID = "run-1"
	if err := store.SaveResult(context.Background(), "doc-1", result); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveResultRefusesDeletedDocument(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM files WHERE id = \$1 FOR UPDATE`).
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.SaveResult(context.Background(), "gone", domain.NotLegalResult())
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResetForReprocessConflictsWhileProcessing(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM files`).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(domain.StatusProcessing)))
	mock.ExpectRollback()

	err := store.ResetForReprocess(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteRollsBackWhenDocumentMissing(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM results").WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM files").WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Delete(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(schemaLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS files`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetCachedResultMissing(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT run_id, lawyer").WithArgs("doc-1").WillReturnError(sql.ErrNoRows)

	_, err := store.GetCachedResult(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}
	if errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("missing result must not look like a missing document")
	}
}
