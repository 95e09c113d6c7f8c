package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var lockRowColumns = []string{"id", "document_id", "position", "length", "locked_by", "locked_at"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func expectLockKey(mock sqlmock.Sqlmock, documentID string, position int) {
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1)`)).
		WithArgs(lockKey(documentID, position)).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestToggleLockCreatesWhenFree(t *testing.T) {
	s, mock := newMockStore(t)
	lockedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	expectLockKey(mock, "doc_1", 10)
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("doc_1", 10).
		WillReturnRows(sqlmock.NewRows(lockRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO locked_paragraphs`)).
		WithArgs("lck_1", "doc_1", 10, 5, "user-a").
		WillReturnRows(sqlmock.NewRows(lockRowColumns).AddRow("lck_1", "doc_1", 10, 5, "user-a", lockedAt))
	mock.ExpectCommit()

	got, err := s.ToggleLock(context.Background(), Lock{ID: "lck_1", DocumentID: "doc_1", Position: 10, Length: 5, LockedBy: "user-a"})
	if err != nil {
		t.Fatalf("ToggleLock() error = %v", err)
	}
	if got.Outcome != LockCreated || got.Lock.ID != "lck_1" || !got.Lock.LockedAt.Equal(lockedAt) {
		t.Fatalf("ToggleLock() = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestToggleLockRemovesOwnLock(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLockKey(mock, "doc_1", 10)
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("doc_1", 10).
		WillReturnRows(sqlmock.NewRows(lockRowColumns).AddRow("lck_old", "doc_1", 10, 5, "user-a", time.Now()))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM locked_paragraphs WHERE id=$1`)).
		WithArgs("lck_old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := s.ToggleLock(context.Background(), Lock{ID: "lck_new", DocumentID: "doc_1", Position: 10, Length: 5, LockedBy: "user-a"})
	if err != nil {
		t.Fatalf("ToggleLock() error = %v", err)
	}
	if got.Outcome != LockRemoved || got.Lock.ID != "lck_old" {
		t.Fatalf("ToggleLock() = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestToggleLockReportsForeignHolder(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLockKey(mock, "doc_1", 10)
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("doc_1", 10).
		WillReturnRows(sqlmock.NewRows(lockRowColumns).AddRow("lck_old", "doc_1", 10, 8, "user-b", time.Now()))
	mock.ExpectCommit()

	got, err := s.ToggleLock(context.Background(), Lock{ID: "lck_new", DocumentID: "doc_1", Position: 10, Length: 5, LockedBy: "user-a"})
	if err != nil {
		t.Fatalf("ToggleLock() error = %v", err)
	}
	if got.Outcome != LockHeldByOther || got.Lock.LockedBy != "user-b" || got.Lock.Length != 8 {
		t.Fatalf("ToggleLock() = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestToggleLockInsertRaceReportsHolder(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLockKey(mock, "doc_1", 10)
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows(lockRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO locked_paragraphs`)).WillReturnRows(sqlmock.NewRows(lockRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM locked_paragraphs WHERE document_id=$1 AND position=$2`)).
		WillReturnRows(sqlmock.NewRows(lockRowColumns).AddRow("lck_x", "doc_1", 10, 5, "user-b", time.Now()))
	mock.ExpectCommit()

	got, err := s.ToggleLock(context.Background(), Lock{ID: "lck_new", DocumentID: "doc_1", Position: 10, Length: 5, LockedBy: "user-a"})
	if err != nil {
		t.Fatalf("ToggleLock() error = %v", err)
	}
	if got.Outcome != LockHeldByOther || got.Lock.ID != "lck_x" {
		t.Fatalf("ToggleLock() = %+v", got)
	}
}

func TestToggleLockRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	expectLockKey(mock, "doc_1", 10)
	mock.ExpectQuery(`FOR UPDATE`).WillReturnError(boom)
	mock.ExpectRollback()

	_, err := s.ToggleLock(context.Background(), Lock{ID: "lck_new", DocumentID: "doc_1", Position: 10, Length: 5, LockedBy: "user-a"})
	if !errors.Is(err, boom) {
		t.Fatalf("ToggleLock() error = %v, want wrapped %v", err, boom)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLockKeyIsStablePerPosition(t *testing.T) {
	if lockKey("doc_1", 10) != lockKey("doc_1", 10) {
		t.Fatal("lockKey must be deterministic")
	}
	if lockKey("doc_1", 10) == lockKey("doc_1", 11) || lockKey("doc_1", 10) == lockKey("doc_2", 10) {
		t.Fatal("lockKey should separate documents and positions")
	}
}

func TestGetLockReturnsNilWhenFree(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM locked_paragraphs WHERE document_id=$1 AND position=$2`)).
		WithArgs("doc_1", 3).
		WillReturnRows(sqlmock.NewRows(lockRowColumns))

	lock, err := s.GetLock(context.Background(), "doc_1", 3)
	if err != nil || lock != nil {
		t.Fatalf("GetLock() = %+v, %v; want nil, nil", lock, err)
	}
}
