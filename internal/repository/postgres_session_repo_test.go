package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/staffportal/internal/model"
)

func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

func TestPostgresSessionRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresSessionRepo(db)

	now := time.Now()
	session := &model.Session{
		ID:              "sess-1",
		UID:             "uid-1",
		Email:           "staff@example.com",
		PasswordChanged: false,
		ExpiresAt:       now.Add(time.Hour),
		CreatedAt:       now,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sessions`)).
		WithArgs("sess-1", "uid-1", "staff@example.com", false, session.ExpiresAt, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresSessionRepo_FindByID_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresSessionRepo(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1 AND expires_at > now()`)).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "email", "password_changed", "expires_at", "created_at"}).
			AddRow("sess-1", "uid-1", "staff@example.com", true, now.Add(time.Hour), now))

	session, err := repo.FindByID(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session == nil {
		t.Fatal("expected session, got nil")
	}
	if session.UID != "uid-1" || !session.PasswordChanged {
		t.Errorf("session = %+v, want uid-1 with password_changed", session)
	}
}

// 期限切れ行はWHERE句で除外されるためErrNoRowsとなり、nilが返る
func TestPostgresSessionRepo_FindByID_ExpiredOrMissing_ReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresSessionRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sessions`)).
		WithArgs("expired").
		WillReturnError(sql.ErrNoRows)

	session, err := repo.FindByID(context.Background(), "expired")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil {
		t.Errorf("expected nil, got %+v", session)
	}
}

func TestPostgresSessionRepo_MarkPasswordChanged(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresSessionRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET password_changed = TRUE WHERE id = $1`)).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkPasswordChanged(context.Background(), "sess-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPostgresSessionRepo_MarkPasswordChanged_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresSessionRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET password_changed = TRUE WHERE id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkPasswordChanged(context.Background(), "missing"); err == nil {
		t.Error("expected error for missing session, got nil")
	}
}

func TestPostgresSessionRepo_DeleteByID_DBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresSessionRepo(db)

	dbErr := errors.New("db down")
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE id = $1`)).
		WithArgs("sess-1").
		WillReturnError(dbErr)

	if err := repo.DeleteByID(context.Background(), "sess-1"); !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapped %v", err, dbErr)
	}
}

func TestPostgresSessionRepo_DeleteExpired_ReturnsCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresSessionRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE expires_at <= now()`)).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("deleted = %d, want 7", n)
	}
}
