package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/staffportal/internal/model"
)

// PostgresStaffRepo はPostgreSQLを使用したスタッフリポジトリ。
type PostgresStaffRepo struct {
	db *sql.DB
}

// NewPostgresStaffRepo はPostgresStaffRepoを生成する。
func NewPostgresStaffRepo(db *sql.DB) *PostgresStaffRepo {
	return &PostgresStaffRepo{db: db}
}

// FindByUID は指定UIDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresStaffRepo) FindByUID(ctx context.Context, uid string) (*model.Staff, error) {
	staff := &model.Staff{}
	err := r.db.QueryRowContext(ctx,
		`SELECT uid, email, password_changed, created_at, updated_at FROM staff WHERE uid = $1`,
		uid,
	).Scan(&staff.UID, &staff.Email, &staff.PasswordChanged, &staff.CreatedAt, &staff.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find staff by uid: %w", err)
	}

	return staff, nil
}

// CreateIfAbsent はプロフィールが存在しない場合のみ作成する。
// 同一UIDの初回ログインが並行しても行は1つしか作られない。
func (r *PostgresStaffRepo) CreateIfAbsent(ctx context.Context, staff *model.Staff) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO staff (uid, email, password_changed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (uid) DO NOTHING`,
		staff.UID, staff.Email, staff.PasswordChanged, staff.CreatedAt, staff.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert staff: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// MarkPasswordChanged はpassword_changedをtrueに設定する。
// falseに戻す経路は存在しない。
func (r *PostgresStaffRepo) MarkPasswordChanged(ctx context.Context, uid string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE staff SET password_changed = TRUE, updated_at = now() WHERE uid = $1`,
		uid,
	)
	if err != nil {
		return fmt.Errorf("failed to update staff: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("staff not found: %s", uid)
	}
	return nil
}

// compile-time interface check
var _ StaffRepository = (*PostgresStaffRepo)(nil)
