// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/staffportal/internal/model"
)

// StaffRepository はスタッフプロフィールの永続化インターフェース。
type StaffRepository interface {
	// FindByUID は指定UIDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUID(ctx context.Context, uid string) (*model.Staff, error)

	// CreateIfAbsent はプロフィールが存在しない場合のみ作成する。
	// 実際に作成した場合はtrueを返す。
	CreateIfAbsent(ctx context.Context, staff *model.Staff) (bool, error)

	// MarkPasswordChanged はpassword_changedをtrueに設定する。
	// プロフィールが存在しない場合はエラーを返す。
	MarkPasswordChanged(ctx context.Context, uid string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// MarkPasswordChanged はセッションのpassword_changedをtrueに設定する。
	MarkPasswordChanged(ctx context.Context, id string) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
