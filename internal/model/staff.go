// Package model はドメインモデルを定義する。
package model

import "time"

// Staff はスタッフのプロフィールを表す。
// IDプロバイダーのユーザーID（UID）をキーとして永続化される。
type Staff struct {
	UID             string
	Email           string
	PasswordChanged bool // 一度trueになったらリセットされない
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Session はスタッフのログインセッションを表す。
// PasswordChangedは作成時点のStaff.PasswordChangedを写し取る。
type Session struct {
	ID              string
	UID             string
	Email           string
	PasswordChanged bool
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// Expired はセッションが指定時刻の時点で期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
