package auth

import "fmt"

// ErrorKind はセッション確立・パスワード変更処理の失敗種別を表す。
type ErrorKind int

const (
	// KindMissingToken はリクエストにIDトークンが含まれないことを示す。
	KindMissingToken ErrorKind = iota + 1
	// KindInvalidToken はIDトークンの検証に失敗したことを示す。
	KindInvalidToken
	// KindPersistenceFailure はプロフィールまたはセッションの読み書きに失敗したことを示す。
	KindPersistenceFailure
)

// String はログ出力用の種別名を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindMissingToken:
		return "missing_token"
	case KindInvalidToken:
		return "invalid_token"
	case KindPersistenceFailure:
		return "persistence_failure"
	default:
		return "unknown"
	}
}

// Error は種別付きのエラー。サービス層はこの型でのみ失敗を返す。
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
