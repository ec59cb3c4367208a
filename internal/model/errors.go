package model

import "fmt"

// APIError はクライアントに返すエラーを表す。
// レスポンスボディには Message のみを {"error": ...} として出力し、
// Code はログとメトリクスのラベルにのみ使用する。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingToken           = "MISSING_TOKEN"
	ErrCodeInvalidToken           = "INVALID_TOKEN"
	ErrCodePersistenceFailure     = "PERSISTENCE_FAILURE"
	ErrCodePasswordChangeFailed   = "PASSWORD_CHANGE_FAILED"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodePasswordChangeRequired = "PASSWORD_CHANGE_REQUIRED"
	ErrCodeRateLimited            = "RATE_LIMITED"
	ErrCodeCSRFValidation         = "CSRF_VALIDATION_FAILED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// NewMissingTokenError はリクエストにIDトークンが含まれない場合のエラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{Code: ErrCodeMissingToken, Message: "No token provided"}
}

// NewInvalidTokenError はIDトークンの検証失敗エラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{Code: ErrCodeInvalidToken, Message: "Invalid token"}
}

// NewLoginFailedError はプロフィールの読み書きに失敗した場合のエラーを生成する。
// 内部の詳細はログにのみ残す。
func NewLoginFailedError() *APIError {
	return &APIError{Code: ErrCodePersistenceFailure, Message: "Login failed"}
}

// NewPasswordChangeFailedError はパスワード変更完了処理の失敗エラーを生成する。
func NewPasswordChangeFailedError() *APIError {
	return &APIError{Code: ErrCodePasswordChangeFailed, Message: "Failed to change password"}
}

// NewUnauthorizedError はセッションが存在しない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{Code: ErrCodeUnauthorized, Message: "Unauthorized"}
}

// NewPasswordChangeRequiredError はパスワード未変更のセッションでAPIを呼んだ場合のエラーを生成する。
func NewPasswordChangeRequiredError() *APIError {
	return &APIError{Code: ErrCodePasswordChangeRequired, Message: "Password change required"}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{Code: ErrCodeRateLimited, Message: "Too many requests"}
}

// NewCSRFValidationError はCSRFトークンの検証失敗エラーを生成する。
func NewCSRFValidationError() *APIError {
	return &APIError{Code: ErrCodeCSRFValidation, Message: "CSRF token validation failed"}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{Code: ErrCodeInternal, Message: "Internal server error"}
}
