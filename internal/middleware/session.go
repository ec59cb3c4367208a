// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/staffportal/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// CookieVerifier は署名付きCookie値を検証し、セッションIDを取り出す。
type CookieVerifier interface {
	Verify(value string) (string, error)
}

// FailureResponder はガード失敗時のレスポンスを書き込む。
type FailureResponder func(w http.ResponseWriter, r *http.Request)

// RedirectTo はページ向けのFailureResponderを返す。302で指定パスへ遷移させる。
func RedirectTo(path string) FailureResponder {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, path, http.StatusFound)
	}
}

// RejectJSON はAPI向けのFailureResponderを返す。
func RejectJSON(statusCode int, apiErr *model.APIError) FailureResponder {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, statusCode, apiErr)
	}
}

// RequireSession はCookieからセッションを読み取り、有効性を検証するミドルウェアを返す。
// 有効なセッションをリクエストコンテキストに注入する。
// Cookieが無い、署名が不正、セッションが存在しないか期限切れの場合はonFailを呼ぶ。
func RequireSession(sessions SessionFinder, cookies CookieVerifier, onFail FailureResponder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieから署名付きセッションIDを取得
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				onFail(w, r)
				return
			}

			// 2. 署名を検証
			sessionID, err := cookies.Verify(cookie.Value)
			if err != nil {
				slog.Warn("rejected session cookie",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				onFail(w, r)
				return
			}

			// 3. セッションの有効性を検証
			session, err := sessions.FindByID(r.Context(), sessionID)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				onFail(w, r)
				return
			}
			if session == nil || session.Expired(time.Now()) {
				onFail(w, r)
				return
			}

			// 4. セッションをコンテキストに注入
			setLoggedUID(r.Context(), session.UID)
			ctx := ContextWithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePasswordChanged はパスワード変更済みのセッションのみを通すミドルウェアを返す。
// RequireSessionの後に配置する。セッションが無い場合もonFailを呼ぶ。
func RequirePasswordChanged(onFail FailureResponder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := SessionFromContext(r.Context())
			if err != nil || !session.PasswordChanged {
				onFail(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain は複数のミドルウェアを1つに合成する。
// 先頭のミドルウェアが最も外側で実行される。
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// RequireSessionを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*model.Session, error) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	if !ok || session == nil {
		return nil, fmt.Errorf("session not found in context")
	}
	return session, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
