// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/staffportal/internal/auth"
	"github.com/hitoshi/staffportal/internal/middleware"
	"github.com/hitoshi/staffportal/internal/model"
)

// maxTokenBodySize はIDトークンを含むリクエストボディの上限。
const maxTokenBodySize = 64 << 10

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	EstablishSession(ctx context.Context, idToken string) (*auth.LoginResult, error)
	CompletePasswordChange(ctx context.Context, session *model.Session, idToken string) error
	Logout(ctx context.Context, sessionID string) error
}

// SessionCookieSigner はセッションIDに署名する。
type SessionCookieSigner interface {
	Sign(sessionID string) (string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はセッション確立・パスワード変更・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	signer  SessionCookieSigner
	pages   *Pages
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, signer SessionCookieSigner, pages *Pages, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		signer:  signer,
		pages:   pages,
		config:  config,
	}
}

// tokenRequest はIDトークンを運ぶリクエストボディ。
type tokenRequest struct {
	IDToken string `json:"idToken"`
}

// messageResponse は成功時のレスポンスボディ。
type messageResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

// EstablishSession はIDトークンを検証してセッションを発行する。
// POST /api/session
func (h *AuthHandler) EstablishSession(w http.ResponseWriter, r *http.Request) {
	// 1. リクエストボディからIDトークンを取得（不正なJSONはトークン無しとして扱う）
	idToken := readIDToken(w, r)

	// 2. セッションを確立
	result, err := h.service.EstablishSession(r.Context(), idToken)
	if err != nil {
		var authErr *auth.Error
		if !errors.As(err, &authErr) {
			slog.Error("unexpected session error", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}

		slog.Warn("session establishment failed",
			slog.String("kind", authErr.Kind.String()),
			slog.String("error", authErr.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		switch authErr.Kind {
		case auth.KindMissingToken:
			middleware.WriteError(w, http.StatusBadRequest, model.NewMissingTokenError())
		case auth.KindInvalidToken:
			middleware.WriteError(w, http.StatusUnauthorized, model.NewInvalidTokenError())
		default:
			middleware.WriteError(w, http.StatusBadRequest, model.NewLoginFailedError())
		}
		return
	}

	// 3. 署名付きセッションCookieを設定（HTTP Only）
	value, err := h.signer.Sign(result.Session.ID)
	if err != nil {
		slog.Error("failed to sign session cookie", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	h.setSessionCookie(w, value, h.config.SessionMaxAge)

	middleware.WriteJSON(w, http.StatusOK, messageResponse{
		Message:  "Login successful",
		Redirect: result.Redirect,
	})
}

// ChangePasswordPage はパスワード変更ページを表示する。
// GET /change-password
func (h *AuthHandler) ChangePasswordPage(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, "change_password.html", pageData{Title: "Change Password"})
}

// ChangePassword はパスワード変更の完了を記録する。
// POST /change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	idToken := readIDToken(w, r)

	if err := h.service.CompletePasswordChange(r.Context(), session, idToken); err != nil {
		var authErr *auth.Error
		if errors.As(err, &authErr) && authErr.Kind == auth.KindMissingToken {
			middleware.WriteError(w, http.StatusBadRequest, model.NewMissingTokenError())
			return
		}

		slog.Error("change password failed",
			slog.String("uid", session.UID),
			slog.String("email", session.Email),
			slog.String("error", err.Error()),
		)
		middleware.WriteError(w, http.StatusBadRequest, model.NewPasswordChangeFailedError())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Password changed successfully"})
}

// Logout はセッションを破棄してログインページへ遷移させる。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session, err := middleware.SessionFromContext(r.Context()); err == nil {
		if logoutErr := h.service.Logout(r.Context(), session.ID); logoutErr != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout",
				slog.String("uid", session.UID),
				slog.String("error", logoutErr.Error()),
			)
		}
	}

	h.setSessionCookie(w, "", -1)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// readIDToken はJSONボディからidTokenを読み取る。読み取れない場合は空文字を返す。
func readIDToken(w http.ResponseWriter, r *http.Request) string {
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTokenBodySize)).Decode(&req); err != nil {
		return ""
	}
	return req.IDToken
}
