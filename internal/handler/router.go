package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/staffportal/internal/metrics"
	"github.com/hitoshi/staffportal/internal/middleware"
	"github.com/hitoshi/staffportal/internal/model"
)

// placeholderSections は未実装の業務領域。ページとAPIの両方を持つ。
var placeholderSections = []struct {
	path string
	name string
}{
	{"tasks", "Tasks"},
	{"messages", "Messages"},
	{"checklists", "Checklists"},
	{"locker-keys", "Locker Keys"},
	{"church-meetings", "Church Meetings"},
	{"moves", "Moves"},
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CookieVerifier    middleware.CookieVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// メトリクス（任意）
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// 認証
	AuthService  AuthServiceInterface
	CookieSigner SessionCookieSigner
	AuthConfig   AuthHandlerConfig

	// ページ
	Pages *Pages

	// 稼働確認
	DB Pinger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェア:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// ページ系はガード失敗時にリダイレクトし、API系は {"error": ...} のJSONを返す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(metrics.NewHTTPMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.CookieSigner, deps.Pages, deps.AuthConfig)
	healthHandler := NewHealthHandler(deps.DB)

	// ページ向けガード
	pageSession := middleware.RequireSession(deps.SessionFinder, deps.CookieVerifier, middleware.RedirectTo("/login"))
	pagePassword := middleware.RequirePasswordChanged(middleware.RedirectTo("/change-password"))

	// API向けガード
	apiSession := middleware.RequireSession(deps.SessionFinder, deps.CookieVerifier,
		middleware.RejectJSON(http.StatusUnauthorized, model.NewUnauthorizedError()))
	apiPassword := middleware.RequirePasswordChanged(
		middleware.RejectJSON(http.StatusForbidden, model.NewPasswordChangeRequiredError()))

	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)
	general := deps.RateLimiter.GeneralMiddleware()

	// --- 認証不要のルート ---
	r.Get("/", deps.Pages.Root)
	r.Get("/login", deps.Pages.Login)
	r.Get("/api/firebase-config", deps.Pages.FirebaseConfig)
	r.Handle("/static/*", deps.Pages.Static())
	r.Get("/test", healthHandler.Test)
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// セッション確立（クライアントIP単位のレート制限）
	r.With(deps.RateLimiter.SessionEstablishMiddleware()).Post("/api/session", authHandler.EstablishSession)

	// CSRFトークンの取得（トークンCookieはこのハンドラー自身が発行する）
	r.With(pageSession, general).Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// --- セッションのみ必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.Chain(pageSession, general, csrf))

		r.Get("/change-password", authHandler.ChangePasswordPage)
		r.Post("/change-password", authHandler.ChangePassword)
		r.Get("/logout", authHandler.Logout)

		// --- パスワード変更済みが必要なページ ---
		r.Group(func(r chi.Router) {
			r.Use(pagePassword)
			for _, s := range placeholderSections {
				r.Get("/"+s.path, deps.Pages.Placeholder(s.name))
			}
		})
	})

	// --- パスワード変更済みが必要なAPI ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.Chain(apiSession, apiPassword, general, csrf))

		tasks := PlaceholderAPI("Tasks")
		r.Get("/api/tasks", tasks)
		r.Post("/api/tasks", tasks)
		r.Put("/api/tasks", tasks)
		r.Delete("/api/tasks", tasks)

		messages := PlaceholderAPI("Messages")
		r.Get("/api/messages", messages)
		r.Post("/api/messages", messages)

		for _, s := range placeholderSections[2:] {
			r.Get("/api/"+s.path, PlaceholderAPI(s.name))
		}
	})

	return r
}
