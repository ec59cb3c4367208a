package handler

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/hitoshi/staffportal/internal/middleware"
)

//go:embed web/templates/*.html
var templateFS embed.FS

//go:embed web/static
var staticFS embed.FS

// FirebaseWebConfig はブラウザ側のFirebase Web SDKに渡す公開設定。
type FirebaseWebConfig struct {
	APIKey     string `json:"apiKey"`
	AuthDomain string `json:"authDomain"`
	ProjectID  string `json:"projectId"`
}

// pageData はテンプレートに渡す値。
type pageData struct {
	Title string
}

// Pages は埋め込みテンプレートの描画とページ系ハンドラーを提供する。
type Pages struct {
	templates *template.Template
	firebase  FirebaseWebConfig
}

// NewPages は埋め込みテンプレートを読み込んでPagesを生成する。
func NewPages(firebase FirebaseWebConfig) (*Pages, error) {
	tmpl, err := template.ParseFS(templateFS, "web/templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Pages{templates: tmpl, firebase: firebase}, nil
}

// Root はログインページへリダイレクトする。
// GET /
func (p *Pages) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

// Login はログインページを表示する。
// GET /login
func (p *Pages) Login(w http.ResponseWriter, r *http.Request) {
	p.render(w, "login.html", pageData{Title: "Login"})
}

// FirebaseConfig はWeb SDKの初期化に必要な公開設定を返す。
// GET /api/firebase-config
func (p *Pages) FirebaseConfig(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, p.firebase)
}

// Static は埋め込み静的ファイルのハンドラーを返す。/static/ 配下にマウントする。
func (p *Pages) Static() http.Handler {
	sub, err := fs.Sub(staticFS, "web/static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// Placeholder は未実装ページの固定テキストを返すハンドラーを生成する。
func (p *Pages) Placeholder(name string) http.HandlerFunc {
	body := name + " page (to be implemented)"
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

// render はテンプレートをバッファに描画し、成功した場合のみレスポンスに書き込む。
func (p *Pages) render(w http.ResponseWriter, name string, data pageData) {
	var buf bytes.Buffer
	if err := p.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
