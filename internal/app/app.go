package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/staffportal/internal/auth"
	"github.com/hitoshi/staffportal/internal/config"
	"github.com/hitoshi/staffportal/internal/database"
	"github.com/hitoshi/staffportal/internal/handler"
	"github.com/hitoshi/staffportal/internal/logger"
	"github.com/hitoshi/staffportal/internal/metrics"
	"github.com/hitoshi/staffportal/internal/middleware"
	"github.com/hitoshi/staffportal/internal/repository"
	"github.com/hitoshi/staffportal/internal/security"
	"github.com/hitoshi/staffportal/internal/worker/cleanup"
)

// 証明書取得のタイムアウト
const certFetchTimeout = 10 * time.Second

// シャットダウンの猶予時間
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込んでログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	level := logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルの反映
	level.Set(logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// newTokenVerifier はサービスアカウント情報と証明書URLからIDトークン検証器を構築する。
// 証明書の取得は許可ホストへのHTTPS通信に限定する。
func newTokenVerifier(cfg *config.Config) (*auth.FirebaseVerifier, error) {
	// 1. サービスアカウント情報の読み込み
	sa, err := auth.LoadServiceAccount(cfg.FirebaseCredentialsFile)
	if err != nil {
		return nil, err
	}

	// 2. 証明書URLの検証
	certURL := cfg.FirebaseCertURL
	if certURL == "" {
		certURL = auth.DefaultCertURL
	}
	u, err := url.Parse(certURL)
	if err != nil {
		return nil, fmt.Errorf("invalid FIREBASE_CERT_URL: %w", err)
	}
	guard := security.NewOutboundGuard(u.Hostname())
	if err := guard.ValidateURL(certURL); err != nil {
		return nil, fmt.Errorf("invalid FIREBASE_CERT_URL: %w", err)
	}

	// 3. 検証器の構築
	keys := auth.NewCertificateKeySource(certURL, guard.NewSafeClient(certFetchTimeout))

	slog.Info("token verifier configured",
		slog.String("project_id", sa.ProjectID),
		slog.String("cert_host", u.Hostname()),
	)
	return auth.NewFirebaseVerifier(sa.ProjectID, keys), nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. IDトークン検証器（DBより先に設定不備を検出する）
	verifier, err := newTokenVerifier(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure token verifier: %w", err)
	}

	// 2. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 3. リポジトリの初期化
	staffRepo := repository.NewPostgresStaffRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 4. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービスの初期化
	authService := auth.NewService(verifier, staffRepo, sessionRepo, collector,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	cookieSigner := auth.NewCookieSigner(cfg.SessionSecret, cfg.SessionMaxAge)

	pages, err := handler.NewPages(handler.FirebaseWebConfig{
		APIKey:     cfg.FirebaseWebAPIKey,
		AuthDomain: cfg.FirebaseAuthDomain,
		ProjectID:  verifier.ProjectID(),
	})
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// 6. レート制限
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSession),
		collector,
	)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CookieVerifier:    cookieSigner,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:         slog.Default(),
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
		AuthService:    authService,
		CookieSigner:   cookieSigner,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		Pages: pages,
		DB:    db,
	})

	// 8. 期限切れセッションの削除をバックグラウンドで実行
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default(), collector)
	cleanupJob.Interval = cfg.SessionCleanupInterval
	go cleanupJob.Start(ctx)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除をSESSION_CLEANUP_INTERVALごとに実行し、
// ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessionRepo := repository.NewPostgresSessionRepo(db)

	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default(), nil)
	cleanupJob.Interval = cfg.SessionCleanupInterval

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	cleanupJob.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.CurrentVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		if len(raw) > 20 {
			return raw[:12] + "***@..."
		}
		return "***"
	}
	u.User = url.User("***")
	return u.String()
}
