package app

import (
	"context"
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

	"github.com/hitoshi/weekly/internal/auth"
	"github.com/hitoshi/weekly/internal/config"
	"github.com/hitoshi/weekly/internal/database"
	"github.com/hitoshi/weekly/internal/handler"
	"github.com/hitoshi/weekly/internal/httpclient"
	"github.com/hitoshi/weekly/internal/logger"
	"github.com/hitoshi/weekly/internal/metrics"
	"github.com/hitoshi/weekly/internal/repository"
	"github.com/hitoshi/weekly/internal/security"
	"github.com/hitoshi/weekly/internal/weekly"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、設定ファイルと環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, configPath string) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 設定を読み込む
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定ファイルのログレベルを反映する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	opts, err := ParseArgs(args)
	if err != nil {
		return err
	}
	if opts.Help {
		PrintUsage(os.Stderr)
		return nil
	}

	// healthcheck は軽量サブコマンドのため、待ち受け設定だけを読んでフル初期化をスキップする
	if opts.Command == CommandHealthcheck {
		addr, err := config.HealthcheckAddr(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		return runHealthcheck(addr)
	}

	cfg, err := Init(w, opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(opts.Command)),
		slog.String("addr", cfg.Addr()),
		slog.String("base_url", cfg.BaseURL),
	)

	switch opts.Command {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はWebサーバーモードで起動する。
// DB接続を開いてマイグレーションを適用し、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("dialect", string(db.Dialect)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	// 2. 未適用のマイグレーションを適用
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// 3. 依存関係の構築（OIDCディスカバリを含む）
	router, err := buildRouter(context.Background(), cfg, db, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down web server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// buildRouter はOIDCクライアント、セッション判定、週報サービス、メトリクスを組み立ててルーターを返す。
// OIDCディスカバリはOIDC_TIMEOUTを期限として起動時に1回だけ行う。
func buildRouter(ctx context.Context, cfg *config.Config, db *database.DB, reg *prometheus.Registry) (http.Handler, error) {
	// 1. メトリクス
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. OIDCクライアント
	client := httpclient.NewClient(cfg.OIDCTimeout, collector)
	discoverCtx, cancel := context.WithTimeout(ctx, cfg.OIDCTimeout)
	defer cancel()
	oidc, err := auth.NewOpenIDConnect(discoverCtx, auth.OIDCConfig{
		ProviderURL:  cfg.OIDCURLPrefix,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.RedirectURL(),
	}, client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenID Connect: %w", err)
	}

	// 3. 週報サービス
	repo := repository.NewSQLWeeklyRepo(db)
	service := weekly.NewService(repo, cfg.DefaultLang)
	renderer := weekly.NewRenderer(security.NewContentSanitizer())

	cookieOpts := auth.CookieOptions{
		Harden: cfg.CookieHarden,
		Secure: cfg.CookieSecure,
	}
	if !cfg.CookieHarden {
		slog.Warn("token cookies are readable by scripts; set COOKIE_HARDEN=true to add HttpOnly and SameSite")
	}

	// 4. ルーター
	return handler.NewRouter(&handler.RouterDeps{
		Logger:           slog.Default(),
		SessionValidator: auth.NewSessionValidator(oidc),
		SecureHeaders:    cfg.CookieSecure,

		Authenticator: oidc,
		AuthConfig: handler.AuthHandlerConfig{
			Cookie:         cookieOpts,
			GuestIndex:     cfg.GuestIndex,
			GuestIndexUser: cfg.GuestIndexUser,
		},

		WeeklyService: service,
		Renderer:      renderer,

		HealthChecker:  db,
		Recorder:       collector,
		MetricsHandler: metrics.Handler(reg),
	}), nil
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

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// addr（host:port）の /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(addr string) error {
	target := "http://" + addr + "/health"
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// SQLiteのURLは認証情報を含まないためそのまま返す。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
