package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/weekly/internal/middleware"
	"github.com/hitoshi/weekly/internal/weekly"
)

// Recorder はルーター全体で使うメトリクスの記録先。metrics.Collectorが実装する。
type Recorder interface {
	middleware.HTTPRecorder
	middleware.SessionRecorder
	WeeklyRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger           *slog.Logger
	SessionValidator middleware.SessionValidator
	SecureHeaders    bool

	// 認証
	Authenticator Authenticator
	AuthConfig    AuthHandlerConfig

	// 週報
	WeeklyService WeeklyServiceInterface
	Renderer      *weekly.Renderer

	// 運用
	HealthChecker  HealthChecker
	Recorder       Recorder
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Session（ページのみ）
//
// 静的ファイル、/health、/metrics、/login、/openid-redirectはセッション判定の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		httpRecorder    middleware.HTTPRecorder
		sessionRecorder middleware.SessionRecorder
		weeklyRecorder  WeeklyRecorder
	)
	if deps.Recorder != nil {
		httpRecorder, sessionRecorder, weeklyRecorder = deps.Recorder, deps.Recorder, deps.Recorder
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecureHeaders))
	r.Use(middleware.NewLoggingMiddleware(logger, httpRecorder))

	authHandler := NewAuthHandler(deps.Authenticator, deps.AuthConfig)
	weeklyHandler := NewWeeklyHandler(deps.WeeklyService, deps.Renderer, weeklyRecorder)

	// --- セッション判定不要のルート ---
	r.Handle("/statics/*", staticHandler())
	if deps.HealthChecker != nil {
		r.Get("/health", Health(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Get("/login", authHandler.Login)
	// コールバックは認可コードの交換のみを行い、既存のCookieのセッションは判定しない
	r.Get("/openid-redirect", authHandler.OpenIDRedirect)

	// --- ページ ---
	// 未ログインでも閲覧できる。編集系は各ハンドラーで本人確認を行う。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionValidator, deps.AuthConfig.Cookie, sessionRecorder))

		r.Get("/", authHandler.Index)

		r.Route("/weekly/{username}", func(r chi.Router) {
			r.Get("/", weeklyHandler.UserWeeklies)
			r.Get("/{date}", weeklyHandler.UserWeekly)
		})

		r.Route("/edit/{username}/{date}", func(r chi.Router) {
			r.Get("/", weeklyHandler.EditForm)
			r.Post("/", weeklyHandler.Edit)
		})

		r.Post("/preview", weeklyHandler.Preview)
	})

	return r
}
