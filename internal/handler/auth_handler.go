// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/weekly/internal/auth"
	"github.com/hitoshi/weekly/internal/config"
	"github.com/hitoshi/weekly/internal/middleware"
	"github.com/hitoshi/weekly/internal/model"
)

// Authenticator は認証ハンドラーが必要とするOpenID Connectの操作。
// auth.OpenIDConnectが実装する。
type Authenticator interface {
	InitialURL() string
	Authenticate(ctx context.Context, code string) (auth.Tokens, error)
	GetUser(ctx context.Context, tokens auth.Tokens) (auth.UserInfo, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie auth.CookieOptions
	// GuestIndex は未ログイン時のトップページの種類（config.GuestIndexUserWeekly）。空なら未設定。
	GuestIndex     string
	GuestIndexUser string
}

// AuthHandler はトップページとOpenID Connectのログインフローを扱う。
type AuthHandler struct {
	auth   Authenticator
	config AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(a Authenticator, cfg AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		auth:   a,
		config: cfg,
	}
}

// Index はログイン中なら自分の週報一覧へ、未ログインならゲスト用のページへリダイレクトする。
// GET /
func (h *AuthHandler) Index(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session.Authenticated() {
		http.Redirect(w, r, URLFor("weekly", session.User.Name), http.StatusFound)
		return
	}

	switch h.config.GuestIndex {
	case config.GuestIndexUserWeekly:
		http.Redirect(w, r, URLFor("weekly", h.config.GuestIndexUser), http.StatusMovedPermanently)
	default:
		middleware.WriteError(w, r, model.NewRuntimeError("Guest index is not configured"))
	}
}

// Login はプロバイダーの認可エンドポイントへリダイレクトする。
// GET /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.auth.InitialURL(), http.StatusMovedPermanently)
}

// OpenIDRedirect は認可コードをトークンに交換し、トークンをCookieに設定する。
// GET /openid-redirect?code=xxx
func (h *AuthHandler) OpenIDRedirect(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// 1. プロバイダーからのエラー
	if query.Has("error") {
		var message string
		if query.Has("error_description") {
			message = fmt.Sprintf("%s: %s.", query.Get("error"), query.Get("error_description"))
		}
		slog.WarnContext(r.Context(), "authorization failed",
			slog.String("error", query.Get("error")),
			slog.String("error_description", query.Get("error_description")),
		)
		middleware.WriteText(w, http.StatusInternalServerError, message)
		return
	}

	// 2. 認可コードの取得
	if !query.Has("code") {
		middleware.WriteText(w, http.StatusInternalServerError, "No error or code in auth response")
		return
	}
	code := query.Get("code")
	slog.DebugContext(r.Context(), "received authorization code")

	// 3. トークンの取得とユーザーの確認
	tokens, err := h.auth.Authenticate(r.Context(), code)
	if err != nil {
		middleware.WriteError(w, r, fmt.Errorf("failed to exchange authorization code: %w", err))
		return
	}
	user, err := h.auth.GetUser(r.Context(), tokens)
	if err != nil {
		middleware.WriteError(w, r, fmt.Errorf("failed to get user: %w", err))
		return
	}

	// 4. トークンをCookieに設定してトップへ
	auth.SetTokenCookies(w, tokens, h.config.Cookie)
	slog.InfoContext(r.Context(), "user logged in", slog.String("user", user.Name))
	http.Redirect(w, r, URLFor("index", ""), http.StatusMovedPermanently)
}
