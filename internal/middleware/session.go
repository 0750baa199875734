// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/weekly/internal/auth"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッション判定結果を格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionValidator はCookieヘッダーからセッションを判定する。
// auth.SessionValidatorが実装する。
type SessionValidator interface {
	Validate(ctx context.Context, cookieHeader string) (auth.SessionValidation, error)
}

// SessionRecorder はセッション判定の結果をメトリクスに記録する。
type SessionRecorder interface {
	RecordSession(outcome string)
}

// NewSessionMiddleware はリクエストごとに1回セッションを判定し、
// 結果をリクエストコンテキストに注入するミドルウェアを返す。
// トークンを更新した場合は後続の処理より先に新しいCookieを設定する。
// 判定に失敗した場合はログに記録し、未ログインとして扱う。
func NewSessionMiddleware(validator SessionValidator, opts auth.CookieOptions, recorder SessionRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := validator.Validate(r.Context(), r.Header.Get("Cookie"))
			outcome := session.Status.String()
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to validate session",
					slog.String("error", err.Error()),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				session = auth.Invalid()
				outcome = "error"
			}
			if recorder != nil {
				recorder.RecordSession(outcome)
			}

			if session.Status == auth.SessionRefreshed {
				auth.SetTokenCookies(w, session.NewTokens, opts)
			}
			if session.Authenticated() {
				setLogUser(r.Context(), session.User.Name)
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッション判定結果を取得する。
// セッションミドルウェアを通過していなければInvalidを返す。
func SessionFromContext(ctx context.Context) auth.SessionValidation {
	session, ok := ctx.Value(sessionContextKey).(auth.SessionValidation)
	if !ok {
		return auth.Invalid()
	}
	return session
}

// ContextWithSession はコンテキストにセッション判定結果を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session auth.SessionValidation) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
