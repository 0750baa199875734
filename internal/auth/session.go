package auth

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// SessionStatus はセッション判定の結果の種類。
type SessionStatus int

const (
	// SessionInvalid は有効なセッションがないことを示す。
	SessionInvalid SessionStatus = iota
	// SessionValid はアクセストークンが有効であることを示す。
	SessionValid
	// SessionRefreshed はリフレッシュトークンで新しいトークンを取得したことを示す。
	// 呼び出し側はレスポンス完了前にCookieを再発行しなければならない。
	SessionRefreshed
)

// String はログとメトリクス用の名前を返す。
func (s SessionStatus) String() string {
	switch s {
	case SessionValid:
		return "valid"
	case SessionRefreshed:
		return "refreshed"
	default:
		return "invalid"
	}
}

// SessionValidation はリクエストごとのセッション判定結果。
// UserはValidとRefreshedで、NewTokensはRefreshedでのみ設定される。
type SessionValidation struct {
	Status    SessionStatus
	User      UserInfo
	NewTokens Tokens
}

// Invalid は無効なセッションの判定結果を返す。
func Invalid() SessionValidation {
	return SessionValidation{Status: SessionInvalid}
}

// Valid は有効なセッションの判定結果を返す。
func Valid(user UserInfo) SessionValidation {
	return SessionValidation{Status: SessionValid, User: user}
}

// Refreshed はトークンを更新したセッションの判定結果を返す。
func Refreshed(user UserInfo, tokens Tokens) SessionValidation {
	return SessionValidation{Status: SessionRefreshed, User: user, NewTokens: tokens}
}

// Authenticated はセッションにユーザーがいるかどうかを返す。
func (s SessionValidation) Authenticated() bool {
	return s.Status == SessionValid || s.Status == SessionRefreshed
}

// refreshResult はsingleflightで共有するリフレッシュ結果。
type refreshResult struct {
	user   UserInfo
	tokens Tokens
}

// SessionValidator はCookieのトークンからリクエストのセッションを判定する。
// サーバー側にセッションは保持せず、リクエストごとにプロバイダーへ問い合わせる。
type SessionValidator struct {
	auth  Authenticator
	group singleflight.Group
}

// NewSessionValidator はSessionValidatorを生成する。
func NewSessionValidator(auth Authenticator) *SessionValidator {
	return &SessionValidator{auth: auth}
}

// Validate はCookieヘッダーの値からセッションを判定する。
//
//  1. Cookieがなければ Invalid
//  2. access-tokenでユーザー情報を取得できれば Valid。失敗したら3へ
//  3. refresh-tokenがあれば更新してユーザー情報を取得し Refreshed。失敗はエラーとして返す
//  4. それ以外は Invalid
func (v *SessionValidator) Validate(ctx context.Context, cookieHeader string) (SessionValidation, error) {
	if cookieHeader == "" {
		slog.DebugContext(ctx, "request has no cookie")
		return Invalid(), nil
	}

	cookies := ParseCookies(cookieHeader)
	if token, ok := cookies[AccessTokenCookie]; ok {
		user, err := v.auth.GetUser(ctx, Tokens{AccessToken: token})
		if err == nil {
			return Valid(user), nil
		}
		slog.DebugContext(ctx, "access token rejected", slog.String("error", err.Error()))
	}

	refreshToken, ok := cookies[RefreshTokenCookie]
	if !ok {
		return Invalid(), nil
	}

	// 同じリフレッシュトークンを持つ同時リクエストは1回の更新を共有する
	result, err, shared := v.group.Do(refreshToken, func() (any, error) {
		sctx := context.WithoutCancel(ctx)
		tokens, err := v.auth.RefreshTokens(sctx, refreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh tokens: %w", err)
		}
		user, err := v.auth.GetUser(sctx, tokens)
		if err != nil {
			return nil, fmt.Errorf("failed to get user with refreshed tokens: %w", err)
		}
		return refreshResult{user: user, tokens: tokens}, nil
	})
	if err != nil {
		return SessionValidation{}, err
	}
	if shared {
		slog.DebugContext(ctx, "token refresh shared with concurrent request")
	}

	r := result.(refreshResult)
	return Refreshed(r.user, r.tokens), nil
}
