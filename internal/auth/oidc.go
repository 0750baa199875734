// Package auth はOpenID Connectの認可コードフローとトークンによるセッション判定を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/weekly/internal/httpclient"
	"github.com/hitoshi/weekly/internal/model"
)

const (
	discoveryPath = "/.well-known/openid-configuration"
	scope         = "openid%20profile"
	formType      = "application/x-www-form-urlencoded"
)

// Authenticator はOIDCクライアントのインターフェース。
// セッション判定とハンドラはこのインターフェースにのみ依存する。
type Authenticator interface {
	// InitialURL は認可エンドポイントへのログインURLを返す。
	InitialURL() string
	// Initiate はログインURLにGETを送る。診断用。
	Initiate(ctx context.Context) (*httpclient.Response, error)
	// Authenticate は認可コードをトークンに交換する。
	Authenticate(ctx context.Context, code string) (Tokens, error)
	// GetUser はアクセストークンでユーザー情報を取得する。
	GetUser(ctx context.Context, tokens Tokens) (UserInfo, error)
	// RefreshTokens はリフレッシュトークンで新しいトークンを取得する。
	RefreshTokens(ctx context.Context, refreshToken string) (Tokens, error)
}

// OIDCConfig はOIDCクライアントの設定。
type OIDCConfig struct {
	// ProviderURL はディスカバリ文書の前に付くURL。末尾のスラッシュは無視する。
	ProviderURL  string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// ProviderEndpoints はディスカバリで取得したエンドポイント。生成後は変更しない。
type ProviderEndpoints struct {
	Authorization string
	Token         string
	Introspection string
	UserInfo      string
}

// OpenIDConnect はOIDCプロバイダーとの通信を行う。
// 生成後は読み取り専用のため、複数のgoroutineから共有できる。
type OpenIDConnect struct {
	config    OIDCConfig
	endpoints ProviderEndpoints
	session   httpclient.Session
	now       func() time.Time
}

// NewOpenIDConnect はディスカバリ文書を取得してOpenIDConnectを生成する。
// 失敗は起動時の致命的エラーとして扱う。
func NewOpenIDConnect(ctx context.Context, config OIDCConfig, session httpclient.Session) (*OpenIDConnect, error) {
	if session == nil {
		return nil, model.NewRuntimeError("Null HTTP client")
	}
	prefix := config.ProviderURL
	if prefix == "" {
		return nil, model.NewRuntimeError("Empty auth prefix")
	}
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return nil, model.NewRuntimeError("Invalid auth prefix")
	}

	res, err := session.Get(ctx, &httpclient.Request{URL: prefix + discoveryPath})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OpenID configuration: %w", err)
	}
	obj, ok := parseJSONObject(res.Body)
	if !res.OK() || !ok {
		return nil, model.NewRuntimeError("Invalid OpenID configuration from server")
	}

	var ep ProviderEndpoints
	for _, f := range []struct {
		name string
		dest *string
	}{
		{"authorization_endpoint", &ep.Authorization},
		{"token_endpoint", &ep.Token},
		{"introspection_endpoint", &ep.Introspection},
		{"userinfo_endpoint", &ep.UserInfo},
	} {
		if *f.dest, err = obj.str(f.name); err != nil {
			return nil, err
		}
	}

	slog.Info("OpenID configuration discovered",
		slog.String("authorization_endpoint", ep.Authorization),
		slog.String("token_endpoint", ep.Token),
		slog.String("userinfo_endpoint", ep.UserInfo),
	)

	return &OpenIDConnect{
		config:    config,
		endpoints: ep,
		session:   session,
		now:       time.Now,
	}, nil
}

// Endpoints はディスカバリで取得したエンドポイントを返す。
func (o *OpenIDConnect) Endpoints() ProviderEndpoints {
	return o.endpoints
}

// InitialURL は認可エンドポイントへのログインURLを返す。
func (o *OpenIDConnect) InitialURL() string {
	return fmt.Sprintf("%s?response_type=code&client_id=%s&redirect_uri=%s&scope=%s",
		o.endpoints.Authorization, encode(o.config.ClientID), encode(o.config.RedirectURL), scope)
}

// Initiate はログインURLにGETを送り、レスポンスをそのまま返す。
func (o *OpenIDConnect) Initiate(ctx context.Context) (*httpclient.Response, error) {
	return o.session.Get(ctx, &httpclient.Request{URL: o.InitialURL()})
}

// tokenHeader はトークンエンドポイントへのリクエストヘッダーを組み立てる。
// Basicにはbase64ではなくパーセントエンコードしたクライアントシークレットを載せる。
// 既存のプロバイダー設定との互換のため、この形式を変えないこと。
func (o *OpenIDConnect) tokenHeader() http.Header {
	return http.Header{
		"Content-Type":  {formType},
		"Authorization": {"Basic " + encode(o.config.ClientSecret)},
	}
}

// Authenticate は認可コードをトークンに交換する。
func (o *OpenIDConnect) Authenticate(ctx context.Context, code string) (Tokens, error) {
	body := fmt.Sprintf("grant_type=authorization_code&code=%s&redirect_uri=%s&client_id=%s&client_secret=%s",
		encode(code), encode(o.config.RedirectURL), encode(o.config.ClientID), encode(o.config.ClientSecret))
	return o.requestTokens(ctx, body)
}

// RefreshTokens はリフレッシュトークンで新しいトークンを取得する。
func (o *OpenIDConnect) RefreshTokens(ctx context.Context, refreshToken string) (Tokens, error) {
	body := fmt.Sprintf("client_id=%s&client_secret=%s&grant_type=refresh_token&refresh_token=%s&scope=%s",
		encode(o.config.ClientID), encode(o.config.ClientSecret), encode(refreshToken), scope)
	return o.requestTokens(ctx, body)
}

func (o *OpenIDConnect) requestTokens(ctx context.Context, body string) (Tokens, error) {
	res, err := o.session.Post(ctx, &httpclient.Request{
		URL:    o.endpoints.Token,
		Header: o.tokenHeader(),
		Body:   body,
	})
	if err != nil {
		return Tokens{}, err
	}
	if res.Status != http.StatusOK {
		return Tokens{}, model.NewHTTPError(res.Status, res.Body)
	}
	return tokensFromJSON(res.Body, o.now())
}

// GetUser はアクセストークンでユーザー情報を取得する。
func (o *OpenIDConnect) GetUser(ctx context.Context, tokens Tokens) (UserInfo, error) {
	res, err := o.session.Get(ctx, &httpclient.Request{
		URL:    o.endpoints.UserInfo,
		Header: http.Header{"Authorization": {"Bearer " + encode(tokens.AccessToken)}},
	})
	if err != nil {
		return UserInfo{}, err
	}
	if !res.OK() {
		return UserInfo{}, model.NewHTTPError(res.Status, res.Body)
	}
	return userFromJSON(res.Body)
}

// compile-time interface check
var _ Authenticator = (*OpenIDConnect)(nil)
