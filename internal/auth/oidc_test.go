package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/weekly/internal/httpclient"
	"github.com/hitoshi/weekly/internal/model"
)

// --- モック定義 ---

type mockSession struct {
	getFn  func(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)
	postFn func(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)
}

func (m *mockSession) Get(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	if m.getFn != nil {
		return m.getFn(ctx, req)
	}
	return nil, errors.New("unexpected GET " + req.URL)
}

func (m *mockSession) Post(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	if m.postFn != nil {
		return m.postFn(ctx, req)
	}
	return nil, errors.New("unexpected POST " + req.URL)
}

const discoveryDoc = `{
    "authorization_endpoint": "https://example.com/auth",
    "token_endpoint": "https://example.com/token",
    "introspection_endpoint": "https://example.com/token/introspect",
    "userinfo_endpoint": "https://example.com/userinfo",
    "end_session_endpoint": "https://example.com/logout"
}`

var testOIDCConfig = OIDCConfig{
	ProviderURL:  "https://example.com/",
	ClientID:     "client id",
	ClientSecret: "client secret",
	RedirectURL:  "http://localhost/",
}

// newTestOIDC はディスカバリに成功するOpenIDConnectを生成し、
// 以降のGET/POSTをgetFn/postFnに委ねる。
func newTestOIDC(t *testing.T, getFn, postFn func(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)) *OpenIDConnect {
	t.Helper()
	session := &mockSession{
		getFn: func(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
			if req.URL == "https://example.com/.well-known/openid-configuration" {
				return &httpclient.Response{Status: 200, Body: discoveryDoc}, nil
			}
			if getFn == nil {
				t.Fatalf("unexpected GET %s", req.URL)
			}
			return getFn(ctx, req)
		},
		postFn: postFn,
	}
	o, err := NewOpenIDConnect(context.Background(), testOIDCConfig, session)
	if err != nil {
		t.Fatalf("NewOpenIDConnect() error = %v", err)
	}
	return o
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// --- テスト ---

func TestNewOpenIDConnect_DiscoversEndpoints(t *testing.T) {
	o := newTestOIDC(t, nil, nil)

	want := ProviderEndpoints{
		Authorization: "https://example.com/auth",
		Token:         "https://example.com/token",
		Introspection: "https://example.com/token/introspect",
		UserInfo:      "https://example.com/userinfo",
	}
	if got := o.Endpoints(); got != want {
		t.Errorf("Endpoints() = %+v, want %+v", got, want)
	}
}

func TestNewOpenIDConnect_StripsTrailingSlashes(t *testing.T) {
	var gotURL string
	session := &mockSession{getFn: func(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
		gotURL = req.URL
		return &httpclient.Response{Status: 200, Body: discoveryDoc}, nil
	}}
	cfg := testOIDCConfig
	cfg.ProviderURL = "https://example.com/realms/main///"

	if _, err := NewOpenIDConnect(context.Background(), cfg, session); err != nil {
		t.Fatalf("NewOpenIDConnect() error = %v", err)
	}
	if want := "https://example.com/realms/main/.well-known/openid-configuration"; gotURL != want {
		t.Errorf("discovery URL = %q, want %q", gotURL, want)
	}
}

func TestNewOpenIDConnect_ConstructionErrors(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		session httpclient.Session
		want    string
	}{
		{"nil session", "https://example.com", nil, "Null HTTP client"},
		{"empty prefix", "", &mockSession{}, "Empty auth prefix"},
		{"only slashes", "///", &mockSession{}, "Invalid auth prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testOIDCConfig
			cfg.ProviderURL = tt.prefix
			_, err := NewOpenIDConnect(context.Background(), cfg, tt.session)
			if errorMessage(err) != tt.want {
				t.Errorf("error = %q, want %q", errorMessage(err), tt.want)
			}
			var rerr *model.RuntimeError
			if !errors.As(err, &rerr) {
				t.Errorf("error = %T, want *model.RuntimeError", err)
			}
		})
	}
}

func TestNewOpenIDConnect_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"server error", 500, "", "Invalid OpenID configuration from server"},
		{"invalid json", 200, "invalid json", "Invalid OpenID configuration from server"},
		{"json array", 200, `["a"]`, "Invalid OpenID configuration from server"},
		{"missing token endpoint", 200, `{"authorization_endpoint":"a","introspection_endpoint":"i","userinfo_endpoint":"u"}`, "Invalid value of token_endpoint"},
		{"non-string userinfo", 200, `{"authorization_endpoint":"a","token_endpoint":"t","introspection_endpoint":"i","userinfo_endpoint":1}`, "Invalid value of userinfo_endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &mockSession{getFn: func(context.Context, *httpclient.Request) (*httpclient.Response, error) {
				return &httpclient.Response{Status: tt.status, Body: tt.body}, nil
			}}
			_, err := NewOpenIDConnect(context.Background(), testOIDCConfig, session)
			if errorMessage(err) != tt.want {
				t.Errorf("error = %q, want %q", errorMessage(err), tt.want)
			}
		})
	}
}

func TestNewOpenIDConnect_TransportFailurePropagates(t *testing.T) {
	session := &mockSession{getFn: func(context.Context, *httpclient.Request) (*httpclient.Response, error) {
		return nil, model.NewRuntimeError("server died")
	}}
	_, err := NewOpenIDConnect(context.Background(), testOIDCConfig, session)
	var rerr *model.RuntimeError
	if !errors.As(err, &rerr) || rerr.Message != "server died" {
		t.Errorf("error = %v, want wrapped RuntimeError(server died)", err)
	}
}

func TestOpenIDConnect_InitialURL(t *testing.T) {
	o := newTestOIDC(t, nil, nil)
	want := "https://example.com/auth?response_type=code&client_id=client%20id&redirect_uri=http%3A%2F%2Flocalhost%2F&scope=openid%20profile"
	if got := o.InitialURL(); got != want {
		t.Errorf("InitialURL() = %q, want %q", got, want)
	}
}

func TestOpenIDConnect_Initiate_ReturnsResponseAsIs(t *testing.T) {
	o := newTestOIDC(t, func(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
		if !strings.HasPrefix(req.URL, "https://example.com/auth?") {
			t.Errorf("Initiate URL = %q", req.URL)
		}
		return &httpclient.Response{Status: 500, Body: ""}, nil
	}, nil)

	res, err := o.Initiate(context.Background())
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if res.Status != 500 || res.Body != "" {
		t.Errorf("Initiate() = %+v, want status 500 with empty body", res)
	}
}

func TestOpenIDConnect_Authenticate(t *testing.T) {
	o := newTestOIDC(t, nil, func(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
		if req.URL != "https://example.com/token" {
			t.Errorf("URL = %q", req.URL)
		}
		wantBody := "grant_type=authorization_code&code=some%20code&redirect_uri=http%3A%2F%2Flocalhost%2F&client_id=client%20id&client_secret=client%20secret"
		if req.Body != wantBody {
			t.Errorf("Body = %q, want %q", req.Body, wantBody)
		}
		if got := req.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", got)
		}
		if got := req.Header.Get("Authorization"); got != "Basic client%20secret" {
			t.Errorf("Authorization = %q, want %q", got, "Basic client%20secret")
		}
		return &httpclient.Response{Status: 200, Body: `{
			"access_token": "aaa",
			"token_type": "Bearer",
			"expires_in": 3600,
			"refresh_token": "bbb",
			"id_token": "ccc"
		}`}, nil
	})

	tokens, err := o.Authenticate(context.Background(), "some code")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if tokens.AccessToken != "aaa" || tokens.RefreshToken != "bbb" {
		t.Errorf("tokens = %+v", tokens)
	}
	if d := time.Until(tokens.Expiration) - time.Hour; d > time.Second || d < -time.Second {
		t.Errorf("Expiration = %v, want within 1s of now+1h", tokens.Expiration)
	}
	if !tokens.RefreshExpiration.IsZero() {
		t.Errorf("RefreshExpiration = %v, want zero", tokens.RefreshExpiration)
	}
}

func TestOpenIDConnect_Authenticate_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"upstream error", 400, `{"error":"invalid_grant"}`, 400, `{"error":"invalid_grant"}`},
		{"upstream 500", 500, "", 500, ""},
		{"invalid json", 200, "<html>", 500, "Invalid token response"},
		{"missing access token", 200, `{"refresh_token":"bbb"}`, 500, "Invalid value of access_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOIDC(t, nil, func(context.Context, *httpclient.Request) (*httpclient.Response, error) {
				return &httpclient.Response{Status: tt.status, Body: tt.body}, nil
			})
			_, err := o.Authenticate(context.Background(), "code")
			if err == nil {
				t.Fatal("expected error")
			}
			status, msg := model.ResponseOf(err)
			if status != tt.wantStatus || msg != tt.wantMsg {
				t.Errorf("ResponseOf(err) = (%d, %q), want (%d, %q)", status, msg, tt.wantStatus, tt.wantMsg)
			}
		})
	}
}

func TestOpenIDConnect_Authenticate_TransportFailure(t *testing.T) {
	o := newTestOIDC(t, nil, func(context.Context, *httpclient.Request) (*httpclient.Response, error) {
		return nil, model.NewRuntimeError("connection refused")
	})
	_, err := o.Authenticate(context.Background(), "code")
	var rerr *model.RuntimeError
	if !errors.As(err, &rerr) {
		t.Errorf("error = %v, want RuntimeError", err)
	}
}

func TestOpenIDConnect_RefreshTokens(t *testing.T) {
	o := newTestOIDC(t, nil, func(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
		wantBody := "client_id=client%20id&client_secret=client%20secret&grant_type=refresh_token&refresh_token=r%2Bt%3D&scope=openid%20profile"
		if req.Body != wantBody {
			t.Errorf("Body = %q, want %q", req.Body, wantBody)
		}
		if got := req.Header.Get("Authorization"); got != "Basic client%20secret" {
			t.Errorf("Authorization = %q", got)
		}
		return &httpclient.Response{Status: 200, Body: `{"access_token":"new","refresh_token":"newer","expires_in":60,"refresh_expires_in":1800}`}, nil
	})
	now := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	tokens, err := o.RefreshTokens(context.Background(), "r+t=")
	if err != nil {
		t.Fatalf("RefreshTokens() error = %v", err)
	}
	want := Tokens{
		AccessToken:       "new",
		RefreshToken:      "newer",
		Expiration:        now.Add(time.Minute),
		RefreshExpiration: now.Add(30 * time.Minute),
	}
	if tokens != want {
		t.Errorf("RefreshTokens() = %+v, want %+v", tokens, want)
	}
}

func TestOpenIDConnect_GetUser(t *testing.T) {
	tests := []struct {
		name string
		body string
		want UserInfo
	}{
		{"name claim", `{"sub":"123","name":"mw","preferred_username":"other"}`, UserInfo{ID: "123", Name: "mw"}},
		{"preferred username", `{"sub":"123","preferred_username":"mw"}`, UserInfo{ID: "123", Name: "mw"}},
		{"no name", `{"sub":"123"}`, UserInfo{ID: "123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOIDC(t, func(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
				if req.URL != "https://example.com/userinfo" {
					t.Errorf("URL = %q", req.URL)
				}
				if got := req.Header.Get("Authorization"); got != "Bearer a%2Fb%20c" {
					t.Errorf("Authorization = %q, want %q", got, "Bearer a%2Fb%20c")
				}
				return &httpclient.Response{Status: 200, Body: tt.body}, nil
			}, nil)

			user, err := o.GetUser(context.Background(), Tokens{AccessToken: "a/b c"})
			if err != nil {
				t.Fatalf("GetUser() error = %v", err)
			}
			if user != tt.want {
				t.Errorf("GetUser() = %+v, want %+v", user, tt.want)
			}
		})
	}
}

func TestOpenIDConnect_GetUser_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"unauthorized", http.StatusUnauthorized, "token expired", 401, "token expired"},
		{"invalid json", 200, "nope", 500, "Invalid user info response"},
		{"missing sub", 200, `{"name":"mw"}`, 500, "Invalid value of sub"},
		{"non-string name", 200, `{"sub":"1","name":42,"preferred_username":"mw"}`, 500, "Invalid value of name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOIDC(t, func(context.Context, *httpclient.Request) (*httpclient.Response, error) {
				return &httpclient.Response{Status: tt.status, Body: tt.body}, nil
			}, nil)
			_, err := o.GetUser(context.Background(), Tokens{AccessToken: "aaa"})
			status, msg := model.ResponseOf(err)
			if status != tt.wantStatus || msg != tt.wantMsg {
				t.Errorf("ResponseOf(err) = (%d, %q), want (%d, %q)", status, msg, tt.wantStatus, tt.wantMsg)
			}
		})
	}
}

func TestTokensFromJSON_IgnoresNonIntegerExpiry(t *testing.T) {
	now := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	tokens, err := tokensFromJSON(`{"access_token":"a","expires_in":"3600","refresh_expires_in":1.5,"refresh_token":7}`, now)
	if err != nil {
		t.Fatalf("tokensFromJSON() error = %v", err)
	}
	if !tokens.Expiration.IsZero() || !tokens.RefreshExpiration.IsZero() {
		t.Errorf("non-integer expiry should be treated as absent: %+v", tokens)
	}
	if tokens.RefreshToken != "" {
		t.Errorf("non-string refresh_token should be treated as absent: %q", tokens.RefreshToken)
	}
}

func TestEncode(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		"AZaz09-._~":        "AZaz09-._~",
		"client id":         "client%20id",
		"http://localhost/": "http%3A%2F%2Flocalhost%2F",
		"a+b=c&d":           "a%2Bb%3Dc%26d",
		"日本":                "%E6%97%A5%E6%9C%AC",
	}
	for in, want := range tests {
		if got := encode(in); got != want {
			t.Errorf("encode(%q) = %q, want %q", in, got, want)
		}
	}
}
