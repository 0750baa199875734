package auth

import (
	"net/http"
	"strings"
	"time"
)

const (
	// AccessTokenCookie はアクセストークンを保持するCookie名。
	AccessTokenCookie = "access-token"
	// RefreshTokenCookie はリフレッシュトークンを保持するCookie名。
	RefreshTokenCookie = "refresh-token"

	defaultAccessMaxAge  = 300
	defaultRefreshMaxAge = 1800
)

// CookieOptions はトークンCookieの属性。
type CookieOptions struct {
	// Harden はHttpOnlyとSameSite=Laxを付与する。
	// 無効の場合はセキュリティ属性を一切付けない。
	Harden bool
	// Secure はHardenが有効なときにSecure属性を付与する。
	Secure bool
}

// ParseCookies はCookieヘッダーの値を名前と値の対応に分解する。
// 各セグメントの先頭の空白は読み飛ばし、=を含まないセグメントは無視する。
// 値はパーセントデコードする。同名のCookieは最初のものを採用する。
func ParseCookies(header string) map[string]string {
	cookies := make(map[string]string)
	for _, segment := range strings.Split(header, ";") {
		segment = strings.TrimLeft(segment, " ")
		name, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		if _, exists := cookies[name]; exists {
			continue
		}
		cookies[name] = decode(value)
	}
	return cookies
}

// TokenCookies はトークンをSet-Cookie用のCookieに変換する。
// Max-Ageは有効期限までの秒数で、期限がなければアクセストークンは300秒、
// リフレッシュトークンは1800秒とする。秒数が0以下ならCookieを削除する。
func TokenCookies(tokens Tokens, opts CookieOptions, now time.Time) []*http.Cookie {
	cookies := []*http.Cookie{
		newTokenCookie(AccessTokenCookie, tokens.AccessToken, maxAge(tokens.Expiration, defaultAccessMaxAge, now), opts),
	}
	if tokens.RefreshToken != "" {
		cookies = append(cookies,
			newTokenCookie(RefreshTokenCookie, tokens.RefreshToken, maxAge(tokens.RefreshExpiration, defaultRefreshMaxAge, now), opts))
	}
	return cookies
}

// SetTokenCookies はトークンをCookieとしてレスポンスに設定する。
func SetTokenCookies(w http.ResponseWriter, tokens Tokens, opts CookieOptions) {
	for _, c := range TokenCookies(tokens, opts, time.Now()) {
		http.SetCookie(w, c)
	}
}

func maxAge(expiration time.Time, fallback int, now time.Time) int {
	if expiration.IsZero() {
		return fallback
	}
	return int(expiration.Sub(now) / time.Second)
}

func newTokenCookie(name, token string, age int, opts CookieOptions) *http.Cookie {
	c := &http.Cookie{
		Name:   name,
		Value:  encode(token),
		Path:   "/",
		MaxAge: age,
	}
	if age <= 0 {
		// http.CookieはMaxAge<0を"Max-Age=0"として出力する
		c.MaxAge = -1
	}
	if opts.Harden {
		c.HttpOnly = true
		c.SameSite = http.SameSiteLaxMode
		c.Secure = opts.Secure
	}
	return c
}
