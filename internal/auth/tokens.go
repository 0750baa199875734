package auth

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hitoshi/weekly/internal/model"
)

// Tokens はOIDCプロバイダーから発行されたトークン。
// 空文字列とゼロ値の時刻は「なし」を表す。サーバー側には保存しない。
type Tokens struct {
	AccessToken       string
	RefreshToken      string
	Expiration        time.Time
	RefreshExpiration time.Time
}

// UserInfo はuserinfoエンドポイントから取得したユーザー情報。
type UserInfo struct {
	// ID はsubクレーム。
	ID string
	// Name はnameクレーム、なければpreferred_username。
	Name string
}

// jsonObject はJSONオブジェクトをプロパティ単位で検査するための型。
type jsonObject map[string]any

// parseJSONObject はJSONオブジェクトとしてbodyを解釈する。
// 数値はjson.Numberとして保持する。
func parseJSONObject(body string) (jsonObject, bool) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var obj jsonObject
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// has はプロパティの有無を返す。
func (o jsonObject) has(name string) bool {
	_, ok := o[name]
	return ok
}

// str は文字列プロパティを取得する。存在しないか文字列でなければエラーを返す。
func (o jsonObject) str(name string) (string, error) {
	if v, ok := o[name].(string); ok {
		return v, nil
	}
	return "", model.NewRuntimeError("Invalid value of %s", name)
}

// integer は整数プロパティを取得する。存在しないか整数でなければfalseを返す。
func (o jsonObject) integer(name string) (int64, bool) {
	n, ok := o[name].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// tokensFromJSON はトークンエンドポイントの200レスポンスを解釈する。
// access_tokenは必須で、それ以外は任意。有効期限はnowからの絶対時刻に変換する。
func tokensFromJSON(body string, now time.Time) (Tokens, error) {
	obj, ok := parseJSONObject(body)
	if !ok {
		return Tokens{}, model.NewRuntimeError("Invalid token response")
	}

	var tokens Tokens
	var err error
	if tokens.AccessToken, err = obj.str("access_token"); err != nil {
		return Tokens{}, err
	}
	if v, err := obj.str("refresh_token"); err == nil {
		tokens.RefreshToken = v
	}
	if sec, ok := obj.integer("expires_in"); ok {
		tokens.Expiration = now.Add(time.Duration(sec) * time.Second)
	}
	if sec, ok := obj.integer("refresh_expires_in"); ok {
		tokens.RefreshExpiration = now.Add(time.Duration(sec) * time.Second)
	}
	return tokens, nil
}

// userFromJSON はuserinfoエンドポイントのレスポンスを解釈する。
func userFromJSON(body string) (UserInfo, error) {
	obj, ok := parseJSONObject(body)
	if !ok {
		return UserInfo{}, model.NewRuntimeError("Invalid user info response")
	}

	var user UserInfo
	var err error
	if user.ID, err = obj.str("sub"); err != nil {
		return UserInfo{}, err
	}
	// nameが存在するのに文字列でない場合はpreferred_usernameに切り替えずエラーにする
	switch {
	case obj.has("name"):
		user.Name, err = obj.str("name")
	case obj.has("preferred_username"):
		user.Name, err = obj.str("preferred_username")
	}
	if err != nil {
		return UserInfo{}, err
	}
	return user, nil
}
