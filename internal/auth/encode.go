package auth

import (
	"net/url"
	"strings"
)

// encode はRFC 3986の非予約文字（A-Z a-z 0-9 - . _ ~）以外をパーセントエンコードする。
// 空白は%20になる。
func encode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// decode はパーセントエンコードを元に戻す。デコードできない値はそのまま返す。
func decode(s string) string {
	v, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return v
}
