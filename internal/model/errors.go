// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"net/http"
)

// RuntimeError はローカル/内部の失敗を表す。
// 設定不備、パース失敗、ストレージエラー、上流への通信失敗などが該当する。
type RuntimeError struct {
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *RuntimeError) Error() string {
	return e.Message
}

// HTTPError は上流のHTTP失敗を表す。
// ステータスコードと本文はエンドクライアントへそのまま中継される。
type HTTPError struct {
	Status  int
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// NewRuntimeError はRuntimeErrorを生成する。
func NewRuntimeError(format string, args ...any) *RuntimeError {
	return &RuntimeError{Message: fmt.Sprintf(format, args...)}
}

// NewHTTPError はHTTPErrorを生成する。
func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

// ResponseOf はエラーをHTTPレスポンスのステータスと本文に変換する。
// HTTPErrorはそのステータスとメッセージを、それ以外は500とエラーメッセージを返す。
func ResponseOf(err error) (int, string) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status, httpErr.Message
	}
	return http.StatusInternalServerError, err.Error()
}
