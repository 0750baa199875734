package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/weekly/internal/model"
)

// WriteError はエラーをプレーンテキストのレスポンスとして書き込む。
// HTTPErrorはそのステータスと本文を、それ以外は500とエラーメッセージを返す。
// 500はログにも記録する。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := model.ResponseOf(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
			slog.String("request_id", RequestIDFromContext(r.Context())),
		)
	}
	WriteText(w, status, message)
}

// WriteText はステータスとプレーンテキストの本文を書き込む。
func WriteText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
