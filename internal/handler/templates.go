package handler

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed statics
var staticFS embed.FS

// URLFor は名前付きルートのパスを返す。
// weeklyはユーザー名または"ユーザー名/YYYY-MM-DD"、editは"ユーザー名/YYYY-MM-DD"、
// staticsはファイル名を引数に取る。未知の名前は空文字を返す。
func URLFor(name, arg string) string {
	switch name {
	case "index":
		return "/"
	case "login":
		return "/login"
	case "openid-redirect":
		return "/openid-redirect"
	case "weekly":
		return "/weekly/" + arg
	case "edit":
		return "/edit/" + arg
	case "preview":
		return "/preview"
	case "statics":
		return "/statics/" + arg
	}
	return ""
}

var pages = template.Must(
	template.New("pages").
		Funcs(template.FuncMap{"url_for": URLFor}).
		ParseFS(templateFS, "templates/*.html"),
)

// renderPage はテンプレートを描画してHTMLレスポンスとして書き込む。
// 描画に失敗した場合は何も書かずにエラーを返す。
func renderPage(w http.ResponseWriter, name string, data any) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

// staticHandler は埋め込みの静的ファイルを配信するハンドラーを返す。
func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "statics")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/statics/", http.FileServer(http.FS(sub)))
}
