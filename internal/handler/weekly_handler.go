package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/weekly/internal/middleware"
	"github.com/hitoshi/weekly/internal/model"
	"github.com/hitoshi/weekly/internal/weekly"
)

// WeeklyServiceInterface は週報ハンドラーが必要とするサービスインターフェース。
type WeeklyServiceInterface interface {
	OneYear(ctx context.Context, username string) ([]model.WeeklyPost, error)
	Week(ctx context.Context, username string, date time.Time) (*model.WeeklyPost, error)
	Draft(ctx context.Context, username string, date time.Time) (model.WeeklyPost, error)
	Update(ctx context.Context, username string, date time.Time, content string) error
}

// WeeklyRecorder は週報の保存をメトリクスに記録する。
type WeeklyRecorder interface {
	RecordWeeklyUpdated()
}

// WeeklyHandler は週報の閲覧と編集のHTTPハンドラー。
type WeeklyHandler struct {
	service  WeeklyServiceInterface
	renderer *weekly.Renderer
	recorder WeeklyRecorder
}

// NewWeeklyHandler はWeeklyHandlerを生成する。recorderはnilでもよい。
func NewWeeklyHandler(service WeeklyServiceInterface, renderer *weekly.Renderer, recorder WeeklyRecorder) *WeeklyHandler {
	return &WeeklyHandler{
		service:  service,
		renderer: renderer,
		recorder: recorder,
	}
}

// weekliesPage は週報一覧ページのテンプレートデータ。
type weekliesPage struct {
	Weeklies    []weekly.PostView
	Username    string
	SessionUser string
	ThisURL     string
}

// weeklyPage は週報1件のページのテンプレートデータ。
type weeklyPage struct {
	Weekly      weekly.PostView
	Username    string
	SessionUser string
	ThisURL     string
}

// sessionUser はログイン中のユーザー名を返す。未ログインなら空文字。
func sessionUser(r *http.Request) string {
	session := middleware.SessionFromContext(r.Context())
	if !session.Authenticated() {
		return ""
	}
	return session.User.Name
}

// UserWeeklies は直近1年分の週報を新しい順に表示する。
// GET /weekly/{username}
func (h *WeeklyHandler) UserWeeklies(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	posts, err := h.service.OneYear(r.Context(), username)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	page := weekliesPage{
		Weeklies:    h.renderer.Views(posts),
		Username:    username,
		SessionUser: sessionUser(r),
		ThisURL:     r.URL.RequestURI(),
	}
	if err := renderPage(w, "weeklies.html", page); err != nil {
		middleware.WriteError(w, r, fmt.Errorf("failed to render weeklies: %w", err))
	}
}

// UserWeekly は指定日に始まる週の週報を表示する。
// GET /weekly/{username}/{date}
func (h *WeeklyHandler) UserWeekly(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	post, err := h.service.Week(r.Context(), username, date)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	page := weeklyPage{
		Weekly:      h.renderer.View(*post),
		Username:    username,
		SessionUser: sessionUser(r),
		ThisURL:     r.URL.RequestURI(),
	}
	if err := renderPage(w, "weekly.html", page); err != nil {
		middleware.WriteError(w, r, fmt.Errorf("failed to render weekly: %w", err))
	}
}

// EditForm は本人の週報の編集フォームを表示する。
// GET /edit/{username}/{date}
func (h *WeeklyHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	username, date, ok := h.authorizeEdit(w, r)
	if !ok {
		return
	}

	post, err := h.service.Draft(r.Context(), username, date)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	page := weeklyPage{
		Weekly:      h.renderer.View(post),
		Username:    username,
		SessionUser: username,
		ThisURL:     r.URL.RequestURI(),
	}
	if err := renderPage(w, "edit.html", page); err != nil {
		middleware.WriteError(w, r, fmt.Errorf("failed to render edit form: %w", err))
	}
}

// Edit はフォームのcontentをMarkdownの週報として保存し、トップへリダイレクトする。
// POST /edit/{username}/{date}
func (h *WeeklyHandler) Edit(w http.ResponseWriter, r *http.Request) {
	username, date, ok := h.authorizeEdit(w, r)
	if !ok {
		return
	}

	if err := h.service.Update(r.Context(), username, date, r.FormValue("content")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if h.recorder != nil {
		h.recorder.RecordWeeklyUpdated()
	}

	http.Redirect(w, r, URLFor("index", ""), http.StatusFound)
}

// Preview はフォームのcontentを描画したHTML断片を返す。編集画面のプレビュー用。
// POST /preview
func (h *WeeklyHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if sessionUser(r) == "" {
		middleware.WriteText(w, http.StatusUnauthorized, "")
		return
	}

	html, err := h.renderer.Render(model.WeeklyPost{
		Format:     model.FormatMarkdown,
		RawContent: r.FormValue("content"),
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

// authorizeEdit は編集対象の日付を解釈し、ログイン中のユーザー本人であることを確認する。
// 日付が不正なら400、本人でなければ401、月曜でなければ404を書き込んでfalseを返す。
func (h *WeeklyHandler) authorizeEdit(w http.ResponseWriter, r *http.Request) (string, time.Time, bool) {
	username := chi.URLParam(r, "username")
	date, ok := parseDateParam(w, r)
	if !ok {
		return "", time.Time{}, false
	}

	if user := sessionUser(r); user == "" || user != username {
		middleware.WriteText(w, http.StatusUnauthorized, "")
		return "", time.Time{}, false
	}

	if !model.IsWeekBegin(date) {
		middleware.WriteText(w, http.StatusNotFound, "")
		return "", time.Time{}, false
	}
	return username, date, true
}

// parseDateParam はURLのdateをYYYY-MM-DDとして解釈する。不正なら400を書き込む。
func parseDateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := model.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		middleware.WriteText(w, http.StatusBadRequest, err.Error())
		return time.Time{}, false
	}
	return date, true
}
