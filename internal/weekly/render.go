package weekly

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hitoshi/weekly/internal/model"
	"github.com/hitoshi/weekly/internal/security"
)

// updateLayout は更新日時の表示形式（秒精度）。
const updateLayout = "2006-01-02 15:04:05"

// Renderer は週報本文をHTMLに変換する。
// goldmarkとサニタイザはどちらも共有して使えるため、1つのRendererを使い回してよい。
type Renderer struct {
	markdown  goldmark.Markdown
	sanitizer security.ContentSanitizerService
}

// NewRenderer はRendererを生成する。
func NewRenderer(sanitizer security.ContentSanitizerService) *Renderer {
	return &Renderer{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
		sanitizer: sanitizer,
	}
}

// Render は週報本文を記法に従ってHTMLに変換する。
// 本文中の生HTMLは出力せず、結果はサニタイズ済み。
func (r *Renderer) Render(post model.WeeklyPost) (template.HTML, error) {
	switch post.Format {
	case model.FormatMarkdown:
		var buf bytes.Buffer
		if err := r.markdown.Convert([]byte(post.RawContent), &buf); err != nil {
			return "", model.NewRuntimeError("Failed to render Markdown: %v", err)
		}
		return template.HTML(r.sanitizer.Sanitize(buf.String())), nil
	default:
		return "", model.NewRuntimeError("Unknown weekly format: %s", post.Format)
	}
}

// PostView はテンプレートに渡す週報の表示用データ。
type PostView struct {
	// WeekStr は "2024 week 2" のような週の表示名。
	WeekStr   string
	DateStr   string
	WeekBegin string
	WeekEnd   string
	Update    string
	// Content は描画済みの本文。
	Content template.HTML
	// RawContent は編集フォーム用の元の本文。
	RawContent string
	Lang       string
	Author     string
}

// View は週報を表示用データに変換する。
// 描画に失敗した場合はエラーメッセージを本文として表示する。
func (r *Renderer) View(post model.WeeklyPost) PostView {
	content, err := r.Render(post)
	if err != nil {
		content = template.HTML(template.HTMLEscapeString(err.Error()))
	}

	begin := post.WeekBegin.UTC()
	v := PostView{
		WeekStr:    fmt.Sprintf("%d week %d", begin.Year(), (begin.YearDay()-1)/7+1),
		DateStr:    begin.Format(model.DateLayout),
		WeekBegin:  begin.Format(model.DateLayout),
		WeekEnd:    begin.AddDate(0, 0, 6).Format(model.DateLayout),
		Content:    content,
		RawContent: post.RawContent,
		Lang:       post.Language,
		Author:     post.Author,
	}
	if !post.UpdateTime.IsZero() {
		v.Update = post.UpdateTime.UTC().Truncate(time.Second).Format(updateLayout)
	}
	return v
}

// Views は週報の列を表示用データの列に変換する。
func (r *Renderer) Views(posts []model.WeeklyPost) []PostView {
	views := make([]PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, r.View(p))
	}
	return views
}
