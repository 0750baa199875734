// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は週報のMarkdownから生成したHTMLをサニタイズし、
// 本文に埋め込まれたスクリプトなどからユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// Markdownが生成しうるタグと属性のみを通過させる。
package security

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// 週報の表示時に使用される。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// codeLanguageClass はフェンスコードブロックの言語指定で付くclass属性。
var codeLanguageClass = regexp.MustCompile(`^language-[\w+-]+$`)

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: 見出し、段落、リスト、引用、コード、表、強調、打ち消し線、リンク、画像
//   - 禁止タグ: script, iframe, style, form および全てのon*イベント属性
//   - URL: http, https, mailto と相対URL（他の週報へのリンク用）
//   - aタグ: 外部リンクに target="_blank" と rel="noopener noreferrer" を付与
//   - codeタグ: language-* のclassのみ許可
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
		"table", "thead", "tbody", "tr",
	)

	// 表のセル揃え（GFM）
	p.AllowAttrs("align").Matching(regexp.MustCompile(`^(left|center|right)$`)).OnElements("th", "td")
	p.AllowElements("th", "td")

	p.AllowAttrs("start").Matching(bluemonday.Integer).OnElements("ol")
	p.AllowAttrs("class").Matching(codeLanguageClass).OnElements("code")

	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt", "title").OnElements("img")

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
