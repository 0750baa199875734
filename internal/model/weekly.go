package model

import (
	"fmt"
	"time"
)

// Format は週報本文の記法を表す。
type Format int

const (
	// FormatMarkdown はMarkdown記法を示す。
	FormatMarkdown Format = 0
)

// IsValid は永続化された整数値が既知のFormatかどうかを判定する。
func (f Format) IsValid() bool {
	switch f {
	case FormatMarkdown:
		return true
	}
	return false
}

// String はログ出力用の名前を返す。
func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Week は1週間の長さ。
const Week = 7 * 24 * time.Hour

// DateLayout はURLで使用する日付の書式（YYYY-MM-DD）。
const DateLayout = "2006-01-02"

// WeeklyPost は1ユーザーの1週間分の週報を表す。
// (Author, WeekBegin) で一意に識別される。
type WeeklyPost struct {
	Author     string
	Format     Format
	RawContent string
	// WeekBegin は週の始まり（月曜0時UTC）。
	WeekBegin  time.Time
	UpdateTime time.Time
	// Language はBCP 47言語タグ（RFC 5646）。
	Language string
}

// WeekBegin はtを含む週の月曜0時（UTC）を返す。
func WeekBegin(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	// time.Sunday == 0 のため、月曜起点のオフセットに変換する
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// IsWeekBegin はtがちょうど月曜0時（UTC）かどうかを判定する。
func IsWeekBegin(t time.Time) bool {
	return t.Equal(WeekBegin(t))
}

// ParseDate はYYYY-MM-DD形式の文字列をUTCの0時として解釈する。
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, NewRuntimeError("Invalid date: %s", s)
	}
	return t, nil
}
