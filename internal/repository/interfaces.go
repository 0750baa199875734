// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/weekly/internal/model"
)

// WeeklyRepository はユーザーと週報の永続化インターフェース。
type WeeklyRepository interface {
	// GetUserID はユーザー名からIDを取得する。存在しない場合はfalseを返す。
	GetUserID(ctx context.Context, name string) (int64, bool, error)

	// CreateUser はユーザーを作成してIDを返す。
	CreateUser(ctx context.Context, name string) (int64, error)

	// GetWeeklies は [begin, end) に週の始まりがある週報をweek_begin昇順で返す。
	// ユーザーが存在しない場合は空のスライスを返す。
	GetWeeklies(ctx context.Context, username string, begin, end time.Time) ([]model.WeeklyPost, error)

	// GetWeekly はweekBeginちょうどの週報を取得する。見つからない場合はnilを返す。
	GetWeekly(ctx context.Context, username string, weekBegin time.Time) (*model.WeeklyPost, error)

	// UpdateWeekly は (ユーザー, week_begin) をキーに週報をUPSERTする。
	// ユーザーが存在しない場合は作成する。
	// post.WeekBeginが月曜0時（UTC）でない場合はエラーを返す。
	UpdateWeekly(ctx context.Context, username string, post *model.WeeklyPost) error
}
