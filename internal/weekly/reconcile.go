// Package weekly は週報の一覧生成、表示用の変換、編集を提供する。
package weekly

import (
	"time"

	"github.com/hitoshi/weekly/internal/model"
)

// Reconcile は保存済みの週報から、[begin, end) の各月曜0時（UTC）に
// ちょうど1件ずつ対応する週報の列を作る。
// beginが月曜0時でなければ、その次の月曜から始める。
// 週報のない週にはusernameを著者とする空の週報を補う（保存はしない）。
//
// postsはWeekBeginの昇順で、月曜0時に揃っていなければならない。
// 現在の月曜より前の週報は位置を決められないため読み飛ばす。
func Reconcile(username string, posts []model.WeeklyPost, begin, end time.Time) []model.WeeklyPost {
	monday := model.WeekBegin(begin)
	if monday.Before(begin) {
		monday = monday.Add(model.Week)
	}

	var result []model.WeeklyPost
	if weeks := int(end.Sub(monday) / model.Week); weeks > 0 {
		result = make([]model.WeeklyPost, 0, weeks+1)
	}

	i := 0
	for ; monday.Before(end); monday = monday.Add(model.Week) {
		for i < len(posts) && posts[i].WeekBegin.Before(monday) {
			i++
		}
		if i < len(posts) && posts[i].WeekBegin.Equal(monday) {
			result = append(result, posts[i])
			i++
			continue
		}
		result = append(result, model.WeeklyPost{
			Author:    username,
			Format:    model.FormatMarkdown,
			WeekBegin: monday,
		})
	}
	return result
}
