package weekly

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/hitoshi/weekly/internal/model"
	"github.com/hitoshi/weekly/internal/repository"
)

// listWeeks は一覧に表示する週数。
const listWeeks = 52

// Service は週報に関するビジネスロジックを提供する。
type Service struct {
	repo        repository.WeeklyRepository
	defaultLang string
	now         func() time.Time
}

// NewService はServiceを生成する。
// defaultLangは編集で保存する週報の言語タグ。
func NewService(repo repository.WeeklyRepository, defaultLang string) *Service {
	return &Service{
		repo:        repo,
		defaultLang: defaultLang,
		now:         time.Now,
	}
}

// OneYear は今週までの52週分の週報を新しい順に返す。
// 週報のない週は空の週報で埋める。ユーザーが存在しなければ404を返す。
func (s *Service) OneYear(ctx context.Context, username string) ([]model.WeeklyPost, error) {
	if _, ok, err := s.repo.GetUserID(ctx, username); err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	} else if !ok {
		return nil, model.NewHTTPError(http.StatusNotFound, "User not found")
	}

	end := model.WeekBegin(s.now()).Add(model.Week)
	begin := end.Add(-listWeeks * model.Week)

	posts, err := s.repo.GetWeeklies(ctx, username, begin, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get weeklies: %w", err)
	}

	weeklies := Reconcile(username, posts, begin, end)
	slices.Reverse(weeklies)
	return weeklies, nil
}

// Week はdateちょうどに始まる週報を返す。存在しなければ404を返す。
func (s *Service) Week(ctx context.Context, username string, date time.Time) (*model.WeeklyPost, error) {
	post, err := s.repo.GetWeekly(ctx, username, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get weekly: %w", err)
	}
	if post == nil {
		return nil, model.NewHTTPError(http.StatusNotFound, "")
	}
	return post, nil
}

// Draft は編集フォームに表示する週報を返す。
// まだ書かれていない週は空の週報を返す。dateが月曜でなければ404を返す。
func (s *Service) Draft(ctx context.Context, username string, date time.Time) (model.WeeklyPost, error) {
	if !model.IsWeekBegin(date) {
		return model.WeeklyPost{}, model.NewHTTPError(http.StatusNotFound, "")
	}
	post, err := s.repo.GetWeekly(ctx, username, date)
	if err != nil {
		return model.WeeklyPost{}, fmt.Errorf("failed to get weekly: %w", err)
	}
	if post == nil {
		return model.WeeklyPost{
			Author:    username,
			Format:    model.FormatMarkdown,
			WeekBegin: date,
			Language:  s.defaultLang,
		}, nil
	}
	return *post, nil
}

// Update はdateの週の本文をMarkdownとして保存する。
// dateが月曜でなければ404を返す。ユーザーが存在しなければ作成する。
func (s *Service) Update(ctx context.Context, username string, date time.Time, content string) error {
	if !model.IsWeekBegin(date) {
		return model.NewHTTPError(http.StatusNotFound, "")
	}

	post := &model.WeeklyPost{
		Author:     username,
		Format:     model.FormatMarkdown,
		RawContent: content,
		WeekBegin:  date,
		UpdateTime: s.now(),
		Language:   s.defaultLang,
	}
	if err := s.repo.UpdateWeekly(ctx, username, post); err != nil {
		return fmt.Errorf("failed to update weekly: %w", err)
	}

	slog.InfoContext(ctx, "weekly updated",
		slog.String("user", username),
		slog.String("week", date.Format(model.DateLayout)),
	)
	return nil
}
