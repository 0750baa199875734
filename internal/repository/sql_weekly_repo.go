package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/weekly/internal/database"
	"github.com/hitoshi/weekly/internal/model"
)

// SQLWeeklyRepo はdatabase/sqlを使用した週報リポジトリ。
// PostgreSQLとSQLiteの両方で動作する。
type SQLWeeklyRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLWeeklyRepo はSQLWeeklyRepoを生成する。
func NewSQLWeeklyRepo(db *database.DB) *SQLWeeklyRepo {
	if db == nil {
		return &SQLWeeklyRepo{}
	}
	return &SQLWeeklyRepo{db: db.DB, dialect: db.Dialect}
}

// rebind はクエリ中の ? プレースホルダをPostgreSQL用の $n に置き換える。
// クエリ文字列リテラル中に ? を含めないこと。
func rebind(dialect database.Dialect, query string) string {
	if dialect != database.DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// GetUserID はユーザー名からIDを取得する。存在しない場合はfalseを返す。
func (r *SQLWeeklyRepo) GetUserID(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		rebind(r.dialect, `SELECT id FROM users WHERE name = ?`),
		name,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find user by name: %w", err)
	}
	return id, true, nil
}

// CreateUser はユーザーを作成してIDを返す。
func (r *SQLWeeklyRepo) CreateUser(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		rebind(r.dialect, `INSERT INTO users (name) VALUES (?) RETURNING id`),
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	return id, nil
}

const selectWeekly = `SELECT w.week_start, w.update_time, w.format, w.lang, w.content
	FROM weeklies w JOIN users u ON u.id = w.user_id`

// GetWeeklies は [begin, end) に週の始まりがある週報をweek_begin昇順で返す。
func (r *SQLWeeklyRepo) GetWeeklies(ctx context.Context, username string, begin, end time.Time) ([]model.WeeklyPost, error) {
	rows, err := r.db.QueryContext(ctx,
		rebind(r.dialect, selectWeekly+`
		 WHERE u.name = ? AND w.week_start >= ? AND w.week_start < ?
		 ORDER BY w.week_start ASC`),
		username, begin.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query weeklies: %w", err)
	}
	defer rows.Close()

	posts := []model.WeeklyPost{}
	for rows.Next() {
		post, err := scanWeekly(rows, username)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate weeklies: %w", err)
	}
	return posts, nil
}

// GetWeekly はweekBeginちょうどの週報を取得する。見つからない場合はnilを返す。
func (r *SQLWeeklyRepo) GetWeekly(ctx context.Context, username string, weekBegin time.Time) (*model.WeeklyPost, error) {
	row := r.db.QueryRowContext(ctx,
		rebind(r.dialect, selectWeekly+` WHERE u.name = ? AND w.week_start = ?`),
		username, weekBegin.Unix(),
	)
	post, err := scanWeekly(row, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return post, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWeekly(row rowScanner, username string) (*model.WeeklyPost, error) {
	var (
		weekStart, updateTime int64
		format                int
		lang, content         string
	)
	if err := row.Scan(&weekStart, &updateTime, &format, &lang, &content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan weekly: %w", err)
	}
	f := model.Format(format)
	if !f.IsValid() {
		return nil, model.NewRuntimeError("Unknown weekly format: %d", format)
	}
	return &model.WeeklyPost{
		Author:     username,
		Format:     f,
		RawContent: content,
		WeekBegin:  time.Unix(weekStart, 0).UTC(),
		UpdateTime: time.Unix(updateTime, 0).UTC(),
		Language:   lang,
	}, nil
}

// UpdateWeekly は (ユーザー, week_begin) をキーに週報をUPSERTする。
// ユーザーの作成と週報の書き込みは同一トランザクションで行う。
func (r *SQLWeeklyRepo) UpdateWeekly(ctx context.Context, username string, post *model.WeeklyPost) error {
	if !model.IsWeekBegin(post.WeekBegin) {
		return model.NewRuntimeError("Week begin is not Monday 00:00 UTC: %s", post.WeekBegin.UTC().Format(time.RFC3339))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 同時作成で衝突しても既存の行を使う
	_, err = tx.ExecContext(ctx,
		rebind(r.dialect, `INSERT INTO users (name) VALUES (?) ON CONFLICT (name) DO NOTHING`),
		username,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}

	var userID int64
	err = tx.QueryRowContext(ctx,
		rebind(r.dialect, `SELECT id FROM users WHERE name = ?`),
		username,
	).Scan(&userID)
	if err != nil {
		return fmt.Errorf("failed to find user by name: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		rebind(r.dialect, `INSERT INTO weeklies (user_id, week_start, update_time, format, lang, content)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, week_start) DO UPDATE SET
		   update_time = excluded.update_time,
		   format = excluded.format,
		   lang = excluded.lang,
		   content = excluded.content`),
		userID, post.WeekBegin.Unix(), post.UpdateTime.Unix(), int(post.Format), post.Language, post.RawContent,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert weekly: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ WeeklyRepository = (*SQLWeeklyRepo)(nil)
