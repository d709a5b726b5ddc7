package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"trivia-live-service/internal/domain"
)

// QuizRecord is the row behind the quiz catalog. The question list is kept
// as JSONB since a quiz is only ever read whole.
type QuizRecord struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID        string          `bun:"id,pk"`
	Title     string          `bun:"title,notnull"`
	CreatedBy string          `bun:"created_by,notnull"`
	Data      json.RawMessage `bun:"data,type:jsonb,notnull"`
	CreatedAt time.Time       `bun:"created_at,notnull"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}

// QuizWriter imports quizzes into the catalog.
type QuizWriter struct {
	db  *bun.DB
	now func() time.Time
}

func NewQuizWriter(db *bun.DB) *QuizWriter {
	return &QuizWriter{db: db, now: time.Now}
}

// SaveQuiz inserts q or replaces the existing quiz with the same id,
// keeping its original created_at.
func (w *QuizWriter) SaveQuiz(ctx context.Context, q domain.Quiz) error {
	if err := q.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	now := w.now().UTC()
	rec := &QuizRecord{
		ID:        q.ID,
		Title:     q.Title,
		CreatedBy: q.CreatedBy,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = w.db.NewInsert().
		Model(rec).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("created_by = EXCLUDED.created_by").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save quiz %s: %w", q.ID, err)
	}
	return nil
}
