package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-live-service/internal/domain"
)

// QuizLoader loads quiz JSONB from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		raw   []byte
		quiz  domain.Quiz
		owner string
	)
	err := l.pool.QueryRow(ctx,
		`SELECT data, created_by, created_at, updated_at FROM quizzes WHERE id=$1`, quizID,
	).Scan(&raw, &owner, &quiz.CreatedAt, &quiz.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.NotFound("quiz", quizID)
	}
	if err != nil {
		return domain.Quiz{}, &domain.TransientStoreError{Op: "load quiz", Err: err}
	}

	createdAt, updatedAt := quiz.CreatedAt, quiz.UpdatedAt
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.ID = quizID
	quiz.CreatedBy = owner
	quiz.CreatedAt, quiz.UpdatedAt = createdAt, updatedAt
	return quiz, nil
}
