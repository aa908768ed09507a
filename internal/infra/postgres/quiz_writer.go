package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-attempt-service/internal/domain"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID        string                `bun:"id,pk"`
	Data      domain.QuizDefinition `bun:"data,type:jsonb"`
	UpdatedAt time.Time             `bun:"updated_at"`
}

// QuizWriter upserts authored quiz definitions.
type QuizWriter struct {
	db *bun.DB
}

func NewQuizWriter(db *bun.DB) *QuizWriter {
	return &QuizWriter{db: db}
}

// Save validates quiz and inserts or replaces it.
func (w *QuizWriter) Save(ctx context.Context, quiz domain.QuizDefinition) error {
	if quiz.Status == "" {
		quiz.Status = domain.QuizDraft
	}
	if err := domain.ValidateQuiz(quiz); err != nil {
		return err
	}
	row := &quizRow{ID: quiz.ID, Data: quiz, UpdatedAt: time.Now().UTC()}
	_, err := w.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save quiz %s: %w", quiz.ID, err)
	}
	return nil
}
