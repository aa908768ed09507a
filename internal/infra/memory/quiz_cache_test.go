package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
)

func TestQuizCacheCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.QuizDefinition{
			"quiz-1": sampleQuiz(),
		}),
	}
	cache := NewQuizCache(loader, time.Minute)

	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("expected cache hit, loader calls %d", n)
	}

	cache.Invalidate("quiz-1")
	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 3: %v", err)
	}
	if n := loader.calls.Load(); n != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", n)
	}
}

func TestQuizCacheExpires(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.QuizDefinition{"quiz-1": sampleQuiz()}),
	}
	cache := NewQuizCache(loader, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	_, _ = cache.GetQuiz(context.Background(), "quiz-1")
	now = now.Add(2 * time.Minute)
	_, _ = cache.GetQuiz(context.Background(), "quiz-1")
	if n := loader.calls.Load(); n != 2 {
		t.Fatalf("expected reload after expiry, loader calls %d", n)
	}
}

func TestQuizCacheMissingQuiz(t *testing.T) {
	cache := NewQuizCache(NewStaticQuizLoader(nil), time.Minute)
	if _, err := cache.GetQuiz(context.Background(), "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	l.calls.Add(1)
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.QuizDefinition {
	return domain.QuizDefinition{
		ID:     "quiz-1",
		Status: domain.QuizPublished,
		Questions: []domain.Question{
			{
				ID:         "q1",
				Text:       "What is 2 + 2?",
				PointValue: 1,
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", IsCorrect: true},
				},
			},
		},
	}
}
