package http

import (
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func newTestService() *app.AttemptService {
	quizzes := memory.NewQuizCache(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	return app.NewAttemptService(memory.NewAttemptStore(), quizzes, nil)
}

func sampleQuizzes() map[string]domain.QuizDefinition {
	limit := 5
	questions := []domain.Question{
		{
			ID:         "q1",
			Text:       "What is 2 + 2?",
			PointValue: 1,
			Options: []domain.Option{
				{ID: "o1", Text: "3"},
				{ID: "o2", Text: "4", IsCorrect: true},
				{ID: "o3", Text: "5"},
			},
		},
		{
			ID:         "q2",
			Text:       "What is 3 + 3?",
			PointValue: 1,
			Options: []domain.Option{
				{ID: "o1", Text: "6", IsCorrect: true},
				{ID: "o2", Text: "7"},
			},
		},
	}
	return map[string]domain.QuizDefinition{
		"quiz-1": {ID: "quiz-1", Title: "Arithmetic", PassingScorePercent: 50, Status: domain.QuizPublished, Questions: questions},
		"quiz-timed": {
			ID: "quiz-timed", Title: "Timed arithmetic", PassingScorePercent: 50, Status: domain.QuizPublished,
			TimeLimitMinutes: &limit, Questions: questions,
		},
	}
}
