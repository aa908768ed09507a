package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository. The
// mutex stands in for the row-level atomicity a database provides.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string]domain.Attempt)}
}

func (s *AttemptStore) Insert(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.StudentID != attempt.StudentID || a.QuizID != attempt.QuizID {
			continue
		}
		if a.Completed() {
			return domain.AlreadyCompleted(a.ID)
		}
		return domain.ErrActiveAttemptExists
	}
	s.attempts[attempt.ID] = copyAttempt(attempt)
	return nil
}

func (s *AttemptStore) UpdateIfActive(_ context.Context, attemptID string, patch app.AttemptPatch) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrNotFound
	}
	if a.Completed() {
		return domain.Attempt{}, domain.AlreadyCompleted(attemptID)
	}

	if c := patch.Completion; c != nil {
		completedAt := c.CompletedAt
		score, pct, passed := c.Score, c.Percentage, c.Passed
		a.Answers = patch.Answers.Clone()
		a.CompletedAt = &completedAt
		a.Score = &score
		a.TotalPossibleScore = c.TotalPossibleScore
		a.Percentage = &pct
		a.Passed = &passed
	} else {
		a.Answers = a.Answers.Merge(patch.Answers)
	}
	s.attempts[attemptID] = a
	return copyAttempt(a), nil
}

func (s *AttemptStore) Get(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrNotFound
	}
	return copyAttempt(a), nil
}

func (s *AttemptStore) FindByStudentAndQuiz(_ context.Context, studentID, quizID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if a.StudentID == studentID && (quizID == "" || a.QuizID == quizID) {
			out = append(out, copyAttempt(a))
		}
	}
	return out, nil
}

func (s *AttemptStore) DeleteByStudentAndQuiz(_ context.Context, studentID, quizID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, a := range s.attempts {
		if a.StudentID == studentID && (quizID == "" || a.QuizID == quizID) {
			delete(s.attempts, id)
			removed++
		}
	}
	return removed, nil
}

// copyAttempt detaches the answers map so callers cannot mutate stored state.
func copyAttempt(a domain.Attempt) domain.Attempt {
	if a.Answers == nil {
		a.Answers = domain.Answers{}
	} else {
		a.Answers = a.Answers.Clone()
	}
	return a
}
