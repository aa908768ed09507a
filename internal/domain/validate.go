package domain

import "fmt"

// ValidateQuiz checks authoring invariants the scoring engine cannot rely on:
// unique question ids, at least two options, exactly one correct option.
func ValidateQuiz(q QuizDefinition) error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuiz)
	}
	switch q.Status {
	case "", QuizDraft, QuizPublished, QuizArchived:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidQuiz, q.Status)
	}
	if q.PassingScorePercent < 0 || q.PassingScorePercent > 100 {
		return fmt.Errorf("%w: passing score %.2f out of range", ErrInvalidQuiz, q.PassingScorePercent)
	}
	if q.TimeLimitMinutes != nil && *q.TimeLimitMinutes < 0 {
		return fmt.Errorf("%w: negative time limit", ErrInvalidQuiz)
	}
	if q.TotalPoints < 0 {
		return fmt.Errorf("%w: negative total points", ErrInvalidQuiz)
	}

	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidQuiz, i+1)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidQuiz, question.ID)
		}
		seen[question.ID] = struct{}{}
		if question.PointValue < 0 {
			return fmt.Errorf("%w: question %q has negative points", ErrInvalidQuiz, question.ID)
		}
		if len(question.Options) < 2 {
			return fmt.Errorf("%w: question %q needs at least two options", ErrInvalidQuiz, question.ID)
		}
		correct := 0
		for _, opt := range question.Options {
			if opt.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("%w: question %q has %d correct options", ErrInvalidQuiz, question.ID, correct)
		}
	}
	return nil
}
