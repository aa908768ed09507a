package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an attempt does not exist.
	ErrNotFound = errors.New("attempt not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrForbidden is returned when the requester does not own the attempt.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyCompleted is matched by every *AlreadyCompletedError.
	ErrAlreadyCompleted = errors.New("attempt already completed")
	// ErrActiveAttemptExists is returned by repositories when an insert loses
	// the race against another in-progress attempt for the same pair.
	ErrActiveAttemptExists = errors.New("active attempt already exists")
	// ErrQuizUnavailable is returned when starting a quiz that is not published.
	ErrQuizUnavailable = errors.New("quiz is not open for attempts")
	// ErrInvalidQuiz wraps authoring validation failures.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
)

// AlreadyCompletedError reports a mutation or start against a finalized attempt.
type AlreadyCompletedError struct {
	AttemptID string
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("attempt %s already completed", e.AttemptID)
}

func (e *AlreadyCompletedError) Is(target error) bool {
	return target == ErrAlreadyCompleted
}

// AlreadyCompleted builds an AlreadyCompletedError for attemptID.
func AlreadyCompleted(attemptID string) error {
	return &AlreadyCompletedError{AttemptID: attemptID}
}

// ExistingAttemptID extracts the completed attempt id from err, if any.
func ExistingAttemptID(err error) (string, bool) {
	var ace *AlreadyCompletedError
	if errors.As(err, &ace) {
		return ace.AttemptID, true
	}
	return "", false
}
