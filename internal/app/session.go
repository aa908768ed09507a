package app

import (
	"context"
	"errors"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logger"
)

// Trigger names what caused a finalization.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimeout Trigger = "timeout"
	TriggerAbandon Trigger = "abandon"
)

// Coordinator opens quiz-taking sessions. It keeps no state of its own: time
// is accounted from Attempt.StartedAt and every finalization goes through
// AttemptService.Submit.
type Coordinator struct {
	service *AttemptService
	log     *logger.Logger
	now     func() time.Time
}

func NewCoordinator(service *AttemptService, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{service: service, log: log, now: time.Now}
}

// WithClock swaps the time source; intended for tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Session is a single client's view of one in-progress attempt. It buffers
// answers locally and is driven by exactly one goroutine, the hosting shell.
type Session struct {
	coord   *Coordinator
	quiz    domain.QuizDefinition
	attempt domain.Attempt
	buffer  domain.Answers
	dirty   bool
	result  *domain.SubmitResult
	closed  bool
	log     *logger.Logger
}

// Open starts or resumes the student's attempt on quizID.
func (c *Coordinator) Open(ctx context.Context, studentID, quizID string) (*Session, error) {
	attempt, loaded, err := c.service.begin(ctx, studentID, quizID)
	if err != nil {
		return nil, err
	}
	if loaded == nil {
		quiz, err := c.service.Quiz(ctx, quizID)
		if err != nil {
			return nil, err
		}
		loaded = &quiz
	}
	return &Session{
		coord:   c,
		quiz:    *loaded,
		attempt: attempt,
		buffer:  attempt.Answers.Clone(),
		log:     c.log.With("attempt_id", attempt.ID, "quiz_id", quizID),
	}, nil
}

func (s *Session) Attempt() domain.Attempt { return s.attempt }

func (s *Session) Quiz() domain.QuizDefinition { return s.quiz }

// Answers returns a copy of the locally held answers.
func (s *Session) Answers() domain.Answers { return s.buffer.Clone() }

// Result is set once the session has been finalized.
func (s *Session) Result() (domain.SubmitResult, bool) {
	if s.result == nil {
		return domain.SubmitResult{}, false
	}
	return *s.result, true
}

// Done reports whether the session can no longer accept answers.
func (s *Session) Done() bool { return s.result != nil || s.closed }

// Deadline returns when the time limit elapses; ok is false for unlimited quizzes.
func (s *Session) Deadline() (time.Time, bool) {
	limit, ok := s.quiz.TimeLimit()
	if !ok {
		return time.Time{}, false
	}
	return s.attempt.Deadline(limit), true
}

// Remaining returns the time left; ok is false for unlimited quizzes.
func (s *Session) Remaining() (time.Duration, bool) {
	limit, ok := s.quiz.TimeLimit()
	if !ok {
		return 0, false
	}
	return s.attempt.Remaining(limit, s.coord.now()), true
}

// Expired reports whether the elapsed time has reached the limit.
func (s *Session) Expired() bool {
	left, ok := s.Remaining()
	return ok && left <= 0
}

// Record normalizes raw answers into the local buffer without persisting them.
func (s *Session) Record(raw map[string]any) domain.Answers {
	answers := NormalizeAnswers(raw)
	if s.Done() || len(answers) == 0 {
		return answers
	}
	for k, v := range answers {
		s.buffer[k] = v
	}
	s.dirty = true
	return answers
}

// Save flushes buffered answers through SaveProgress.
func (s *Session) Save(ctx context.Context) (domain.Attempt, error) {
	if s.Done() {
		return domain.Attempt{}, domain.AlreadyCompleted(s.attempt.ID)
	}
	if !s.dirty {
		return s.attempt, nil
	}
	attempt, err := s.coord.service.save(ctx, s.attempt.ID, s.attempt.StudentID, s.buffer.Clone())
	if errors.Is(err, domain.ErrAlreadyCompleted) {
		s.closed = true
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	s.attempt = attempt
	s.dirty = false
	return attempt, nil
}

// Submit finalizes the attempt with the buffered answers.
func (s *Session) Submit(ctx context.Context) (domain.SubmitResult, error) {
	return s.finalize(ctx, TriggerManual)
}

// Expire forces a submit once the time limit has elapsed. It reports false
// when there is no limit or time remains.
func (s *Session) Expire(ctx context.Context) (domain.SubmitResult, bool, error) {
	if s.Done() || !s.Expired() {
		return domain.SubmitResult{}, false, nil
	}
	res, err := s.finalize(ctx, TriggerTimeout)
	return res, true, err
}

// Abandon is the session close hook: a best-effort submit of whatever the
// client held. Failures are logged only since nobody is left to tell.
func (s *Session) Abandon(ctx context.Context) {
	if s.Done() {
		return
	}
	if _, err := s.finalize(ctx, TriggerAbandon); err != nil {
		s.log.Warn("abandon submit failed", "error", err)
	}
}

func (s *Session) finalize(ctx context.Context, trigger Trigger) (domain.SubmitResult, error) {
	if s.Done() {
		return domain.SubmitResult{}, domain.AlreadyCompleted(s.attempt.ID)
	}
	res, err := s.coord.service.submit(ctx, s.attempt.ID, s.attempt.StudentID, s.buffer.Clone())
	if errors.Is(err, domain.ErrAlreadyCompleted) {
		// Another session finalized first.
		s.closed = true
	}
	if err != nil {
		return domain.SubmitResult{}, err
	}
	s.result = &res
	s.dirty = false
	s.log.Info("attempt finalized", "trigger", trigger, "score", res.Score)
	return res, nil
}
