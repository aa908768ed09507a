package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logger"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error)
}

// AttemptPatch is a conditional update applied only while an attempt is active.
// Answers are merged into the stored answers. When Completion is set the
// stored answers are replaced by Answers, the set that was scored.
type AttemptPatch struct {
	Answers    domain.Answers
	Completion *domain.Completion
}

// AttemptRepository abstracts attempt persistence (in-memory, Redis, Postgres).
// Cross-session coordination relies solely on its conditional writes.
type AttemptRepository interface {
	// Insert persists a new in-progress attempt. It returns
	// domain.ErrActiveAttemptExists if the pair already has one, or an
	// AlreadyCompleted error when the pair holds a completed attempt.
	Insert(ctx context.Context, attempt domain.Attempt) error
	// UpdateIfActive applies patch only if the attempt is not completed and
	// returns the updated record. It fails with domain.ErrNotFound or an
	// AlreadyCompleted error.
	UpdateIfActive(ctx context.Context, attemptID string, patch AttemptPatch) (domain.Attempt, error)
	Get(ctx context.Context, attemptID string) (domain.Attempt, error)
	// FindByStudentAndQuiz lists a student's attempts; an empty quizID matches all quizzes.
	FindByStudentAndQuiz(ctx context.Context, studentID, quizID string) ([]domain.Attempt, error)
	DeleteByStudentAndQuiz(ctx context.Context, studentID, quizID string) (int, error)
}

// AttemptService is the attempt state machine: NotStarted -> InProgress -> Completed.
type AttemptService struct {
	attempts AttemptRepository
	quizzes  QuizRepository
	log      *logger.Logger
	now      func() time.Time
	newID    func() string
}

func NewAttemptService(attempts AttemptRepository, quizzes QuizRepository, log *logger.Logger) *AttemptService {
	if log == nil {
		log = logger.Nop()
	}
	return &AttemptService{
		attempts: attempts,
		quizzes:  quizzes,
		log:      log,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// WithClock swaps the time source; intended for tests.
func (s *AttemptService) WithClock(now func() time.Time) *AttemptService {
	s.now = now
	return s
}

// Quiz returns the definition of quizID.
func (s *AttemptService) Quiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

// Start returns the student's in-progress attempt for the quiz, creating one if
// none exists. A completed attempt blocks a new start.
func (s *AttemptService) Start(ctx context.Context, studentID, quizID string) (domain.Attempt, error) {
	attempt, _, err := s.begin(ctx, studentID, quizID)
	return attempt, err
}

// begin implements Start. The quiz is only loaded when a new attempt has to be
// created; it is returned in that case so callers can skip a second lookup.
func (s *AttemptService) begin(ctx context.Context, studentID, quizID string) (domain.Attempt, *domain.QuizDefinition, error) {
	existing, err := s.attempts.FindByStudentAndQuiz(ctx, studentID, quizID)
	if err != nil {
		return domain.Attempt{}, nil, err
	}
	if attempt, ok, err := resolveExisting(existing); ok || err != nil {
		return attempt, nil, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, nil, err
	}
	if quiz.Status != domain.QuizPublished {
		return domain.Attempt{}, nil, domain.ErrQuizUnavailable
	}

	attempt := domain.Attempt{
		ID:                 s.newID(),
		StudentID:          studentID,
		QuizID:             quizID,
		StartedAt:          s.now().UTC(),
		Answers:            domain.Answers{},
		TotalPossibleScore: Score(quiz, nil).TotalPossibleScore,
	}
	err = s.attempts.Insert(ctx, attempt)
	if errors.Is(err, domain.ErrActiveAttemptExists) {
		// Lost a concurrent start; hand back the winner's row.
		existing, err := s.attempts.FindByStudentAndQuiz(ctx, studentID, quizID)
		if err != nil {
			return domain.Attempt{}, nil, err
		}
		if attempt, ok, err := resolveExisting(existing); ok || err != nil {
			return attempt, &quiz, err
		}
		return domain.Attempt{}, nil, domain.ErrActiveAttemptExists
	}
	if err != nil {
		return domain.Attempt{}, nil, err
	}
	s.log.Info("attempt started", "attempt_id", attempt.ID, "quiz_id", quizID, "student", studentID)
	return attempt, &quiz, nil
}

// resolveExisting applies the start rules to the pair's attempts: a completed
// attempt rejects, an active one resumes.
func resolveExisting(existing []domain.Attempt) (domain.Attempt, bool, error) {
	var active *domain.Attempt
	for i := range existing {
		if existing[i].Completed() {
			return domain.Attempt{}, false, domain.AlreadyCompleted(existing[i].ID)
		}
		if active == nil {
			active = &existing[i]
		}
	}
	if active != nil {
		return *active, true, nil
	}
	return domain.Attempt{}, false, nil
}

// SaveProgress merges answers into an in-progress attempt owned by studentID.
func (s *AttemptService) SaveProgress(ctx context.Context, attemptID, studentID string, answers map[string]any) (domain.Attempt, error) {
	return s.save(ctx, attemptID, studentID, NormalizeAnswers(answers))
}

func (s *AttemptService) save(ctx context.Context, attemptID, studentID string, answers domain.Answers) (domain.Attempt, error) {
	if _, err := s.owned(ctx, attemptID, studentID); err != nil {
		return domain.Attempt{}, err
	}
	return s.attempts.UpdateIfActive(ctx, attemptID, AttemptPatch{Answers: answers})
}

// Submit merges answers, scores the merged set and finalizes the attempt.
// Concurrent submissions race on the repository's conditional update; losers
// get an AlreadyCompleted error and never overwrite the winner.
func (s *AttemptService) Submit(ctx context.Context, attemptID, studentID string, answers map[string]any) (domain.SubmitResult, error) {
	return s.submit(ctx, attemptID, studentID, NormalizeAnswers(answers))
}

func (s *AttemptService) submit(ctx context.Context, attemptID, studentID string, answers domain.Answers) (domain.SubmitResult, error) {
	attempt, err := s.owned(ctx, attemptID, studentID)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	merged := attempt.Answers.Merge(answers)
	scored := Score(quiz, merged)
	for _, w := range scored.Warnings {
		s.log.Warn("question is not scoreable",
			"quiz_id", quiz.ID, "question_id", w.QuestionID, "correct_options", w.CorrectOptions)
	}

	completion := &domain.Completion{
		CompletedAt:        s.now().UTC(),
		Score:              scored.Score,
		TotalPossibleScore: scored.TotalPossibleScore,
		Percentage:         scored.Percentage,
		Passed:             scored.IsPassing,
	}
	final, err := s.attempts.UpdateIfActive(ctx, attemptID, AttemptPatch{Answers: merged, Completion: completion})
	if err != nil {
		return domain.SubmitResult{}, err
	}

	s.log.Info("attempt submitted", "attempt_id", attemptID, "score", scored.Score,
		"total", scored.TotalPossibleScore, "percentage", scored.Percentage)
	return domain.SubmitResult{
		AttemptID:          final.ID,
		Score:              scored.Score,
		TotalPossibleScore: scored.TotalPossibleScore,
		Percentage:         scored.Percentage,
		IsPassing:          scored.IsPassing,
		Answers:            final.Answers,
		CompletedAt:        completion.CompletedAt,
	}, nil
}

// owned loads an attempt and checks it belongs to studentID and is still active.
func (s *AttemptService) owned(ctx context.Context, attemptID, studentID string) (domain.Attempt, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.StudentID != studentID {
		return domain.Attempt{}, domain.ErrForbidden
	}
	if attempt.Completed() {
		return domain.Attempt{}, domain.AlreadyCompleted(attempt.ID)
	}
	return attempt, nil
}

// Get returns an attempt; students may only read their own.
func (s *AttemptService) Get(ctx context.Context, attemptID, requesterID string, role domain.Role) (domain.Attempt, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !role.Elevated() && attempt.StudentID != requesterID {
		return domain.Attempt{}, domain.ErrForbidden
	}
	return attempt, nil
}

// List returns the student's attempts, optionally restricted to one quiz.
func (s *AttemptService) List(ctx context.Context, studentID, quizID string) ([]domain.Attempt, error) {
	return s.attempts.FindByStudentAndQuiz(ctx, studentID, quizID)
}

// ResetAttempts removes every attempt of the pair outside the state machine. Admin only.
func (s *AttemptService) ResetAttempts(ctx context.Context, role domain.Role, studentID, quizID string) (int, error) {
	if role != domain.RoleAdmin {
		return 0, domain.ErrForbidden
	}
	n, err := s.attempts.DeleteByStudentAndQuiz(ctx, studentID, quizID)
	if err != nil {
		return 0, err
	}
	s.log.Warn("attempts reset", "student", studentID, "quiz_id", quizID, "removed", n)
	return n, nil
}
