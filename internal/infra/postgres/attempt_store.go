package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

const uniqueViolation = "23505"

const attemptColumns = `id, student_id, quiz_id, started_at, completed_at, answers,
	score, total_possible_score, percentage, passed`

// AttemptStore persists attempts in Postgres. Exclusivity comes from the
// partial unique indexes and from updates guarded by completed_at IS NULL.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) Insert(ctx context.Context, attempt domain.Attempt) error {
	answers, err := encodeAnswers(attempt.Answers)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO attempts (id, student_id, quiz_id, started_at, answers, total_possible_score)
		SELECT $1::text, $2::text, $3::text, $4::timestamptz, $5::jsonb, $6::integer
		WHERE NOT EXISTS (
			SELECT 1 FROM attempts
			WHERE student_id = $2::text AND quiz_id = $3::text AND completed_at IS NOT NULL)
		ON CONFLICT (student_id, quiz_id) WHERE completed_at IS NULL DO NOTHING`,
		attempt.ID, attempt.StudentID, attempt.QuizID, attempt.StartedAt, answers, attempt.TotalPossibleScore)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either another active attempt or a completed one; Start re-reads the pair.
		return domain.ErrActiveAttemptExists
	}
	return nil
}

func (s *AttemptStore) UpdateIfActive(ctx context.Context, attemptID string, patch app.AttemptPatch) (domain.Attempt, error) {
	answers, err := encodeAnswers(patch.Answers)
	if err != nil {
		return domain.Attempt{}, err
	}

	var row pgx.Row
	if c := patch.Completion; c != nil {
		row = s.pool.QueryRow(ctx, `
			UPDATE attempts
			SET answers = $2::jsonb, completed_at = $3, score = $4,
				total_possible_score = $5, percentage = $6, passed = $7
			WHERE id = $1 AND completed_at IS NULL
			RETURNING `+attemptColumns,
			attemptID, answers, c.CompletedAt, c.Score, c.TotalPossibleScore, c.Percentage, c.Passed)
	} else {
		row = s.pool.QueryRow(ctx, `
			UPDATE attempts SET answers = answers || $2::jsonb
			WHERE id = $1 AND completed_at IS NULL
			RETURNING `+attemptColumns,
			attemptID, answers)
	}

	attempt, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, s.inactiveReason(ctx, attemptID)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.Attempt{}, s.completedSibling(ctx, attemptID)
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("update attempt: %w", err)
	}
	return attempt, nil
}

// inactiveReason explains why a guarded update matched no row.
func (s *AttemptStore) inactiveReason(ctx context.Context, attemptID string) error {
	var completed bool
	err := s.pool.QueryRow(ctx, `SELECT completed_at IS NOT NULL FROM attempts WHERE id = $1`, attemptID).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check attempt: %w", err)
	}
	return domain.AlreadyCompleted(attemptID)
}

// completedSibling reports the pair's completed attempt after a finalize hit
// attempts_one_completed_idx.
func (s *AttemptStore) completedSibling(ctx context.Context, attemptID string) error {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT c.id FROM attempts a
		JOIN attempts c ON c.student_id = a.student_id AND c.quiz_id = a.quiz_id
		WHERE a.id = $1 AND c.completed_at IS NOT NULL`, attemptID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AlreadyCompleted(attemptID)
	}
	if err != nil {
		return fmt.Errorf("find completed attempt: %w", err)
	}
	return domain.AlreadyCompleted(id)
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	attempt, err := scanAttempt(s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, attemptID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

func (s *AttemptStore) FindByStudentAndQuiz(ctx context.Context, studentID, quizID string) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+` FROM attempts
		WHERE student_id = $1 AND ($2::text = '' OR quiz_id = $2)`, studentID, quizID)
	if err != nil {
		return nil, fmt.Errorf("find attempts: %w", err)
	}
	defer rows.Close()

	out := []domain.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AttemptStore) DeleteByStudentAndQuiz(ctx context.Context, studentID, quizID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM attempts WHERE student_id = $1 AND ($2::text = '' OR quiz_id = $2)`, studentID, quizID)
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var (
		a   domain.Attempt
		raw []byte
	)
	err := row.Scan(&a.ID, &a.StudentID, &a.QuizID, &a.StartedAt, &a.CompletedAt, &raw,
		&a.Score, &a.TotalPossibleScore, &a.Percentage, &a.Passed)
	if err != nil {
		return domain.Attempt{}, err
	}
	a.Answers = domain.Answers{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &a.Answers); err != nil {
			return domain.Attempt{}, fmt.Errorf("decode answers: %w", err)
		}
	}
	return a, nil
}

func encodeAnswers(answers domain.Answers) (string, error) {
	if answers == nil {
		answers = domain.Answers{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("encode answers: %w", err)
	}
	return string(data), nil
}
