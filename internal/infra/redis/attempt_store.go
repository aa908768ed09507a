package redis

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Layout (student and quiz ids are query-escaped so key parts never contain ':'):
//
//	attempt:{id}                         hash of attempt fields; completed_at "" while active
//	attempt:{id}:answers                 hash questionID -> optionID
//	attempt:active:{student}:{quiz}      id of the pair's in-progress attempt
//	attempt:completed:{student}:{quiz}   id of the pair's completed attempt
//	attempts:pair:{student}:{quiz}       set of attempt ids for the pair
//	attempts:student:{student}           set of all the student's attempt ids
//
// Every state-changing write is a Lua script so the check and the write are
// atomic. The attempt hash records its pair's marker keys so the update script
// never has to rebuild key names.

var insertScript = redis.NewScript(`
local done = redis.call('GET', KEYS[5])
if done then
  return {2, done}
end
if not redis.call('SET', KEYS[1], ARGV[1], 'NX') then
  return {0, ''}
end
redis.call('HSET', KEYS[2], 'id', ARGV[1], 'student_id', ARGV[2], 'quiz_id', ARGV[3],
  'started_at', ARGV[4], 'completed_at', '', 'total_possible_score', ARGV[5],
  'active_key', KEYS[1], 'completed_key', KEYS[5])
redis.call('SADD', KEYS[3], ARGV[1])
redis.call('SADD', KEYS[4], ARGV[1])
return {1, ARGV[1]}
`)

var updateIfActiveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'not_found'
end
local done = redis.call('HGET', KEYS[1], 'completed_at')
if done and done ~= '' then
  return 'completed'
end
local complete = ARGV[1] == 'complete'
local markers = redis.call('HMGET', KEYS[1], 'id', 'active_key', 'completed_key')
if complete and redis.call('SET', markers[3], markers[1], 'NX') == false then
  return 'pair_completed'
end
if complete then
  redis.call('DEL', KEYS[2])
end
for i = 7, #ARGV, 2 do
  redis.call('HSET', KEYS[2], ARGV[i], ARGV[i + 1])
end
if complete then
  redis.call('HSET', KEYS[1], 'completed_at', ARGV[2], 'score', ARGV[3],
    'total_possible_score', ARGV[4], 'percentage', ARGV[5], 'passed', ARGV[6])
  if redis.call('GET', markers[2]) == markers[1] then
    redis.call('DEL', markers[2])
  end
end
return 'ok'
`)

// AttemptStore is a Redis implementation of app.AttemptRepository.
type AttemptStore struct {
	client *redis.Client
}

func NewAttemptStore(client *redis.Client) *AttemptStore {
	return &AttemptStore{client: client}
}

func (s *AttemptStore) Insert(ctx context.Context, attempt domain.Attempt) error {
	keys := []string{
		activeKey(attempt.StudentID, attempt.QuizID),
		attemptKey(attempt.ID),
		pairKey(attempt.StudentID, attempt.QuizID),
		studentKey(attempt.StudentID),
		completedKey(attempt.StudentID, attempt.QuizID),
	}
	reply, err := insertScript.Run(ctx, s.client, keys,
		attempt.ID, attempt.StudentID, attempt.QuizID,
		attempt.StartedAt.UTC().Format(time.RFC3339Nano), attempt.TotalPossibleScore,
	).Slice()
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	if len(reply) != 2 {
		return fmt.Errorf("insert attempt: unexpected reply %v", reply)
	}
	code, _ := reply[0].(int64)
	switch code {
	case 0:
		return domain.ErrActiveAttemptExists
	case 2:
		existing, _ := reply[1].(string)
		return domain.AlreadyCompleted(existing)
	}
	if len(attempt.Answers) > 0 {
		if _, err := s.UpdateIfActive(ctx, attempt.ID, app.AttemptPatch{Answers: attempt.Answers}); err != nil {
			return err
		}
	}
	return nil
}

func (s *AttemptStore) UpdateIfActive(ctx context.Context, attemptID string, patch app.AttemptPatch) (domain.Attempt, error) {
	args := []interface{}{"merge", "", "", "", "", ""}
	if c := patch.Completion; c != nil {
		args = []interface{}{
			"complete",
			c.CompletedAt.UTC().Format(time.RFC3339Nano),
			c.Score,
			c.TotalPossibleScore,
			strconv.FormatFloat(c.Percentage, 'f', -1, 64),
			boolFlag(c.Passed),
		}
	}
	for questionID, sel := range patch.Answers {
		args = append(args, questionID, sel.SelectedOptionID)
	}

	status, err := updateIfActiveScript.Run(ctx, s.client,
		[]string{attemptKey(attemptID), answersKey(attemptID)}, args...).Text()
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("update attempt: %w", err)
	}
	switch status {
	case "not_found":
		return domain.Attempt{}, domain.ErrNotFound
	case "completed":
		return domain.Attempt{}, domain.AlreadyCompleted(attemptID)
	case "pair_completed":
		return domain.Attempt{}, s.completedSibling(ctx, attemptID)
	}
	return s.Get(ctx, attemptID)
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	attempts, err := s.load(ctx, []string{attemptID})
	if err != nil {
		return domain.Attempt{}, err
	}
	if len(attempts) == 0 {
		return domain.Attempt{}, domain.ErrNotFound
	}
	return attempts[0], nil
}

func (s *AttemptStore) FindByStudentAndQuiz(ctx context.Context, studentID, quizID string) ([]domain.Attempt, error) {
	ids, err := s.ids(ctx, studentID, quizID)
	if err != nil {
		return nil, err
	}
	loaded, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := loaded[:0]
	for _, a := range loaded {
		if a.StudentID == studentID && (quizID == "" || a.QuizID == quizID) {
			out = append(out, a)
		}
	}
	return out, nil
}

// completedSibling reports the pair's completed attempt when a finalize lost
// to another attempt of the same pair.
func (s *AttemptStore) completedSibling(ctx context.Context, attemptID string) error {
	a, err := s.Get(ctx, attemptID)
	if err != nil {
		return err
	}
	id, err := s.client.Get(ctx, completedKey(a.StudentID, a.QuizID)).Result()
	if err != nil {
		if isNil(err) {
			return domain.AlreadyCompleted(attemptID)
		}
		return fmt.Errorf("read completed marker: %w", err)
	}
	return domain.AlreadyCompleted(id)
}

func (s *AttemptStore) DeleteByStudentAndQuiz(ctx context.Context, studentID, quizID string) (int, error) {
	attempts, err := s.FindByStudentAndQuiz(ctx, studentID, quizID)
	if err != nil {
		return 0, err
	}
	if len(attempts) == 0 {
		return 0, nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, a := range attempts {
			pipe.Del(ctx, attemptKey(a.ID), answersKey(a.ID),
				activeKey(a.StudentID, a.QuizID), completedKey(a.StudentID, a.QuizID))
			pipe.SRem(ctx, pairKey(a.StudentID, a.QuizID), a.ID)
			pipe.SRem(ctx, studentKey(a.StudentID), a.ID)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	return len(attempts), nil
}

func (s *AttemptStore) ids(ctx context.Context, studentID, quizID string) ([]string, error) {
	key := studentKey(studentID)
	if quizID != "" {
		key = pairKey(studentID, quizID)
	}
	ids, err := s.client.SMembers(ctx, key).Result()
	if err != nil && !isNil(err) {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return ids, nil
}

// load fetches attempts in one round trip, skipping ids whose hash is gone.
func (s *AttemptStore) load(ctx context.Context, ids []string) ([]domain.Attempt, error) {
	if len(ids) == 0 {
		return []domain.Attempt{}, nil
	}
	fields := make([]*redis.MapStringStringCmd, len(ids))
	answers := make([]*redis.MapStringStringCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			fields[i] = pipe.HGetAll(ctx, attemptKey(id))
			answers[i] = pipe.HGetAll(ctx, answersKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}

	out := make([]domain.Attempt, 0, len(ids))
	for i := range ids {
		h := fields[i].Val()
		if len(h) == 0 {
			continue
		}
		a, err := decodeAttempt(h, answers[i].Val())
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func decodeAttempt(h map[string]string, answers map[string]string) (domain.Attempt, error) {
	a := domain.Attempt{
		ID:        h["id"],
		StudentID: h["student_id"],
		QuizID:    h["quiz_id"],
		Answers:   make(domain.Answers, len(answers)),
	}
	for questionID, optionID := range answers {
		a.Answers[questionID] = domain.AnswerSelection{SelectedOptionID: optionID}
	}

	started, err := time.Parse(time.RFC3339Nano, h["started_at"])
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("decode attempt %s started_at: %w", a.ID, err)
	}
	a.StartedAt = started
	if v := h["total_possible_score"]; v != "" {
		if a.TotalPossibleScore, err = strconv.Atoi(v); err != nil {
			return domain.Attempt{}, fmt.Errorf("decode attempt %s total: %w", a.ID, err)
		}
	}

	if v := h["completed_at"]; v != "" {
		completed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return domain.Attempt{}, fmt.Errorf("decode attempt %s completed_at: %w", a.ID, err)
		}
		score, err := strconv.Atoi(h["score"])
		if err != nil {
			return domain.Attempt{}, fmt.Errorf("decode attempt %s score: %w", a.ID, err)
		}
		pct, err := strconv.ParseFloat(h["percentage"], 64)
		if err != nil {
			return domain.Attempt{}, fmt.Errorf("decode attempt %s percentage: %w", a.ID, err)
		}
		passed := h["passed"] == "1"
		a.CompletedAt = &completed
		a.Score = &score
		a.Percentage = &pct
		a.Passed = &passed
	}
	return a, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func attemptKey(id string) string { return "attempt:" + keyPart(id) }

func answersKey(id string) string { return "attempt:" + keyPart(id) + ":answers" }

func activeKey(studentID, quizID string) string {
	return "attempt:active:" + keyPart(studentID) + ":" + keyPart(quizID)
}

func completedKey(studentID, quizID string) string {
	return "attempt:completed:" + keyPart(studentID) + ":" + keyPart(quizID)
}

func pairKey(studentID, quizID string) string {
	return "attempts:pair:" + keyPart(studentID) + ":" + keyPart(quizID)
}

func studentKey(studentID string) string { return "attempts:student:" + keyPart(studentID) }

// keyPart escapes an id so it occupies exactly one ':'-separated key segment.
func keyPart(id string) string { return url.QueryEscape(id) }
