package domain

import (
	"sort"
	"time"
)

// QuizStatus is the publication state of a quiz.
type QuizStatus string

const (
	QuizDraft     QuizStatus = "draft"
	QuizPublished QuizStatus = "published"
	QuizArchived  QuizStatus = "archived"
)

// Role of a requester as asserted by the authentication layer.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Elevated reports whether the role may read other users' attempts.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleTeacher
}

// Option represents a possible answer for a question.
type Option struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	IsCorrect bool   `json:"isCorrect" yaml:"isCorrect"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID         string   `json:"id" yaml:"id"`
	Text       string   `json:"text" yaml:"text"`
	PointValue int      `json:"pointValue" yaml:"pointValue"` // defaults to 1 if zero
	Options    []Option `json:"options" yaml:"options"`
}

// Points returns the question weight, defaulting to 1.
func (q Question) Points() int {
	if q.PointValue <= 0 {
		return 1
	}
	return q.PointValue
}

// QuizDefinition is the read-only quiz content consumed by the attempt engine.
type QuizDefinition struct {
	ID                  string     `json:"id" yaml:"id"`
	Title               string     `json:"title" yaml:"title"`
	Description         string     `json:"description" yaml:"description"`
	TimeLimitMinutes    *int       `json:"timeLimitMinutes,omitempty" yaml:"timeLimitMinutes,omitempty"`
	PassingScorePercent float64    `json:"passingScorePercent" yaml:"passingScorePercent"`
	TotalPoints         int        `json:"totalPoints" yaml:"totalPoints"`
	DueDate             *time.Time `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
	Status              QuizStatus `json:"status" yaml:"status"`
	Questions           []Question `json:"questions" yaml:"questions"`
}

// TimeLimit returns the configured limit; ok is false for unlimited quizzes.
func (q QuizDefinition) TimeLimit() (time.Duration, bool) {
	if q.TimeLimitMinutes == nil || *q.TimeLimitMinutes <= 0 {
		return 0, false
	}
	return time.Duration(*q.TimeLimitMinutes) * time.Minute, true
}

// AnswerSelection is the canonical per-question answer.
type AnswerSelection struct {
	SelectedOptionID string `json:"selectedOptionId"`
}

// Answers maps question id to the selected option.
type Answers map[string]AnswerSelection

// Clone returns an independent copy.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge returns a copy of a with every entry of b applied on top.
func (a Answers) Merge(b Answers) Answers {
	out := a.Clone()
	for k, v := range b {
		out[k] = v
	}
	return out
}

// AttemptState is derived from the attempt record, never stored.
type AttemptState string

const (
	StateNotStarted AttemptState = "not_started"
	StateInProgress AttemptState = "in_progress"
	StateCompleted  AttemptState = "completed"
)

// Attempt is one student's record of taking one quiz.
type Attempt struct {
	ID                 string     `json:"id"`
	StudentID          string     `json:"studentId"`
	QuizID             string     `json:"quizId"`
	StartedAt          time.Time  `json:"startedAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	Answers            Answers    `json:"answers"`
	Score              *int       `json:"score,omitempty"`
	TotalPossibleScore int        `json:"totalPossibleScore"`
	Percentage         *float64   `json:"percentage,omitempty"`
	Passed             *bool      `json:"passed,omitempty"`
}

// State reports InProgress or Completed based on CompletedAt.
func (a Attempt) State() AttemptState {
	if a.CompletedAt != nil {
		return StateCompleted
	}
	return StateInProgress
}

// Completed reports whether the attempt has been finalized.
func (a Attempt) Completed() bool {
	return a.CompletedAt != nil
}

// Deadline is StartedAt plus the limit.
func (a Attempt) Deadline(limit time.Duration) time.Time {
	return a.StartedAt.Add(limit)
}

// Remaining is the time left before the deadline, never negative.
func (a Attempt) Remaining(limit time.Duration, now time.Time) time.Duration {
	left := a.Deadline(limit).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Completion carries the finalization fields written exactly once.
type Completion struct {
	CompletedAt        time.Time
	Score              int
	TotalPossibleScore int
	Percentage         float64
	Passed             bool
}

// SubmitResult is returned to the caller of a successful submission.
type SubmitResult struct {
	AttemptID          string    `json:"attemptId"`
	Score              int       `json:"score"`
	TotalPossibleScore int       `json:"totalPossibleScore"`
	Percentage         float64   `json:"percentage"`
	IsPassing          bool      `json:"isPassing"`
	Answers            Answers   `json:"answers"`
	CompletedAt        time.Time `json:"completedAt"`
}

// SortLatestFirst orders attempts by StartedAt descending.
func SortLatestFirst(attempts []Attempt) {
	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].StartedAt.After(attempts[j].StartedAt)
	})
}
