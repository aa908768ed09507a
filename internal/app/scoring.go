package app

import (
	"math"
	"strconv"

	"quiz-attempt-service/internal/domain"
)

// IntegrityWarning flags a question that cannot be scored because it does not
// have exactly one correct option.
type IntegrityWarning struct {
	QuestionID     string
	CorrectOptions int
}

// ScoreResult is the outcome of scoring one answer set.
type ScoreResult struct {
	Score              int
	TotalPossibleScore int
	Percentage         float64
	IsPassing          bool
	Warnings           []IntegrityWarning
}

// Score grades answers against quiz. The key compared against each answer is
// the correct option's 1-based position rendered as a string, not its stored id.
func Score(quiz domain.QuizDefinition, answers domain.Answers) ScoreResult {
	var res ScoreResult
	sum := 0
	for _, q := range quiz.Questions {
		points := q.Points()
		sum += points

		position, correct := correctPosition(q)
		if correct != 1 {
			res.Warnings = append(res.Warnings, IntegrityWarning{QuestionID: q.ID, CorrectOptions: correct})
			continue
		}
		answer, ok := answers[q.ID]
		if !ok {
			continue
		}
		if answer.SelectedOptionID == strconv.Itoa(position) {
			res.Score += points
		}
	}

	res.TotalPossibleScore = sum
	if quiz.TotalPoints > 0 {
		res.TotalPossibleScore = quiz.TotalPoints
	}
	if res.TotalPossibleScore > 0 {
		res.Percentage = roundPercent(float64(res.Score) / float64(res.TotalPossibleScore) * 100)
	}
	res.IsPassing = res.Percentage >= quiz.PassingScorePercent
	return res
}

// correctPosition returns the 1-based position of the last correct option and
// how many options are marked correct.
func correctPosition(q domain.Question) (int, int) {
	position, count := 0, 0
	for i, opt := range q.Options {
		if opt.IsCorrect {
			position = i + 1
			count++
		}
	}
	return position, count
}

func roundPercent(v float64) float64 {
	return math.Round(v*100) / 100
}
