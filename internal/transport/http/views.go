package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"quiz-attempt-service/internal/domain"
)

// attemptView decorates an attempt with its timing for clients.
type attemptView struct {
	domain.Attempt
	State            domain.AttemptState `json:"state"`
	Deadline         *time.Time          `json:"deadline,omitempty"`
	RemainingSeconds *int64              `json:"remainingSeconds,omitempty"`
}

func newAttemptView(a domain.Attempt, quiz domain.QuizDefinition, now time.Time) attemptView {
	view := attemptView{Attempt: a, State: a.State()}
	if limit, ok := quiz.TimeLimit(); ok {
		deadline := a.Deadline(limit)
		view.Deadline = &deadline
		if !a.Completed() {
			left := int64(a.Remaining(limit, now) / time.Second)
			view.RemainingSeconds = &left
		}
	}
	return view
}

type answersRequest struct {
	Answers map[string]any `json:"answers"`
}

type errorPayload struct {
	Message           string `json:"message"`
	ExistingAttemptID string `json:"existingAttemptId,omitempty"`
}

func errorBody(err error) errorPayload {
	body := errorPayload{Message: err.Error()}
	if id, ok := domain.ExistingAttemptID(err); ok {
		body.ExistingAttemptID = id
	}
	return body
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyCompleted), errors.Is(err, domain.ErrActiveAttemptExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQuizUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// decodeAnswers reads an optional {"answers": {...}} body. Numbers are kept as
// json.Number so option ids are not reformatted.
func decodeAnswers(r *http.Request) (map[string]any, error) {
	var req answersRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, errBadRequest
	}
	return req.Answers, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
