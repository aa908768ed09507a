package app

import (
	"encoding/json"
	"testing"

	"quiz-attempt-service/internal/domain"
)

func TestNormalizeAnswersShapes(t *testing.T) {
	raw := map[string]any{
		"q1":  "2",
		"q2":  float64(3),
		"q3":  map[string]any{"selectedOptionId": "1"},
		"q4":  map[string]any{"optionId": 4},
		"q5":  map[string]any{"answer": map[string]any{"id": "2"}},
		"q6":  json.Number("5"),
		"q7":  nil,
		"q8":  "",
		"q9":  map[string]any{"unrelated": "x"},
		"q10": true,
		" ":   "1",
		"q11": map[string]any{"selectedOptionId": "", "value": "3"},
	}
	got := NormalizeAnswers(raw)
	want := domain.Answers{
		"q1":  {SelectedOptionID: "2"},
		"q2":  {SelectedOptionID: "3"},
		"q3":  {SelectedOptionID: "1"},
		"q4":  {SelectedOptionID: "4"},
		"q5":  {SelectedOptionID: "2"},
		"q6":  {SelectedOptionID: "5"},
		"q11": {SelectedOptionID: "3"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d answers, got %d: %+v", len(want), len(got), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("answer %s: expected %+v, got %+v", k, v, got[k])
		}
	}
}

func TestNormalizeAnswersFromJSON(t *testing.T) {
	var raw map[string]any
	body := `{"q1":{"selectedOption":2},"q2":"1","q3":{"selectedOptionId":null}}`
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := NormalizeAnswers(raw)
	if got["q1"].SelectedOptionID != "2" || got["q2"].SelectedOptionID != "1" {
		t.Fatalf("unexpected normalization: %+v", got)
	}
	if _, ok := got["q3"]; ok {
		t.Fatalf("expected null selection to be dropped")
	}
}

func TestNormalizeAnswersEmpty(t *testing.T) {
	if got := NormalizeAnswers(nil); len(got) != 0 {
		t.Fatalf("expected empty answers, got %+v", got)
	}
}
