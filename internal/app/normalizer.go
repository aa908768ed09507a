package app

import (
	"encoding/json"
	"strconv"
	"strings"

	"quiz-attempt-service/internal/domain"
)

// optionKeys lists, in lookup order, the object keys client implementations
// have used to carry the selected option.
var optionKeys = []string{
	"selectedOptionId",
	"selectedOption",
	"optionId",
	"option",
	"answerId",
	"answer",
	"selected",
	"value",
	"id",
}

// maxNestingDepth bounds how far nested answer objects are unwrapped.
const maxNestingDepth = 4

// NormalizeAnswers converts client-submitted answers into the canonical
// {questionId: {selectedOptionId}} form. Entries that resolve to no value are
// dropped. It never consults the quiz definition.
func NormalizeAnswers(raw map[string]any) domain.Answers {
	out := make(domain.Answers, len(raw))
	for questionID, value := range raw {
		questionID = strings.TrimSpace(questionID)
		if questionID == "" {
			continue
		}
		optionID, ok := selectedOption(value, 0)
		if !ok {
			continue
		}
		out[questionID] = domain.AnswerSelection{SelectedOptionID: optionID}
	}
	return out
}

func selectedOption(value any, depth int) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return nonEmpty(v)
	case json.Number:
		return nonEmpty(v.String())
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case domain.AnswerSelection:
		return nonEmpty(v.SelectedOptionID)
	case map[string]any:
		if depth >= maxNestingDepth {
			return "", false
		}
		for _, key := range optionKeys {
			if inner, ok := v[key]; ok {
				if id, ok := selectedOption(inner, depth+1); ok {
					return id, true
				}
			}
		}
		return "", false
	case map[string]string:
		for _, key := range optionKeys {
			if id, ok := nonEmpty(v[key]); ok {
				return id, true
			}
		}
		return "", false
	default:
		// Booleans, slices and other shapes carry no single option id.
		return "", false
	}
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}
