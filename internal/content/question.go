package content

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Option is one choice of a multiple choice question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a quiz or exam question. CorrectAnswer keeps the model's raw
// JSON: a letter for multiple choice, a bool for true/false, a number for
// numerical questions.
type Question struct {
	QuestionType   string          `json:"question_type"`
	QuestionText   string          `json:"question_text"`
	Options        []Option        `json:"options,omitempty"`
	CorrectAnswer  json.RawMessage `json:"correct_answer,omitempty"`
	SampleAnswer   string          `json:"sample_answer,omitempty"`
	KeyPoints      []string        `json:"key_points,omitempty"`
	Unit           string          `json:"unit,omitempty"`
	Tolerance      float64         `json:"tolerance,omitempty"`
	Explanation    string          `json:"explanation,omitempty"`
	Points         float64         `json:"points"`
	Difficulty     string          `json:"difficulty,omitempty"`
	ConceptsTested []string        `json:"concepts_tested,omitempty"`
	TopicID        string          `json:"topic_id,omitempty"`
	TopicName      string          `json:"topic_name,omitempty"`
}

// PointValue returns Points, or 1 when the question carries none.
func (q Question) PointValue() float64 {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// answerString decodes raw as a string, or returns its literal text for
// other JSON values.
func answerString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// answerBool accepts JSON booleans, numbers and the strings true, 1, yes
// and t in any case. Anything else is false.
func answerBool(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes", "t":
			return true
		}
	}
	return false
}

// answerFloat accepts JSON numbers and numeric strings.
func answerFloat(raw json.RawMessage) (float64, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
