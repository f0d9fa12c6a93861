package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContentType is the kind of study content generated for a topic. The set is closed.
type ContentType string

const (
	ContentSectionNotes        ContentType = "section_notes"
	ContentSolvedExamples      ContentType = "solved_examples"
	ContentInteractiveExamples ContentType = "interactive_examples"
	ContentTopicQuiz           ContentType = "topic_quiz"
)

var contentTypes = []ContentType{
	ContentSectionNotes,
	ContentSolvedExamples,
	ContentInteractiveExamples,
	ContentTopicQuiz,
}

// ParseContentType returns the ContentType for s, or an error if s is unknown.
func ParseContentType(s string) (ContentType, error) {
	for _, t := range contentTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown content type %q", s)
}

// TopicContent is one generated artifact for a topic.
type TopicContent struct {
	ID          uuid.UUID       `db:"id"           json:"id"`
	TopicID     uuid.UUID       `db:"topic_id"     json:"topicId"`
	ContentType ContentType     `db:"content_type" json:"contentType"`
	ContentData json.RawMessage `db:"content_data" json:"contentData"`
	Metadata    json.RawMessage `db:"metadata"     json:"metadata"`
	CreatedAt   time.Time       `db:"created_at"   json:"createdAt"`
}

// Question types shared by quizzes and exams.
const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionShortAnswer    = "short_answer"
	QuestionNumerical      = "numerical"
	QuestionTrueFalse      = "true_false"
)

// SampleExam is a generated exam spanning several topics.
type SampleExam struct {
	ID              uuid.UUID       `db:"id"               json:"id"`
	ProjectID       uuid.UUID       `db:"project_id"       json:"projectId"`
	Name            string          `db:"name"             json:"name"`
	Questions       json.RawMessage `db:"questions"        json:"questions"`
	DurationMinutes int             `db:"duration_minutes" json:"durationMinutes"`
	DifficultyLevel string          `db:"difficulty_level" json:"difficultyLevel"`
	TopicsCovered   []string        `db:"topics_covered"   json:"topicsCovered"`
	CreatedAt       time.Time       `db:"created_at"       json:"createdAt"`
}
