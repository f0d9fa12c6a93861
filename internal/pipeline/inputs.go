package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/harishm17/study-buddy/internal/content"
	"github.com/harishm17/study-buddy/pkg/models"
)

// materialInput is the data of validate_material and chunk_material jobs.
type materialInput struct {
	MaterialID uuid.UUID `json:"materialId"`
}

// materialID falls back to the job row when the request omits it.
func (in materialInput) materialID(job *models.ProcessingJob) (uuid.UUID, error) {
	if in.MaterialID != uuid.Nil {
		return in.MaterialID, nil
	}
	if job.MaterialID != nil {
		return *job.MaterialID, nil
	}
	return uuid.Nil, fmt.Errorf("%w: missing materialId", ErrInvalidInput)
}

type extractInput struct {
	ProjectID uuid.UUID `json:"projectId"`
}

type contentInput struct {
	TopicID     uuid.UUID           `json:"topicId"`
	ContentType string              `json:"contentType"`
	Preferences content.Preferences `json:"preferences"`
}

type examInput struct {
	ProjectID uuid.UUID          `json:"projectId"`
	TopicIDs  []uuid.UUID        `json:"topicIds"`
	Config    content.ExamConfig `json:"config"`
}

type gradeInput struct {
	SubmissionID uuid.UUID                  `json:"submissionId"`
	Questions    []content.Question         `json:"questions"`
	Answers      map[string]json.RawMessage `json:"answers"`
}

func (in gradeInput) validate() error {
	if in.SubmissionID == uuid.Nil || len(in.Questions) == 0 || in.Answers == nil {
		return fmt.Errorf("%w: missing required data", ErrInvalidInput)
	}
	return nil
}
