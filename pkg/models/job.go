// Package models contains the data models shared across the StudyBuddy pipeline.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType identifies a pipeline stage. The set is closed.
type JobType string

const (
	JobTypeValidateMaterial JobType = "validate_material"
	JobTypeChunkMaterial    JobType = "chunk_material"
	JobTypeExtractTopics    JobType = "extract_topics"
	JobTypeGenerateContent  JobType = "generate_content"
	JobTypeGenerateExam     JobType = "generate_exam"
	JobTypeGradeExam        JobType = "grade_exam"
)

// JobTypes lists every job type in pipeline order.
var JobTypes = []JobType{
	JobTypeValidateMaterial,
	JobTypeChunkMaterial,
	JobTypeExtractTopics,
	JobTypeGenerateContent,
	JobTypeGenerateExam,
	JobTypeGradeExam,
}

// ParseJobType returns the JobType for s, or an error if s is not a known type.
func ParseJobType(s string) (JobType, error) {
	for _, t := range JobTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown job type %q", s)
}

// Endpoint is the HTTP path a dispatcher delivers this job type to.
func (t JobType) Endpoint() string {
	switch t {
	case JobTypeValidateMaterial:
		return "/jobs/validate-material"
	case JobTypeChunkMaterial:
		return "/jobs/chunk-material"
	case JobTypeExtractTopics:
		return "/jobs/extract-topics"
	case JobTypeGenerateContent:
		return "/jobs/generate-content"
	case JobTypeGenerateExam:
		return "/jobs/generate-exam"
	case JobTypeGradeExam:
		return "/jobs/grade-exam"
	}
	return ""
}

// FailureCode is the taxonomy code recorded when a job of this type fails.
func (t JobType) FailureCode() ErrorCode {
	switch t {
	case JobTypeValidateMaterial:
		return ErrCodeValidationFailed
	case JobTypeChunkMaterial:
		return ErrCodeChunkingFailed
	case JobTypeExtractTopics:
		return ErrCodeTopicExtractionFailed
	case JobTypeGenerateContent:
		return ErrCodeContentGenerationFailed
	case JobTypeGenerateExam:
		return ErrCodeExamGenerationFailed
	case JobTypeGradeExam:
		return ErrCodeExamGradingFailed
	}
	return ""
}

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// ErrorCode is the failure taxonomy persisted on a failed job row.
type ErrorCode string

const (
	ErrCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrCodeMaterialNotFound        ErrorCode = "MATERIAL_NOT_FOUND"
	ErrCodeChunkingFailed          ErrorCode = "CHUNKING_FAILED"
	ErrCodeOpenAIKeyMissing        ErrorCode = "OPENAI_KEY_MISSING"
	ErrCodeTopicExtractionFailed   ErrorCode = "TOPIC_EXTRACTION_FAILED"
	ErrCodeContentGenerationFailed ErrorCode = "CONTENT_GENERATION_FAILED"
	ErrCodeExamGenerationFailed    ErrorCode = "EXAM_GENERATION_FAILED"
	ErrCodeExamGradingFailed       ErrorCode = "EXAM_GRADING_FAILED"
)

// ProcessingJob is one unit of pipeline work. The job row is the source of
// truth for status; HTTP responses only mirror it.
type ProcessingJob struct {
	ID              uuid.UUID       `db:"id"               json:"id"`
	ProjectID       uuid.UUID       `db:"project_id"       json:"projectId"`
	UserID          uuid.UUID       `db:"user_id"          json:"userId"`
	MaterialID      *uuid.UUID      `db:"material_id"      json:"materialId,omitempty"`
	JobType         JobType         `db:"job_type"         json:"jobType"`
	Status          string          `db:"status"           json:"status"`
	Stage           *string         `db:"stage"            json:"stage,omitempty"`
	ProgressPercent int             `db:"progress_percent" json:"progressPercent"`
	AttemptCount    int             `db:"attempt_count"    json:"attemptCount"`
	ErrorCode       *ErrorCode      `db:"error_code"       json:"errorCode,omitempty"`
	ErrorMessage    *string         `db:"error_message"    json:"errorMessage,omitempty"`
	Retryable       bool            `db:"retryable"        json:"retryable"`
	InputData       json.RawMessage `db:"input_data"       json:"inputData,omitempty"`
	ResultData      json.RawMessage `db:"result_data"      json:"resultData,omitempty"`
	CreatedAt       time.Time       `db:"created_at"       json:"createdAt"`
	StartedAt       *time.Time      `db:"started_at"       json:"startedAt,omitempty"`
	CompletedAt     *time.Time      `db:"completed_at"     json:"completedAt,omitempty"`
	UpdatedAt       time.Time       `db:"updated_at"       json:"updatedAt"`
}

// Terminal reports whether the job has reached completed or failed.
func (j *ProcessingJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// JobRequest is the envelope a dispatcher delivers to a stage endpoint.
type JobRequest struct {
	JobID   uuid.UUID       `json:"jobId"`
	JobType JobType         `json:"jobType"`
	Data    json.RawMessage `json:"data"`
}
