package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.ProcessingJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error)
	StartJob(ctx context.Context, id uuid.UUID, stage string, now time.Time) (*models.ProcessingJob, error)
	UpdateJobProgress(ctx context.Context, id uuid.UUID, stage string, percent int, now time.Time) error
	CompleteJob(ctx context.Context, id uuid.UUID, result json.RawMessage, now time.Time) error
	FailJob(ctx context.Context, id uuid.UUID, failure JobFailure, now time.Time) error
	HasActiveJob(ctx context.Context, projectID uuid.UUID, jobType models.JobType) (bool, error)

	GetMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error)
	SetMaterialValidation(ctx context.Context, id uuid.UUID, status, notes string, now time.Time) error
	ListValidMaterials(ctx context.Context, projectID uuid.UUID) ([]*models.Material, error)
	CountUnchunkedMaterials(ctx context.Context, projectID uuid.UUID) (int, error)

	ReplaceChunks(ctx context.Context, materialID uuid.UUID, chunks []*models.Chunk, now time.Time) error
	ListRepresentativeChunks(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.ChunkSample, error)
	KeywordSearch(ctx context.Context, projectID uuid.UUID, patterns []string, limit int) ([]models.ChunkHit, error)
	SemanticSearch(ctx context.Context, projectID uuid.UUID, embedding []float32, limit int) ([]models.ChunkHit, error)
	ListTopicChunks(ctx context.Context, topicID uuid.UUID, limit int) ([]*models.TopicChunk, error)

	ListTopics(ctx context.Context, projectID uuid.UUID) ([]*models.Topic, error)
	GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error)
	ListTopicsByIDs(ctx context.Context, projectID uuid.UUID, ids []uuid.UUID) ([]*models.Topic, error)
	SyncTopics(ctx context.Context, projectID uuid.UUID, sync TopicSync, now time.Time) error

	CreateTopicContent(ctx context.Context, content *models.TopicContent) error
	CreateSampleExam(ctx context.Context, exam *models.SampleExam) error
	SaveGrading(ctx context.Context, submissionID uuid.UUID, grading, feedback json.RawMessage, now time.Time) error
}

// JobFailure is the terminal error state written to a failed job row.
type JobFailure struct {
	Code      models.ErrorCode
	Message   string
	Retryable bool
}

// TopicSync is one extraction run's topic changes, applied in a single
// transaction. Mappings fully replace the mappings of every updated or
// inserted topic. Deletes only ever remove unconfirmed topics.
type TopicSync struct {
	Updates  []*models.Topic
	Inserts  []*models.Topic
	Deletes  []uuid.UUID
	Mappings []models.TopicChunkMapping
}

// ProjectStatusTopicsPending is written to the project once extracted topics
// await user confirmation.
const ProjectStatusTopicsPending = "topics_pending"
