package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harishm17/study-buddy/internal/dispatch"
	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/pkg/models"
)

// NewJob builds a pending job row for data.
func NewJob(projectID, userID uuid.UUID, materialID *uuid.UUID, jobType models.JobType, data any, now time.Time) (*models.ProcessingJob, error) {
	input, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode job input: %w", err)
	}
	return &models.ProcessingJob{
		ID:         uuid.New(),
		ProjectID:  projectID,
		UserID:     userID,
		MaterialID: materialID,
		JobType:    jobType,
		Status:     models.JobStatusPending,
		Retryable:  true,
		InputData:  input,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Enqueue inserts job and dispatches it to its stage endpoint. It returns
// store.ErrDuplicateKey when a job of the same type is already in flight.
// A dispatch failure marks the new job failed and retryable, which frees
// the in-flight slot.
func Enqueue(ctx context.Context, s store.Store, d dispatch.Dispatcher, job *models.ProcessingJob, now time.Time) (string, error) {
	if err := s.CreateJob(ctx, job); err != nil {
		return "", err
	}
	return dispatchJob(ctx, s, d, job, now)
}

func dispatchJob(ctx context.Context, s store.Store, d dispatch.Dispatcher, job *models.ProcessingJob, now time.Time) (string, error) {
	req := models.JobRequest{JobID: job.ID, JobType: job.JobType, Data: job.InputData}
	taskID, err := d.Enqueue(ctx, job.JobType.Endpoint(), req)
	if err == nil {
		return taskID, nil
	}

	failure := store.JobFailure{
		Code:      job.JobType.FailureCode(),
		Message:   "dispatch failed: " + err.Error(),
		Retryable: true,
	}
	if ferr := s.FailJob(ctx, job.ID, failure, now); ferr != nil {
		return "", errors.Join(fmt.Errorf("dispatch job %s: %w", job.ID, err), ferr)
	}
	return "", fmt.Errorf("dispatch job %s: %w", job.ID, err)
}

// chainJob creates and dispatches the next job after parent. Chaining runs
// after the parent has completed, so failures are logged and never change
// the parent's outcome.
func (r *Runner) chainJob(ctx context.Context, parent *models.ProcessingJob, jobType models.JobType, materialID *uuid.UUID, data any) {
	logger := r.logger.With("parent_job_id", parent.ID, "job_type", jobType)
	now := r.clock()

	job, err := NewJob(parent.ProjectID, parent.UserID, materialID, jobType, data, now)
	if err != nil {
		logger.Error("failed to build chained job", "error", err)
		return
	}

	if err := r.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			logger.Info("job already in flight, chaining skipped")
			return
		}
		logger.Error("failed to create chained job", "error", err)
		return
	}

	if jobType == models.JobTypeExtractTopics && !r.hasCreds {
		failure := store.JobFailure{
			Code:    models.ErrCodeOpenAIKeyMissing,
			Message: "AI provider credentials are not configured",
		}
		if err := r.store.FailJob(ctx, job.ID, failure, now); err != nil {
			logger.Error("failed to record missing credentials", "job_id", job.ID, "error", err)
		}
		logger.Warn("chained job failed: missing AI credentials", "job_id", job.ID)
		return
	}

	endpoint := jobType.Endpoint()
	taskID, err := dispatchJob(ctx, r.store, r.dispatcher, job, now)
	r.metrics.ObserveDispatch(endpoint, err)
	if err != nil {
		logger.Error("chained job dispatch failed", "job_id", job.ID, "error", err)
		return
	}
	logger.Info("chained job dispatched", "job_id", job.ID, "task_id", taskID)
}

// chainExtract creates the project's extract_topics job once no valid
// material is left unchunked. It runs after the chunk write has committed;
// of two concurrent completions the later one sees both writes, and the
// in-flight uniqueness of CreateJob resolves a double create.
func (r *Runner) chainExtract(ctx context.Context, parent *models.ProcessingJob) {
	if !r.cfg.AutoExtractTopics {
		return
	}
	logger := r.logger.With("project_id", parent.ProjectID)

	remaining, err := r.store.CountUnchunkedMaterials(ctx, parent.ProjectID)
	if err != nil {
		logger.Error("fan-in check failed", "error", err)
		return
	}
	if remaining > 0 {
		logger.Debug("waiting for materials before topic extraction", "remaining", remaining)
		return
	}

	active, err := r.store.HasActiveJob(ctx, parent.ProjectID, models.JobTypeExtractTopics)
	if err != nil {
		logger.Error("active job check failed", "error", err)
		return
	}
	if active {
		return
	}

	r.chainJob(ctx, parent, models.JobTypeExtractTopics, nil, extractInput{ProjectID: parent.ProjectID})
}
