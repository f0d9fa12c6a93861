package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/harishm17/study-buddy/internal/api/response"
	"github.com/harishm17/study-buddy/internal/cache"
	"github.com/harishm17/study-buddy/internal/pipeline"
	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/pkg/models"
)

// Runner defines the pipeline interface the job handlers depend on.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// NewJobHandler returns the POST handler for one stage endpoint. Success
// bodies are bare {status, jobId, ...} objects; failures use the error
// envelope with the job's taxonomy code.
func NewJobHandler(runner Runner, jobType models.JobType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JobID   string          `json:"jobId"`
			JobType string          `json:"jobType"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		jobID, err := uuid.Parse(req.JobID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobId must be a UUID", nil)
			return
		}
		if req.JobType != "" && req.JobType != string(jobType) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"jobType "+req.JobType+" cannot be delivered to "+jobType.Endpoint(), nil)
			return
		}

		out, err := runner.Run(r.Context(), pipeline.Request{JobID: jobID, JobType: jobType, Data: req.Data})
		if err != nil {
			writeStageError(w, err)
			return
		}
		response.Bare(w, http.StatusOK, out.Body())
	}
}

func writeStageError(w http.ResponseWriter, err error) {
	var se *pipeline.StageError
	if !errors.As(err, &se) {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	code := string(se.Code)
	if code == "" {
		code = "INVALID_REQUEST"
	}
	details := map[string]any{"jobId": se.JobID, "retryable": se.Retryable}
	response.Error(w, se.Status, code, se.Error(), details)
}

// JobReader is the store subset the status handler reads.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error)
}

// jobStatusResponse is the polled view of a job.
type jobStatusResponse struct {
	ID              uuid.UUID       `json:"id"`
	JobType         models.JobType  `json:"jobType,omitempty"`
	Status          string          `json:"status"`
	Stage           string          `json:"stage,omitempty"`
	ProgressPercent int             `json:"progressPercent"`
	ErrorCode       string          `json:"errorCode,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	Retryable       bool            `json:"retryable"`
	ResultData      json.RawMessage `json:"resultData,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Source          string          `json:"source"`
}

// NewGetJobHandler returns the handler for GET /jobs/{jobID}. An in-flight
// status mirrored in the cache is served without touching the database;
// terminal jobs are always read from the job row, which carries the result.
func NewGetJobHandler(jobs JobReader, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		if c != nil {
			cached, found, err := c.GetJobStatus(r.Context(), jobID)
			if err == nil && found && !terminal(cached.Status) {
				response.JSON(w, jobStatusResponse{
					ID:              jobID,
					Status:          cached.Status,
					Stage:           cached.Stage,
					ProgressPercent: cached.ProgressPercent,
					Retryable:       true,
					UpdatedAt:       cached.UpdatedAt,
					Source:          "cache",
				})
				return
			}
		}

		job, err := jobs.GetJob(r.Context(), jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}

		resp := jobStatusResponse{
			ID:              job.ID,
			JobType:         job.JobType,
			Status:          job.Status,
			ProgressPercent: job.ProgressPercent,
			Retryable:       job.Retryable,
			ResultData:      job.ResultData,
			UpdatedAt:       job.UpdatedAt,
			Source:          "database",
		}
		if job.Stage != nil {
			resp.Stage = *job.Stage
		}
		if job.ErrorCode != nil {
			resp.ErrorCode = string(*job.ErrorCode)
		}
		if job.ErrorMessage != nil {
			resp.ErrorMessage = *job.ErrorMessage
		}
		response.JSON(w, resp)
	}
}

func terminal(status string) bool {
	return status == models.JobStatusCompleted || status == models.JobStatusFailed
}
