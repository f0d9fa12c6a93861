// Package pipeline runs one job of the ingestion and generation pipeline:
// it moves the job row through its states, runs the stage and chains the
// next job.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/harishm17/study-buddy/internal/ai"
	"github.com/harishm17/study-buddy/internal/cache"
	"github.com/harishm17/study-buddy/internal/config"
	"github.com/harishm17/study-buddy/internal/content"
	"github.com/harishm17/study-buddy/internal/dispatch"
	"github.com/harishm17/study-buddy/internal/extract"
	"github.com/harishm17/study-buddy/internal/metrics"
	"github.com/harishm17/study-buddy/internal/retrieval"
	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/internal/topics"
	"github.com/harishm17/study-buddy/pkg/models"
)

var (
	// ErrInvalidInput marks a request whose data cannot be run.
	ErrInvalidInput = errors.New("invalid job input")
	// ErrUnprocessable marks input that parsed but can never produce a result.
	ErrUnprocessable = errors.New("unprocessable material")
)

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
)

// Request is one delivery of a job.
type Request struct {
	JobID   uuid.UUID
	JobType models.JobType
	Data    json.RawMessage
}

// Outcome is an acknowledged delivery. Fields holds the stage's response
// fields, such as topicsCount or contentId.
type Outcome struct {
	Status    string
	JobID     uuid.UUID
	Duplicate bool
	Fields    map[string]any
}

// Body renders the outcome as the response object.
func (o *Outcome) Body() map[string]any {
	body := map[string]any{"status": o.Status, "jobId": o.JobID}
	for k, v := range o.Fields {
		body[k] = v
	}
	if o.Duplicate {
		body["duplicate"] = true
	}
	return body
}

// StageError is a failed delivery. When the job row exists the failure has
// already been written to it.
type StageError struct {
	JobID     uuid.UUID
	Code      models.ErrorCode
	Retryable bool
	Status    int
	Err       error
}

func (e *StageError) Error() string { return e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Deps are the Runner's collaborators. Cache and Metrics may be nil.
type Deps struct {
	Store          store.Store
	Extractor      extract.Extractor
	Generator      models.Generator
	Embedder       models.Embedder
	Dispatcher     dispatch.Dispatcher
	Cache          cache.Cache
	Metrics        *metrics.Metrics
	Config         config.PipelineConfig
	StatusTTL      time.Duration
	HasCredentials bool
	Clock          func() time.Time
}

// Runner executes jobs. It is safe for concurrent use.
type Runner struct {
	store      store.Store
	extractor  extract.Extractor
	generator  models.Generator
	embedder   models.Embedder
	dispatcher dispatch.Dispatcher
	cache      cache.Cache
	metrics    *metrics.Metrics
	cfg        config.PipelineConfig
	statusTTL  time.Duration
	hasCreds   bool
	clock      func() time.Time
	logger     *slog.Logger

	engine  *retrieval.Engine
	topics  *topics.Extractor
	content *content.Generator
	exams   *content.ExamGenerator
	grader  *content.Grader
	pool    *ants.Pool
	stages  map[models.JobType]stage
}

// stage is one row of the job type table.
type stage struct {
	name         string
	code         models.ErrorCode
	notFoundCode models.ErrorCode
	// skipNotFound acknowledges a missing primary entity instead of failing
	// the delivery, so the dispatcher stops redelivering.
	skipNotFound bool
	run          func(ctx context.Context, sr *stageRun) (*stageResult, error)
}

// stageResult is what a stage hands back on success. chain runs after the
// job is marked completed.
type stageResult struct {
	result any
	fields map[string]any
	chain  func(ctx context.Context)
}

// NewRunner wires a Runner. Call Close to release the embedding pool.
func NewRunner(d Deps) (*Runner, error) {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Config.EmbedConcurrency < 1 {
		d.Config.EmbedConcurrency = 1
	}
	if d.Config.EmbedBatchSize < 1 {
		d.Config.EmbedBatchSize = 64
	}
	if d.Config.StageTimeout <= 0 {
		d.Config.StageTimeout = 10 * time.Minute
	}

	pool, err := ants.NewPool(d.Config.EmbedConcurrency)
	if err != nil {
		return nil, fmt.Errorf("embedding pool: %w", err)
	}

	r := &Runner{
		store:      d.Store,
		extractor:  d.Extractor,
		generator:  d.Generator,
		embedder:   d.Embedder,
		dispatcher: d.Dispatcher,
		cache:      d.Cache,
		metrics:    d.Metrics,
		cfg:        d.Config,
		statusTTL:  d.StatusTTL,
		hasCreds:   d.HasCredentials,
		clock:      d.Clock,
		logger:     slog.Default().With("component", "pipeline"),
		engine:     retrieval.NewEngine(d.Store, d.Embedder, d.Metrics),
		topics:     topics.NewExtractor(d.Generator, d.Store),
		content:    content.NewGenerator(d.Generator, d.Store),
		exams:      content.NewExamGenerator(d.Generator, d.Store),
		grader:     content.NewGrader(d.Generator),
		pool:       pool,
	}

	r.stages = map[models.JobType]stage{
		models.JobTypeValidateMaterial: {
			name:         "validate",
			code:         models.ErrCodeValidationFailed,
			notFoundCode: models.ErrCodeMaterialNotFound,
			run:          r.validate,
		},
		models.JobTypeChunkMaterial: {
			name:         "chunk",
			code:         models.ErrCodeChunkingFailed,
			notFoundCode: models.ErrCodeMaterialNotFound,
			skipNotFound: true,
			run:          r.chunk,
		},
		models.JobTypeExtractTopics: {
			name:         "extract",
			code:         models.ErrCodeTopicExtractionFailed,
			notFoundCode: models.ErrCodeTopicExtractionFailed,
			run:          r.extractTopics,
		},
		models.JobTypeGenerateContent: {
			name:         "generate",
			code:         models.ErrCodeContentGenerationFailed,
			notFoundCode: models.ErrCodeContentGenerationFailed,
			run:          r.generateContent,
		},
		models.JobTypeGenerateExam: {
			name:         "generate",
			code:         models.ErrCodeExamGenerationFailed,
			notFoundCode: models.ErrCodeExamGenerationFailed,
			run:          r.generateExam,
		},
		models.JobTypeGradeExam: {
			name:         "grade",
			code:         models.ErrCodeExamGradingFailed,
			notFoundCode: models.ErrCodeExamGradingFailed,
			run:          r.gradeExam,
		},
	}
	return r, nil
}

// Close releases the embedding pool.
func (r *Runner) Close() {
	r.pool.Release()
}

// Run executes one delivery of a job. A completed job is acknowledged as a
// duplicate and a permanently failed one as skipped; neither is re-run.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	st, ok := r.stages[req.JobType]
	if !ok {
		return nil, &StageError{JobID: req.JobID, Status: http.StatusBadRequest,
			Err: fmt.Errorf("%w: unknown job type %q", ErrInvalidInput, req.JobType)}
	}
	began := r.clock()
	logger := r.logger.With("job_id", req.JobID, "job_type", req.JobType)

	job, err := r.store.GetJob(ctx, req.JobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &StageError{JobID: req.JobID, Code: st.code, Status: http.StatusNotFound,
			Err: fmt.Errorf("job %s: %w", req.JobID, err)}
	}
	if err != nil {
		return nil, &StageError{JobID: req.JobID, Code: st.code, Retryable: true, Status: http.StatusInternalServerError,
			Err: fmt.Errorf("load job: %w", err)}
	}
	if job.JobType != req.JobType {
		return nil, &StageError{JobID: req.JobID, Code: st.code, Status: http.StatusBadRequest,
			Err: fmt.Errorf("%w: job %s is %s, not %s", ErrInvalidInput, job.ID, job.JobType, req.JobType)}
	}

	switch {
	case job.Status == models.JobStatusCompleted:
		logger.Info("redelivery of completed job acknowledged")
		r.metrics.ObserveJob(string(req.JobType), metrics.OutcomeDuplicate, 0)
		return &Outcome{Status: StatusSuccess, JobID: job.ID, Duplicate: true}, nil
	case job.Status == models.JobStatusFailed && !job.Retryable:
		logger.Info("redelivery of permanently failed job skipped")
		r.metrics.ObserveJob(string(req.JobType), metrics.OutcomeSkipped, 0)
		return &Outcome{Status: StatusSkipped, JobID: job.ID}, nil
	}

	now := r.clock()
	job, err = r.store.StartJob(ctx, job.ID, st.name, now)
	if errors.Is(err, store.ErrInvalidTransition) {
		return nil, &StageError{JobID: req.JobID, Code: st.code, Status: http.StatusConflict, Err: err}
	}
	if err != nil {
		return nil, &StageError{JobID: req.JobID, Code: st.code, Retryable: true, Status: http.StatusInternalServerError,
			Err: fmt.Errorf("start job: %w", err)}
	}
	r.mirror(ctx, job.ID, cache.JobStatus{Status: models.JobStatusProcessing, Stage: st.name, ProgressPercent: 10, UpdatedAt: now})
	logger.Info("stage started", "stage", st.name, "attempt", job.AttemptCount)

	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.StageTimeout)
	res, runErr := st.run(stageCtx, &stageRun{runner: r, job: job, stage: st.name, data: req.Data, now: now})
	cancel()

	if runErr != nil {
		return r.fail(ctx, job, st, runErr, began)
	}

	result, err := json.Marshal(res.result)
	if err != nil {
		return r.fail(ctx, job, st, fmt.Errorf("encode result: %w", err), began)
	}
	done := r.clock()
	if err := r.store.CompleteJob(ctx, job.ID, result, done); err != nil {
		return r.fail(ctx, job, st, fmt.Errorf("complete job: %w", err), began)
	}
	r.mirror(ctx, job.ID, cache.JobStatus{Status: models.JobStatusCompleted, Stage: st.name, ProgressPercent: 100, UpdatedAt: done})
	r.metrics.ObserveJob(string(job.JobType), metrics.OutcomeCompleted, done.Sub(began))
	logger.Info("stage completed", "stage", st.name, "duration_ms", done.Sub(began).Milliseconds())

	if res.chain != nil {
		res.chain(ctx)
	}
	return &Outcome{Status: StatusSuccess, JobID: job.ID, Fields: res.fields}, nil
}

// failure is a classified stage error.
type failure struct {
	code      models.ErrorCode
	retryable bool
	status    int
	skip      bool
}

// classify maps a stage error to its code, retryability and HTTP status
// using typed errors only.
func classify(st stage, jobType models.JobType, err error) failure {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, content.ErrUnknownContentType):
		return failure{code: st.code, status: http.StatusBadRequest}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, content.ErrNoChunks):
		return failure{code: st.notFoundCode, status: http.StatusNotFound, skip: st.skipNotFound}
	case errors.Is(err, ErrUnprocessable):
		return failure{code: st.code, status: http.StatusUnprocessableEntity}
	case ai.IsConfigError(err):
		code := st.code
		if jobType == models.JobTypeExtractTopics {
			code = models.ErrCodeOpenAIKeyMissing
		}
		return failure{code: code, status: http.StatusBadRequest}
	}
	return failure{code: st.code, retryable: true, status: http.StatusInternalServerError}
}

func (r *Runner) fail(ctx context.Context, job *models.ProcessingJob, st stage, err error, began time.Time) (*Outcome, error) {
	f := classify(st, job.JobType, err)
	now := r.clock()
	logger := r.logger.With("job_id", job.ID, "job_type", job.JobType, "stage", st.name)

	if werr := r.store.FailJob(ctx, job.ID, store.JobFailure{Code: f.code, Message: err.Error(), Retryable: f.retryable}, now); werr != nil {
		logger.Error("failed to record job failure", "error", werr)
	}
	r.mirror(ctx, job.ID, cache.JobStatus{Status: models.JobStatusFailed, Stage: st.name, ErrorCode: string(f.code), UpdatedAt: now})

	if f.skip {
		logger.Warn("primary entity missing, acknowledging as skipped", "code", f.code, "error", err)
		r.metrics.ObserveJob(string(job.JobType), metrics.OutcomeSkipped, now.Sub(began))
		return &Outcome{Status: StatusSkipped, JobID: job.ID, Fields: map[string]any{"reason": f.code}}, nil
	}

	logger.Error("stage failed", "code", f.code, "retryable", f.retryable, "error", err)
	r.metrics.ObserveJob(string(job.JobType), metrics.OutcomeFailed, now.Sub(began))
	return nil, &StageError{JobID: job.ID, Code: f.code, Retryable: f.retryable, Status: f.status, Err: err}
}

// mirror writes the job status to the cache. Failures only cost pollers a
// database read.
func (r *Runner) mirror(ctx context.Context, jobID uuid.UUID, status cache.JobStatus) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetJobStatus(ctx, jobID, status, r.statusTTL); err != nil {
		r.logger.Warn("job status mirror failed", "job_id", jobID, "error", err)
	}
}

// stageRun carries one execution of a stage. now is captured once at stage
// entry and used for every entity write of the stage.
type stageRun struct {
	runner *Runner
	job    *models.ProcessingJob
	stage  string
	data   json.RawMessage
	now    time.Time
}

// progress records an advisory checkpoint.
func (sr *stageRun) progress(ctx context.Context, percent int) {
	r := sr.runner
	now := r.clock()
	if err := r.store.UpdateJobProgress(ctx, sr.job.ID, sr.stage, percent, now); err != nil {
		r.logger.Warn("progress update failed", "job_id", sr.job.ID, "percent", percent, "error", err)
		return
	}
	r.mirror(ctx, sr.job.ID, cache.JobStatus{Status: models.JobStatusProcessing, Stage: sr.stage, ProgressPercent: percent, UpdatedAt: now})
}

// decode unmarshals stage data into v.
func (sr *stageRun) decode(v any) error {
	data := sr.data
	if len(data) == 0 {
		data = sr.job.InputData
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidInput)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
