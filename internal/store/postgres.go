package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, project_id, user_id, material_id, job_type, status, stage, progress_percent,
	attempt_count, error_code, error_message, retryable, input_data, result_data,
	created_at, started_at, completed_at, updated_at`

func scanJob(row pgx.Row) (*models.ProcessingJob, error) {
	var j models.ProcessingJob
	err := row.Scan(&j.ID, &j.ProjectID, &j.UserID, &j.MaterialID, &j.JobType, &j.Status, &j.Stage,
		&j.ProgressPercent, &j.AttemptCount, &j.ErrorCode, &j.ErrorMessage, &j.Retryable,
		&j.InputData, &j.ResultData, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	input := job.InputData
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO processing_jobs (id, project_id, user_id, material_id, job_type, status, retryable, input_data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8, $9)`,
		job.ID, job.ProjectID, job.UserID, job.MaterialID, job.JobType, job.Status, input, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	job.InputData = input
	job.Retryable = true
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

var validTransitions = map[string][]string{
	models.JobStatusPending:    {models.JobStatusProcessing, models.JobStatusFailed},
	models.JobStatusProcessing: {models.JobStatusProcessing, models.JobStatusCompleted, models.JobStatusFailed},
	models.JobStatusFailed:     {models.JobStatusProcessing},
}

// sourcesFor returns every status that may move to target.
func sourcesFor(target string) []string {
	var from []string
	for status, allowed := range validTransitions {
		for _, a := range allowed {
			if a == target {
				from = append(from, status)
				break
			}
		}
	}
	return from
}

// StartJob moves a job into processing for a new attempt. A failed job may
// only be restarted when it is retryable.
func (s *PostgresStore) StartJob(ctx context.Context, id uuid.UUID, stage string, now time.Time) (*models.ProcessingJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE processing_jobs
		 SET status = 'processing', stage = $2, attempt_count = attempt_count + 1,
		     progress_percent = 10, started_at = $3, completed_at = NULL,
		     error_code = NULL, error_message = NULL, updated_at = $3
		 WHERE id = $1 AND status = ANY($4) AND (status <> 'failed' OR retryable)
		 RETURNING `+jobColumns,
		id, stage, now, sourcesFor(models.JobStatusProcessing)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionError(ctx, id, models.JobStatusProcessing)
	}
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}
	return j, nil
}

// UpdateJobProgress records a checkpoint. Progress never decreases within a run.
func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, stage string, percent int, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_jobs
		 SET stage = $2, progress_percent = GREATEST(progress_percent, $3), updated_at = $4
		 WHERE id = $1 AND status = 'processing'`,
		id, stage, percent, now)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, models.JobStatusProcessing)
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, result json.RawMessage, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_jobs
		 SET status = 'completed', progress_percent = 100, result_data = $2,
		     error_code = NULL, error_message = NULL, retryable = TRUE,
		     completed_at = $3, updated_at = $3
		 WHERE id = $1 AND status = ANY($4)`,
		id, result, now, sourcesFor(models.JobStatusCompleted))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, models.JobStatusCompleted)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, failure JobFailure, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_jobs
		 SET status = 'failed', error_code = $2, error_message = $3, retryable = $4,
		     completed_at = $5, updated_at = $5
		 WHERE id = $1 AND status = ANY($6)`,
		id, failure.Code, failure.Message, failure.Retryable, now, sourcesFor(models.JobStatusFailed))
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, models.JobStatusFailed)
	}
	return nil
}

// transitionError explains why a guarded job update matched no row.
func (s *PostgresStore) transitionError(ctx context.Context, id uuid.UUID, target string) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM processing_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}

func (s *PostgresStore) HasActiveJob(ctx context.Context, projectID uuid.UUID, jobType models.JobType) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM processing_jobs
		   WHERE project_id = $1 AND job_type = $2 AND status IN ('pending', 'processing'))`,
		projectID, jobType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active job: %w", err)
	}
	return exists, nil
}

// --- Materials ---

const materialColumns = `id, project_id, storage_path, filename, category, validation_status,
	validation_notes, validated_at, created_at`

func scanMaterial(row pgx.Row) (*models.Material, error) {
	var m models.Material
	if err := row.Scan(&m.ID, &m.ProjectID, &m.StoragePath, &m.Filename, &m.Category,
		&m.ValidationStatus, &m.ValidationNotes, &m.ValidatedAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) GetMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	m, err := scanMaterial(s.pool.QueryRow(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get material: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) SetMaterialValidation(ctx context.Context, id uuid.UUID, status, notes string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE materials SET validation_status = $2, validation_notes = $3, validated_at = $4 WHERE id = $1`,
		id, status, notes, now)
	if err != nil {
		return fmt.Errorf("set material validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListValidMaterials(ctx context.Context, projectID uuid.UUID) ([]*models.Material, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+materialColumns+` FROM materials
		 WHERE project_id = $1 AND validation_status = 'valid'
		 ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list valid materials: %w", err)
	}
	defer rows.Close()

	var materials []*models.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// CountUnchunkedMaterials counts valid materials of a project that have no
// stored chunks yet.
func (s *PostgresStore) CountUnchunkedMaterials(ctx context.Context, projectID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM materials m
		 WHERE m.project_id = $1 AND m.validation_status = 'valid'
		   AND NOT EXISTS (SELECT 1 FROM material_chunks c WHERE c.material_id = m.id)`,
		projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unchunked materials: %w", err)
	}
	return n, nil
}

// --- Chunks ---

// ReplaceChunks deletes a material's chunks and inserts the new set in one
// transaction.
func (s *PostgresStore) ReplaceChunks(ctx context.Context, materialID uuid.UUID, chunks []*models.Chunk, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace chunks: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM material_chunks WHERE material_id = $1`, materialID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.MaterialID = materialID
		c.CreatedAt = now

		var embedding any
		if c.Embedding != nil {
			embedding = pgvector.NewVector(c.Embedding)
		}
		batch.Queue(
			`INSERT INTO material_chunks (id, material_id, chunk_text, section_hierarchy, page_start, page_end,
			   chunk_index, token_count, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ID, materialID, c.Text, c.SectionHierarchy, c.PageStart, c.PageEnd,
			c.Index, c.TokenCount, embedding, now)
	}

	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace chunks: %w", err)
	}
	return nil
}

// ListRepresentativeChunks returns chunks of valid materials in document
// order. Headingless chunks are included with an empty hierarchy.
func (s *PostgresStore) ListRepresentativeChunks(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.ChunkSample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.filename, m.category, mc.section_hierarchy, mc.chunk_text, mc.page_start
		 FROM material_chunks mc
		 JOIN materials m ON mc.material_id = m.id
		 WHERE m.project_id = $1 AND m.validation_status = 'valid'
		 ORDER BY m.created_at, m.id, mc.chunk_index
		 LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list representative chunks: %w", err)
	}
	defer rows.Close()

	var samples []*models.ChunkSample
	for rows.Next() {
		var c models.ChunkSample
		if err := rows.Scan(&c.MaterialID, &c.Filename, &c.Category, &c.SectionHierarchy, &c.Text, &c.PageStart); err != nil {
			return nil, fmt.Errorf("scan chunk sample: %w", err)
		}
		samples = append(samples, &c)
	}
	return samples, rows.Err()
}

// KeywordSearch matches chunk text case-insensitively against any of the
// ILIKE patterns. Callers must escape wildcards in the patterns; the default
// backslash escape applies. Results are in document order.
func (s *PostgresStore) KeywordSearch(ctx context.Context, projectID uuid.UUID, patterns []string, limit int) ([]models.ChunkHit, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT mc.id, mc.material_id, mc.chunk_index
		 FROM material_chunks mc
		 JOIN materials m ON mc.material_id = m.id
		 WHERE m.project_id = $1 AND m.validation_status = 'valid'
		   AND mc.chunk_text ILIKE ANY($2)
		 ORDER BY m.created_at, mc.material_id, mc.chunk_index
		 LIMIT $3`, projectID, patterns, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var hits []models.ChunkHit
	for rows.Next() {
		var h models.ChunkHit
		if err := rows.Scan(&h.ChunkID, &h.MaterialID, &h.Index); err != nil {
			return nil, fmt.Errorf("scan keyword hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SemanticSearch ranks embedded chunks by cosine similarity to embedding.
func (s *PostgresStore) SemanticSearch(ctx context.Context, projectID uuid.UUID, embedding []float32, limit int) ([]models.ChunkHit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT mc.id, mc.material_id, mc.chunk_index, 1 - (mc.embedding <=> $2) AS similarity
		 FROM material_chunks mc
		 JOIN materials m ON mc.material_id = m.id
		 WHERE m.project_id = $1 AND m.validation_status = 'valid'
		   AND mc.embedding IS NOT NULL
		 ORDER BY mc.embedding <=> $2
		 LIMIT $3`, projectID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	var hits []models.ChunkHit
	for rows.Next() {
		var h models.ChunkHit
		if err := rows.Scan(&h.ChunkID, &h.MaterialID, &h.Index, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scan semantic hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ListTopicChunks returns a topic's mapped chunks, most relevant first.
func (s *PostgresStore) ListTopicChunks(ctx context.Context, topicID uuid.UUID, limit int) ([]*models.TopicChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT mc.id, mc.chunk_text, mc.section_hierarchy, mc.page_start, mc.page_end,
		        m.filename, m.category, tcm.relevance_score, tcm.relevance_source
		 FROM topic_chunk_mappings tcm
		 JOIN material_chunks mc ON tcm.chunk_id = mc.id
		 JOIN materials m ON mc.material_id = m.id
		 WHERE tcm.topic_id = $1
		 ORDER BY tcm.relevance_score DESC, mc.chunk_index
		 LIMIT $2`, topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("list topic chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.TopicChunk
	for rows.Next() {
		var c models.TopicChunk
		if err := rows.Scan(&c.ChunkID, &c.Text, &c.SectionHierarchy, &c.PageStart, &c.PageEnd,
			&c.Filename, &c.Category, &c.RelevanceScore, &c.RelevanceSource); err != nil {
			return nil, fmt.Errorf("scan topic chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// --- Topics ---

const topicColumns = `id, project_id, name, description, keywords, order_index, user_confirmed,
	source_material_ids, created_at, updated_at`

func scanTopic(row pgx.Row) (*models.Topic, error) {
	var t models.Topic
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.Keywords, &t.OrderIndex,
		&t.UserConfirmed, &t.SourceMaterialIDs, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) queryTopics(ctx context.Context, query string, args ...any) ([]*models.Topic, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []*models.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func (s *PostgresStore) ListTopics(ctx context.Context, projectID uuid.UUID) ([]*models.Topic, error) {
	topics, err := s.queryTopics(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE project_id = $1 ORDER BY order_index, created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	t, err := scanTopic(s.pool.QueryRow(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTopicsByIDs(ctx context.Context, projectID uuid.UUID, ids []uuid.UUID) ([]*models.Topic, error) {
	if len(ids) == 0 {
		return []*models.Topic{}, nil
	}
	topics, err := s.queryTopics(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE project_id = $1 AND id = ANY($2) ORDER BY order_index, created_at`,
		projectID, ids)
	if err != nil {
		return nil, fmt.Errorf("list topics by ids: %w", err)
	}
	return topics, nil
}

// SyncTopics applies one extraction run in a single transaction and marks the
// project as awaiting topic confirmation.
func (s *PostgresStore) SyncTopics(ctx context.Context, projectID uuid.UUID, sync TopicSync, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin sync topics: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if len(sync.Deletes) > 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM topics WHERE project_id = $1 AND id = ANY($2) AND user_confirmed = FALSE`,
			projectID, sync.Deletes); err != nil {
			return fmt.Errorf("delete stale topics: %w", err)
		}
	}

	kept := make([]uuid.UUID, 0, len(sync.Updates)+len(sync.Inserts))
	for _, t := range sync.Updates {
		if _, err := tx.Exec(ctx,
			`UPDATE topics SET description = $3, keywords = $4, order_index = $5,
			   source_material_ids = $6, updated_at = $7
			 WHERE id = $1 AND project_id = $2`,
			t.ID, projectID, t.Description, t.Keywords, t.OrderIndex, t.SourceMaterialIDs, now); err != nil {
			return fmt.Errorf("update topic %s: %w", t.ID, err)
		}
		t.UpdatedAt = now
		kept = append(kept, t.ID)
	}

	for _, t := range sync.Inserts {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.ProjectID = projectID
		t.CreatedAt = now
		t.UpdatedAt = now
		if _, err := tx.Exec(ctx,
			`INSERT INTO topics (id, project_id, name, description, keywords, order_index, user_confirmed,
			   source_material_ids, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $8)`,
			t.ID, projectID, t.Name, t.Description, t.Keywords, t.OrderIndex, t.SourceMaterialIDs, now); err != nil {
			return fmt.Errorf("insert topic %q: %w", t.Name, err)
		}
		kept = append(kept, t.ID)
	}

	if len(kept) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM topic_chunk_mappings WHERE topic_id = ANY($1)`, kept); err != nil {
			return fmt.Errorf("clear topic mappings: %w", err)
		}
	}

	if len(sync.Mappings) > 0 {
		batch := &pgx.Batch{}
		for _, m := range sync.Mappings {
			batch.Queue(
				`INSERT INTO topic_chunk_mappings (topic_id, chunk_id, relevance_score, relevance_source)
				 VALUES ($1, $2, $3, $4)`,
				m.TopicID, m.ChunkID, m.RelevanceScore, m.RelevanceSource)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert topic mappings: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE projects SET status = $2, updated_at = $3 WHERE id = $1`,
		projectID, ProjectStatusTopicsPending, now); err != nil {
		return fmt.Errorf("update project status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit sync topics: %w", err)
	}
	return nil
}

// --- Generated content ---

func (s *PostgresStore) CreateTopicContent(ctx context.Context, content *models.TopicContent) error {
	metadata := content.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO topic_content (id, topic_id, content_type, content_data, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		content.ID, content.TopicID, content.ContentType, content.ContentData, metadata, content.CreatedAt)
	if err != nil {
		return fmt.Errorf("create topic content: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateSampleExam(ctx context.Context, exam *models.SampleExam) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sample_exams (id, project_id, name, questions, duration_minutes, difficulty_level, topics_covered, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		exam.ID, exam.ProjectID, exam.Name, exam.Questions, exam.DurationMinutes, exam.DifficultyLevel,
		exam.TopicsCovered, exam.CreatedAt)
	if err != nil {
		return fmt.Errorf("create sample exam: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveGrading(ctx context.Context, submissionID uuid.UUID, grading, feedback json.RawMessage, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE exam_submissions SET ai_grading = $2, ai_feedback = $3, graded_at = $4 WHERE id = $1`,
		submissionID, grading, feedback, now)
	if err != nil {
		return fmt.Errorf("save grading: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
