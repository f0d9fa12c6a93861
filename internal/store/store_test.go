package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/internal/config"
	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/pkg/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const embeddingDims = 1536

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a pgvector Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("studybuddy_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))
	// A second run is a no-op.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := store.Connect(ctx, config.DatabaseConfig{URL: connStr, MaxOpenConns: 5})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func seedProject(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `INSERT INTO projects (id, name) VALUES ($1, 'Operating Systems')`, id)
	require.NoError(t, err)
	return id
}

func seedMaterial(t *testing.T, pool *pgxpool.Pool, projectID uuid.UUID, filename, status string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO materials (id, project_id, storage_path, filename, category, validation_status)
		 VALUES ($1, $2, $3, $4, 'lecture_notes', $5)`,
		id, projectID, "uploads/"+filename, filename, status)
	require.NoError(t, err)
	return id
}

func newJob(projectID uuid.UUID, materialID *uuid.UUID, jobType models.JobType) *models.ProcessingJob {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.ProcessingJob{
		ID:         uuid.New(),
		ProjectID:  projectID,
		UserID:     uuid.New(),
		MaterialID: materialID,
		JobType:    jobType,
		Status:     models.JobStatusPending,
		InputData:  json.RawMessage(`{"materialId":"x"}`),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// unitVector returns a 1536-dim vector with weight on the first two axes.
func unitVector(x, y float32) []float32 {
	v := make([]float32, embeddingDims)
	v[0] = x
	v[1] = y
	return v
}

// --- Job Tests ---

func TestJob_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	projectID := seedProject(t, pool)
	materialID := seedMaterial(t, pool, projectID, "lecture1.pdf", models.ValidationPending)
	job := newJob(projectID, &materialID, models.JobTypeValidateMaterial)
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, models.JobTypeValidateMaterial, got.JobType)
	assert.Equal(t, materialID, *got.MaterialID)
	assert.True(t, got.Retryable)
	assert.JSONEq(t, `{"materialId":"x"}`, string(got.InputData))
	assert.Nil(t, got.ErrorCode)
	assert.Nil(t, got.CompletedAt)
}

func TestJob_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_InFlightMaterialJobIsUnique(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	projectID := seedProject(t, pool)
	materialID := seedMaterial(t, pool, projectID, "lecture1.pdf", models.ValidationValid)

	first := newJob(projectID, &materialID, models.JobTypeChunkMaterial)
	require.NoError(t, s.CreateJob(ctx, first))

	err := s.CreateJob(ctx, newJob(projectID, &materialID, models.JobTypeChunkMaterial))
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	// A different job type for the same material is allowed.
	require.NoError(t, s.CreateJob(ctx, newJob(projectID, &materialID, models.JobTypeValidateMaterial)))

	// Once the first job is terminal the slot frees up.
	now := time.Now().UTC()
	_, err = s.StartJob(ctx, first.ID, "chunking", now)
	require.NoError(t, err)
	require.NoError(t, s.CompleteJob(ctx, first.ID, json.RawMessage(`{"chunksCreated":3}`), now))
	require.NoError(t, s.CreateJob(ctx, newJob(projectID, &materialID, models.JobTypeChunkMaterial)))
}

func TestJob_InFlightExtractionIsUniquePerProject(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)

	require.NoError(t, s.CreateJob(ctx, newJob(projectID, nil, models.JobTypeExtractTopics)))
	err := s.CreateJob(ctx, newJob(projectID, nil, models.JobTypeExtractTopics))
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	active, err := s.HasActiveJob(ctx, projectID, models.JobTypeExtractTopics)
	require.NoError(t, err)
	assert.True(t, active)

	// Exams have no in-flight limit.
	require.NoError(t, s.CreateJob(ctx, newJob(projectID, nil, models.JobTypeGenerateExam)))
	require.NoError(t, s.CreateJob(ctx, newJob(projectID, nil, models.JobTypeGenerateExam)))
}

func TestJob_StartCompleteLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)

	job := newJob(projectID, nil, models.JobTypeExtractTopics)
	require.NoError(t, s.CreateJob(ctx, job))

	now := time.Now().UTC().Truncate(time.Microsecond)
	started, err := s.StartJob(ctx, job.ID, "extracting_topics", now)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, started.Status)
	assert.Equal(t, 1, started.AttemptCount)
	assert.Equal(t, 10, started.ProgressPercent)
	require.NotNil(t, started.StartedAt)
	assert.True(t, now.Equal(*started.StartedAt))

	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, "searching", 75, now))
	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, "searching", 50, now))
	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, got.ProgressPercent, "progress never decreases")

	require.NoError(t, s.CompleteJob(ctx, job.ID, json.RawMessage(`{"topicsCount":4}`), now))
	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.ProgressPercent)
	assert.JSONEq(t, `{"topicsCount":4}`, string(got.ResultData))
	require.NotNil(t, got.CompletedAt)

	_, err = s.StartJob(ctx, job.ID, "extracting_topics", now)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	err = s.UpdateJobProgress(ctx, job.ID, "late", 90, now)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestJob_FailAndRetry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)
	now := time.Now().UTC()

	retryable := newJob(projectID, nil, models.JobTypeGenerateExam)
	require.NoError(t, s.CreateJob(ctx, retryable))
	_, err := s.StartJob(ctx, retryable.ID, "generating", now)
	require.NoError(t, err)
	require.NoError(t, s.FailJob(ctx, retryable.ID, store.JobFailure{
		Code: models.ErrCodeExamGenerationFailed, Message: "llm timeout", Retryable: true,
	}, now))

	got, err := s.GetJob(ctx, retryable.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, models.ErrCodeExamGenerationFailed, *got.ErrorCode)
	assert.Equal(t, "llm timeout", *got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)

	restarted, err := s.StartJob(ctx, retryable.ID, "generating", now)
	require.NoError(t, err)
	assert.Equal(t, 2, restarted.AttemptCount)
	assert.Nil(t, restarted.ErrorCode)
	assert.Nil(t, restarted.CompletedAt)

	permanent := newJob(projectID, nil, models.JobTypeGenerateExam)
	require.NoError(t, s.CreateJob(ctx, permanent))
	require.NoError(t, s.FailJob(ctx, permanent.ID, store.JobFailure{
		Code: models.ErrCodeOpenAIKeyMissing, Message: "missing key", Retryable: false,
	}, now))
	_, err = s.StartJob(ctx, permanent.ID, "generating", now)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = s.StartJob(ctx, uuid.New(), "generating", now)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Material Tests ---

func TestMaterial_ValidationAndUnchunkedCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)

	a := seedMaterial(t, pool, projectID, "a.pdf", models.ValidationPending)
	b := seedMaterial(t, pool, projectID, "b.pdf", models.ValidationPending)
	seedMaterial(t, pool, projectID, "c.pdf", models.ValidationInvalid)

	now := time.Now().UTC()
	require.NoError(t, s.SetMaterialValidation(ctx, a, models.ValidationValid, "looks like lecture notes", now))
	require.NoError(t, s.SetMaterialValidation(ctx, b, models.ValidationValid, "ok", now))
	assert.ErrorIs(t, s.SetMaterialValidation(ctx, uuid.New(), models.ValidationValid, "", now), store.ErrNotFound)

	m, err := s.GetMaterial(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationValid, m.ValidationStatus)
	assert.Equal(t, "looks like lecture notes", *m.ValidationNotes)

	valid, err := s.ListValidMaterials(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, valid, 2)

	n, err := s.CountUnchunkedMaterials(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.ReplaceChunks(ctx, a, []*models.Chunk{{Text: "paging", Index: 0}}, now))
	n, err = s.CountUnchunkedMaterials(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// --- Chunk Tests ---

func TestChunks_ReplaceIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)
	materialID := seedMaterial(t, pool, projectID, "os.pdf", models.ValidationValid)
	now := time.Now().UTC()

	chunks := func() []*models.Chunk {
		return []*models.Chunk{
			{Text: "Processes and threads", SectionHierarchy: "Ch1", Index: 0, TokenCount: 5, Embedding: unitVector(1, 0)},
			{Text: "Scheduling", SectionHierarchy: "Ch1 > Sched", Index: 1, TokenCount: 2},
		}
	}
	require.NoError(t, s.ReplaceChunks(ctx, materialID, chunks(), now))
	require.NoError(t, s.ReplaceChunks(ctx, materialID, chunks(), now))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM material_chunks WHERE material_id = $1`, materialID).Scan(&count))
	assert.Equal(t, 2, count)

	var nullEmbeddings int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM material_chunks WHERE material_id = $1 AND embedding IS NULL`, materialID).Scan(&nullEmbeddings))
	assert.Equal(t, 1, nullEmbeddings)

	samples, err := s.ListRepresentativeChunks(ctx, projectID, 100)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "os.pdf", samples[0].Filename)
	assert.Equal(t, "Ch1", samples[0].SectionHierarchy)
}

func TestChunks_RepresentativeIncludesHeadingless(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)
	materialID := seedMaterial(t, pool, projectID, "notes.txt", models.ValidationValid)

	require.NoError(t, s.ReplaceChunks(ctx, materialID, []*models.Chunk{
		{Text: "Plain paragraph about deadlocks", Index: 0},
		{Text: "Another paragraph about livelock", Index: 1},
	}, time.Now().UTC()))

	samples, err := s.ListRepresentativeChunks(ctx, projectID, 100)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Empty(t, samples[0].SectionHierarchy)
	assert.Equal(t, "Plain paragraph about deadlocks", samples[0].Text)
}

func TestChunks_DuplicateIndexRollsBack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)
	materialID := seedMaterial(t, pool, projectID, "os.pdf", models.ValidationValid)
	now := time.Now().UTC()

	require.NoError(t, s.ReplaceChunks(ctx, materialID, []*models.Chunk{{Text: "kept", Index: 0}}, now))

	err := s.ReplaceChunks(ctx, materialID, []*models.Chunk{{Text: "a", Index: 0}, {Text: "b", Index: 0}}, now)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	var text string
	require.NoError(t, pool.QueryRow(ctx, `SELECT chunk_text FROM material_chunks WHERE material_id = $1`, materialID).Scan(&text))
	assert.Equal(t, "kept", text, "failed replace leaves the previous chunks")
}

func TestChunks_KeywordSearchTreatsWildcardsLiterally(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)
	materialID := seedMaterial(t, pool, projectID, "os.pdf", models.ValidationValid)
	invalidID := seedMaterial(t, pool, projectID, "junk.pdf", models.ValidationInvalid)
	now := time.Now().UTC()

	require.NoError(t, s.ReplaceChunks(ctx, materialID, []*models.Chunk{
		{Text: "CPU utilization reached 100% under load", Index: 0},
		{Text: "CPU utilization reached 1000 cycles", Index: 1},
		{Text: "the page_table maps addresses", Index: 2},
		{Text: "the pageXtable is not a thing", Index: 3},
	}, now))
	require.NoError(t, s.ReplaceChunks(ctx, invalidID, []*models.Chunk{
		{Text: "100% of this is ignored", Index: 0},
	}, now))

	hits, err := s.KeywordSearch(ctx, projectID, []string{`%100\%%`}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Index)

	hits, err = s.KeywordSearch(ctx, projectID, []string{`%page\_table%`}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].Index)

	hits, err = s.KeywordSearch(ctx, projectID, []string{`%'; DROP TABLE material_chunks; --%`}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM material_chunks`).Scan(&count))
	assert.Equal(t, 5, count)

	hits, err = s.KeywordSearch(ctx, projectID, []string{`%cpu%`, `%PAGE%`}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, i, h.Index, "keyword hits are in document order")
	}
}

func TestChunks_SemanticSearchRanksBySimilarity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)
	materialID := seedMaterial(t, pool, projectID, "os.pdf", models.ValidationValid)
	now := time.Now().UTC()

	require.NoError(t, s.ReplaceChunks(ctx, materialID, []*models.Chunk{
		{Text: "orthogonal", Index: 0, Embedding: unitVector(0, 1)},
		{Text: "aligned", Index: 1, Embedding: unitVector(1, 0)},
		{Text: "diagonal", Index: 2, Embedding: unitVector(1, 1)},
		{Text: "no embedding", Index: 3},
	}, now))

	hits, err := s.SemanticSearch(ctx, projectID, unitVector(1, 0), 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 1, hits[0].Index)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, 2, hits[1].Index)
	assert.InDelta(t, 0.7071, hits[1].Similarity, 1e-3)
	assert.Equal(t, 0, hits[2].Index)
}

// --- Topic Tests ---

func TestTopics_SyncPrunesOnlyUnconfirmed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)
	materialID := seedMaterial(t, pool, projectID, "os.pdf", models.ValidationValid)
	now := time.Now().UTC()

	require.NoError(t, s.ReplaceChunks(ctx, materialID, []*models.Chunk{
		{Text: "deadlock", Index: 0}, {Text: "paging", Index: 1},
	}, now))
	var chunkIDs []uuid.UUID
	rows, err := pool.Query(ctx, `SELECT id FROM material_chunks WHERE material_id = $1 ORDER BY chunk_index`, materialID)
	require.NoError(t, err)
	for rows.Next() {
		var id uuid.UUID
		require.NoError(t, rows.Scan(&id))
		chunkIDs = append(chunkIDs, id)
	}
	require.NoError(t, rows.Err())

	confirmed := &models.Topic{ID: uuid.New(), Name: "Deadlocks", Keywords: []string{"deadlock"}, OrderIndex: 0}
	stale := &models.Topic{ID: uuid.New(), Name: "Networking", Keywords: []string{"tcp"}, OrderIndex: 1}
	require.NoError(t, s.SyncTopics(ctx, projectID, store.TopicSync{
		Inserts: []*models.Topic{confirmed, stale},
		Mappings: []models.TopicChunkMapping{
			{TopicID: confirmed.ID, ChunkID: chunkIDs[0], RelevanceScore: 0.8, RelevanceSource: models.SourceKeyword},
		},
	}, now))
	_, err = pool.Exec(ctx, `UPDATE topics SET user_confirmed = TRUE WHERE id = $1`, confirmed.ID)
	require.NoError(t, err)

	paging := &models.Topic{ID: uuid.New(), Name: "Paging", Description: "Virtual memory pages", Keywords: []string{"paging"}, OrderIndex: 0}
	require.NoError(t, s.SyncTopics(ctx, projectID, store.TopicSync{
		Inserts: []*models.Topic{paging},
		Deletes: []uuid.UUID{confirmed.ID, stale.ID},
		Mappings: []models.TopicChunkMapping{
			{TopicID: paging.ID, ChunkID: chunkIDs[1], RelevanceScore: 0.99, RelevanceSource: models.SourceKeywordAndSemantic},
		},
	}, later(now)))

	topics, err := s.ListTopics(ctx, projectID)
	require.NoError(t, err)
	names := make([]string, 0, len(topics))
	for _, tp := range topics {
		names = append(names, tp.Name)
	}
	assert.ElementsMatch(t, []string{"Deadlocks", "Paging"}, names)

	chunks, err := s.ListTopicChunks(ctx, paging.ID, 15)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "paging", chunks[0].Text)
	assert.Equal(t, "os.pdf", chunks[0].Filename)
	assert.Equal(t, models.SourceKeywordAndSemantic, chunks[0].RelevanceSource)

	kept, err := s.ListTopicChunks(ctx, confirmed.ID, 15)
	require.NoError(t, err)
	assert.Len(t, kept, 1, "confirmed topic keeps its mappings")

	var status string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM projects WHERE id = $1`, projectID).Scan(&status))
	assert.Equal(t, store.ProjectStatusTopicsPending, status)
}

func TestTopics_SyncUpdatesInPlaceAndReplacesMappings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)
	materialID := seedMaterial(t, pool, projectID, "os.pdf", models.ValidationValid)
	now := time.Now().UTC()

	require.NoError(t, s.ReplaceChunks(ctx, materialID, []*models.Chunk{{Text: "a", Index: 0}, {Text: "b", Index: 1}}, now))
	samples, err := pool.Query(ctx, `SELECT id FROM material_chunks WHERE material_id = $1 ORDER BY chunk_index`, materialID)
	require.NoError(t, err)
	var ids []uuid.UUID
	for samples.Next() {
		var id uuid.UUID
		require.NoError(t, samples.Scan(&id))
		ids = append(ids, id)
	}

	topic := &models.Topic{ID: uuid.New(), Name: "Scheduling", Description: "old", Keywords: []string{"cpu"}}
	require.NoError(t, s.SyncTopics(ctx, projectID, store.TopicSync{
		Inserts:  []*models.Topic{topic},
		Mappings: []models.TopicChunkMapping{{TopicID: topic.ID, ChunkID: ids[0], RelevanceScore: 0.8, RelevanceSource: models.SourceKeyword}},
	}, now))

	update := *topic
	update.Description = "new"
	update.Keywords = []string{"cpu", "round robin"}
	update.OrderIndex = 3
	require.NoError(t, s.SyncTopics(ctx, projectID, store.TopicSync{
		Updates:  []*models.Topic{&update},
		Mappings: []models.TopicChunkMapping{{TopicID: topic.ID, ChunkID: ids[1], RelevanceScore: 0.9, RelevanceSource: models.SourceSemantic}},
	}, later(now)))

	got, err := s.GetTopic(ctx, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Description)
	assert.Equal(t, []string{"cpu", "round robin"}, got.Keywords)
	assert.Equal(t, 3, got.OrderIndex)

	chunks, err := s.ListTopicChunks(ctx, topic.ID, 15)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "b", chunks[0].Text)

	byIDs, err := s.ListTopicsByIDs(ctx, projectID, []uuid.UUID{topic.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, byIDs, 1)

	_, err = s.GetTopic(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Content Tests ---

func TestContent_ExamAndGrading(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool)
	now := time.Now().UTC()

	exam := &models.SampleExam{
		ID:              uuid.New(),
		ProjectID:       projectID,
		Name:            "Sample Exam - 2026-10-19",
		Questions:       json.RawMessage(`[{"question":"2+2?","correct_answer":"4"}]`),
		DurationMinutes: 120,
		DifficultyLevel: "medium",
		TopicsCovered:   []string{"Arithmetic"},
		CreatedAt:       now,
	}
	require.NoError(t, s.CreateSampleExam(ctx, exam))

	submissionID := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO exam_submissions (id, exam_id, answers) VALUES ($1, $2, '{"0":"4"}')`, submissionID, exam.ID)
	require.NoError(t, err)

	require.NoError(t, s.SaveGrading(ctx, submissionID,
		json.RawMessage(`{"0":{"is_correct":true}}`), json.RawMessage(`{"overall_score":100}`), now))

	var gradedAt *time.Time
	require.NoError(t, pool.QueryRow(ctx, `SELECT graded_at FROM exam_submissions WHERE id = $1`, submissionID).Scan(&gradedAt))
	assert.NotNil(t, gradedAt)

	err = s.SaveGrading(ctx, uuid.New(), json.RawMessage(`{}`), json.RawMessage(`{}`), now)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	assert.NoError(t, s.Ping(context.Background()))
}

func later(t time.Time) time.Time {
	return t.Add(time.Second)
}
