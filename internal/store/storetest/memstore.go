// Package storetest provides an in-memory store.Store for tests. It enforces
// the same job transitions and in-flight uniqueness rules as Postgres.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/pkg/models"
)

// Submission is an exam submission row.
type Submission struct {
	ID       uuid.UUID
	ExamID   uuid.UUID
	Grading  json.RawMessage
	Feedback json.RawMessage
	GradedAt *time.Time
}

// MemStore is a mutex-guarded in-memory Store.
type MemStore struct {
	mu sync.Mutex

	jobs          map[uuid.UUID]*models.ProcessingJob
	materials     map[uuid.UUID]*models.Material
	chunks        map[uuid.UUID]*models.Chunk
	topics        map[uuid.UUID]*models.Topic
	mappings      map[uuid.UUID][]models.TopicChunkMapping
	contents      []*models.TopicContent
	exams         []*models.SampleExam
	submissions   map[uuid.UUID]*Submission
	projectStatus map[uuid.UUID]string

	// Err, when set for an operation name, is returned by that operation.
	Err map[string]error
}

// New returns an empty MemStore.
func New() *MemStore {
	return &MemStore{
		jobs:          make(map[uuid.UUID]*models.ProcessingJob),
		materials:     make(map[uuid.UUID]*models.Material),
		chunks:        make(map[uuid.UUID]*models.Chunk),
		topics:        make(map[uuid.UUID]*models.Topic),
		mappings:      make(map[uuid.UUID][]models.TopicChunkMapping),
		submissions:   make(map[uuid.UUID]*Submission),
		projectStatus: make(map[uuid.UUID]string),
		Err:           make(map[string]error),
	}
}

var _ store.Store = (*MemStore)(nil)

func (s *MemStore) fail(op string) error {
	return s.Err[op]
}

// --- Seeding and inspection ---

// AddMaterial inserts a material row.
func (s *MemStore) AddMaterial(m *models.Material) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	if cp.ValidationStatus == "" {
		cp.ValidationStatus = models.ValidationPending
	}
	s.materials[cp.ID] = &cp
}

// DeleteMaterial removes a material and cascades to its chunks.
func (s *MemStore) DeleteMaterial(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.materials, id)
	s.deleteChunksLocked(id)
}

// AddTopic inserts a topic row.
func (s *MemStore) AddTopic(t *models.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.topics[cp.ID] = &cp
}

// AddMapping inserts a topic-chunk mapping.
func (s *MemStore) AddMapping(m models.TopicChunkMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[m.TopicID] = append(s.mappings[m.TopicID], m)
}

// AddSubmission inserts an ungraded exam submission.
func (s *MemStore) AddSubmission(id, examID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[id] = &Submission{ID: id, ExamID: examID}
}

// Jobs returns copies of all jobs of a type, oldest first.
func (s *MemStore) Jobs(jobType models.JobType) []*models.ProcessingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ProcessingJob
	for _, j := range s.jobs {
		if j.JobType == jobType {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// Chunks returns copies of a material's chunks by index.
func (s *MemStore) Chunks(materialID uuid.UUID) []*models.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.materialChunksLocked(materialID)
	for i, c := range out {
		cp := *c
		out[i] = &cp
	}
	return out
}

// Mappings returns the mappings of a topic.
func (s *MemStore) Mappings(topicID uuid.UUID) []models.TopicChunkMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TopicChunkMapping(nil), s.mappings[topicID]...)
}

// Contents returns all generated topic content.
func (s *MemStore) Contents() []*models.TopicContent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.TopicContent(nil), s.contents...)
}

// Exams returns all generated sample exams.
func (s *MemStore) Exams() []*models.SampleExam {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.SampleExam(nil), s.exams...)
}

// Submission returns a copy of an exam submission.
func (s *MemStore) Submission(id uuid.UUID) *Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil
	}
	cp := *sub
	return &cp
}

// ProjectStatus returns the last status written for a project.
func (s *MemStore) ProjectStatus(id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectStatus[id]
}

// --- Store ---

func (s *MemStore) Ping(_ context.Context) error {
	return s.fail("Ping")
}

func (s *MemStore) CreateJob(_ context.Context, job *models.ProcessingJob) error {
	if err := s.fail("CreateJob"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return store.ErrDuplicateKey
	}
	for _, j := range s.jobs {
		if !inFlight(j.Status) || j.JobType != job.JobType {
			continue
		}
		if job.MaterialID != nil && j.MaterialID != nil && *j.MaterialID == *job.MaterialID {
			return store.ErrDuplicateKey
		}
		if job.JobType == models.JobTypeExtractTopics && j.ProjectID == job.ProjectID {
			return store.ErrDuplicateKey
		}
	}

	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if len(job.InputData) == 0 {
		job.InputData = json.RawMessage(`{}`)
	}
	job.Retryable = true
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func inFlight(status string) bool {
	return status == models.JobStatusPending || status == models.JobStatusProcessing
}

func (s *MemStore) GetJob(_ context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	if err := s.fail("GetJob"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *MemStore) transitionLocked(id uuid.UUID, target string) (*models.ProcessingJob, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	allowed := false
	switch j.Status {
	case models.JobStatusPending:
		allowed = target == models.JobStatusProcessing || target == models.JobStatusFailed
	case models.JobStatusProcessing:
		allowed = true
	case models.JobStatusFailed:
		allowed = target == models.JobStatusProcessing && j.Retryable
	}
	if target == models.JobStatusPending {
		allowed = false
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, j.Status, target)
	}
	return j, nil
}

func (s *MemStore) StartJob(_ context.Context, id uuid.UUID, stage string, now time.Time) (*models.ProcessingJob, error) {
	if err := s.fail("StartJob"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.transitionLocked(id, models.JobStatusProcessing)
	if err != nil {
		return nil, err
	}
	j.Status = models.JobStatusProcessing
	j.Stage = &stage
	j.AttemptCount++
	j.ProgressPercent = 10
	j.StartedAt = &now
	j.CompletedAt = nil
	j.ErrorCode = nil
	j.ErrorMessage = nil
	j.UpdatedAt = now
	cp := *j
	return &cp, nil
}

func (s *MemStore) UpdateJobProgress(_ context.Context, id uuid.UUID, stage string, percent int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if j.Status != models.JobStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, j.Status, models.JobStatusProcessing)
	}
	j.Stage = &stage
	j.ProgressPercent = max(j.ProgressPercent, percent)
	j.UpdatedAt = now
	return nil
}

func (s *MemStore) CompleteJob(_ context.Context, id uuid.UUID, result json.RawMessage, now time.Time) error {
	if err := s.fail("CompleteJob"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.transitionLocked(id, models.JobStatusCompleted)
	if err != nil {
		return err
	}
	j.Status = models.JobStatusCompleted
	j.ProgressPercent = 100
	j.ResultData = result
	j.ErrorCode = nil
	j.ErrorMessage = nil
	j.Retryable = true
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (s *MemStore) FailJob(_ context.Context, id uuid.UUID, failure store.JobFailure, now time.Time) error {
	if err := s.fail("FailJob"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.transitionLocked(id, models.JobStatusFailed)
	if err != nil {
		return err
	}
	code := failure.Code
	msg := failure.Message
	j.Status = models.JobStatusFailed
	j.ErrorCode = &code
	j.ErrorMessage = &msg
	j.Retryable = failure.Retryable
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (s *MemStore) HasActiveJob(_ context.Context, projectID uuid.UUID, jobType models.JobType) (bool, error) {
	if err := s.fail("HasActiveJob"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ProjectID == projectID && j.JobType == jobType && inFlight(j.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) GetMaterial(_ context.Context, id uuid.UUID) (*models.Material, error) {
	if err := s.fail("GetMaterial"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemStore) SetMaterialValidation(_ context.Context, id uuid.UUID, status, notes string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[id]
	if !ok {
		return store.ErrNotFound
	}
	m.ValidationStatus = status
	m.ValidationNotes = &notes
	m.ValidatedAt = &now
	return nil
}

func (s *MemStore) ListValidMaterials(_ context.Context, projectID uuid.UUID) ([]*models.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Material
	for _, m := range s.validMaterialsLocked(projectID) {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) validMaterialsLocked(projectID uuid.UUID) []*models.Material {
	var out []*models.Material
	for _, m := range s.materials {
		if m.ProjectID == projectID && m.ValidationStatus == models.ValidationValid {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	return out
}

func (s *MemStore) CountUnchunkedMaterials(_ context.Context, projectID uuid.UUID) (int, error) {
	if err := s.fail("CountUnchunkedMaterials"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.validMaterialsLocked(projectID) {
		if len(s.materialChunksLocked(m.ID)) == 0 {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) materialChunksLocked(materialID uuid.UUID) []*models.Chunk {
	var out []*models.Chunk
	for _, c := range s.chunks {
		if c.MaterialID == materialID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

func (s *MemStore) deleteChunksLocked(materialID uuid.UUID) {
	for id, c := range s.chunks {
		if c.MaterialID != materialID {
			continue
		}
		delete(s.chunks, id)
		for topicID, ms := range s.mappings {
			kept := ms[:0]
			for _, m := range ms {
				if m.ChunkID != id {
					kept = append(kept, m)
				}
			}
			s.mappings[topicID] = kept
		}
	}
}

func (s *MemStore) ReplaceChunks(_ context.Context, materialID uuid.UUID, chunks []*models.Chunk, now time.Time) error {
	if err := s.fail("ReplaceChunks"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		if seen[c.Index] {
			return store.ErrDuplicateKey
		}
		seen[c.Index] = true
	}

	s.deleteChunksLocked(materialID)
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.MaterialID = materialID
		c.CreatedAt = now
		cp := *c
		s.chunks[cp.ID] = &cp
	}
	return nil
}

func (s *MemStore) ListRepresentativeChunks(_ context.Context, projectID uuid.UUID, limit int) ([]*models.ChunkSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ChunkSample
	for _, m := range s.validMaterialsLocked(projectID) {
		for _, c := range s.materialChunksLocked(m.ID) {
			if len(out) == limit {
				return out, nil
			}
			out = append(out, &models.ChunkSample{
				MaterialID:       m.ID,
				Filename:         m.Filename,
				Category:         m.Category,
				SectionHierarchy: c.SectionHierarchy,
				Text:             c.Text,
				PageStart:        c.PageStart,
			})
		}
	}
	return out, nil
}

func (s *MemStore) KeywordSearch(_ context.Context, projectID uuid.UUID, patterns []string, limit int) ([]models.ChunkHit, error) {
	if err := s.fail("KeywordSearch"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChunkHit
	for _, m := range s.validMaterialsLocked(projectID) {
		for _, c := range s.materialChunksLocked(m.ID) {
			if len(out) == limit {
				return out, nil
			}
			for _, p := range patterns {
				if ilike(c.Text, p) {
					out = append(out, models.ChunkHit{ChunkID: c.ID, MaterialID: m.ID, Index: c.Index})
					break
				}
			}
		}
	}
	return out, nil
}

func (s *MemStore) SemanticSearch(_ context.Context, projectID uuid.UUID, embedding []float32, limit int) ([]models.ChunkHit, error) {
	if err := s.fail("SemanticSearch"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChunkHit
	for _, m := range s.validMaterialsLocked(projectID) {
		for _, c := range s.materialChunksLocked(m.ID) {
			if c.Embedding == nil {
				continue
			}
			out = append(out, models.ChunkHit{
				ChunkID:    c.ID,
				MaterialID: m.ID,
				Index:      c.Index,
				Similarity: cosine(embedding, c.Embedding),
			})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Similarity > out[b].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) ListTopicChunks(_ context.Context, topicID uuid.UUID, limit int) ([]*models.TopicChunk, error) {
	if err := s.fail("ListTopicChunks"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TopicChunk
	for _, mp := range s.mappings[topicID] {
		c, ok := s.chunks[mp.ChunkID]
		if !ok {
			continue
		}
		m := s.materials[c.MaterialID]
		tc := &models.TopicChunk{
			ChunkID:          c.ID,
			Text:             c.Text,
			SectionHierarchy: c.SectionHierarchy,
			PageStart:        c.PageStart,
			PageEnd:          c.PageEnd,
			RelevanceScore:   mp.RelevanceScore,
			RelevanceSource:  mp.RelevanceSource,
		}
		if m != nil {
			tc.Filename = m.Filename
			tc.Category = m.Category
		}
		out = append(out, tc)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].RelevanceScore > out[b].RelevanceScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) ListTopics(_ context.Context, projectID uuid.UUID) ([]*models.Topic, error) {
	if err := s.fail("ListTopics"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topicsLocked(func(t *models.Topic) bool { return t.ProjectID == projectID }), nil
}

func (s *MemStore) topicsLocked(keep func(*models.Topic) bool) []*models.Topic {
	var out []*models.Topic
	for _, t := range s.topics {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].OrderIndex != out[b].OrderIndex {
			return out[a].OrderIndex < out[b].OrderIndex
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

func (s *MemStore) GetTopic(_ context.Context, id uuid.UUID) (*models.Topic, error) {
	if err := s.fail("GetTopic"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topics[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemStore) ListTopicsByIDs(_ context.Context, projectID uuid.UUID, ids []uuid.UUID) ([]*models.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return s.topicsLocked(func(t *models.Topic) bool { return t.ProjectID == projectID && want[t.ID] }), nil
}

func (s *MemStore) SyncTopics(_ context.Context, projectID uuid.UUID, sync store.TopicSync, now time.Time) error {
	if err := s.fail("SyncTopics"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range sync.Deletes {
		if t, ok := s.topics[id]; ok && t.ProjectID == projectID && !t.UserConfirmed {
			delete(s.topics, id)
			delete(s.mappings, id)
		}
	}
	for _, u := range sync.Updates {
		t, ok := s.topics[u.ID]
		if !ok || t.ProjectID != projectID {
			continue
		}
		t.Description = u.Description
		t.Keywords = u.Keywords
		t.OrderIndex = u.OrderIndex
		t.SourceMaterialIDs = u.SourceMaterialIDs
		t.UpdatedAt = now
		delete(s.mappings, u.ID)
	}
	for _, in := range sync.Inserts {
		if in.ID == uuid.Nil {
			in.ID = uuid.New()
		}
		in.ProjectID = projectID
		in.UserConfirmed = false
		in.CreatedAt = now
		in.UpdatedAt = now
		cp := *in
		s.topics[cp.ID] = &cp
	}
	for _, m := range sync.Mappings {
		s.mappings[m.TopicID] = append(s.mappings[m.TopicID], m)
	}
	s.projectStatus[projectID] = store.ProjectStatusTopicsPending
	return nil
}

func (s *MemStore) CreateTopicContent(_ context.Context, content *models.TopicContent) error {
	if err := s.fail("CreateTopicContent"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *content
	s.contents = append(s.contents, &cp)
	return nil
}

func (s *MemStore) CreateSampleExam(_ context.Context, exam *models.SampleExam) error {
	if err := s.fail("CreateSampleExam"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *exam
	s.exams = append(s.exams, &cp)
	return nil
}

func (s *MemStore) SaveGrading(_ context.Context, submissionID uuid.UUID, grading, feedback json.RawMessage, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[submissionID]
	if !ok {
		return store.ErrNotFound
	}
	sub.Grading = grading
	sub.Feedback = feedback
	sub.GradedAt = &now
	return nil
}

// ilike evaluates a SQL ILIKE pattern with backslash escapes.
func ilike(text, pattern string) bool {
	return likeMatch([]rune(strings.ToLower(text)), []rune(strings.ToLower(pattern)))
}

func likeMatch(text, pattern []rune) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '%':
			for i := 0; i <= len(text); i++ {
				if likeMatch(text[i:], pattern[1:]) {
					return true
				}
			}
			return false
		case '_':
			if len(text) == 0 {
				return false
			}
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			fallthrough
		default:
			if len(text) == 0 || unicode.ToLower(text[0]) != unicode.ToLower(pattern[0]) {
				return false
			}
		}
		text = text[1:]
		pattern = pattern[1:]
	}
	return len(text) == 0
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
