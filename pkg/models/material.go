package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ValidationPending = "pending"
	ValidationValid   = "valid"
	ValidationInvalid = "invalid"
)

// Material is an uploaded study document. It is created by the upload flow;
// the pipeline only writes its validation fields.
type Material struct {
	ID               uuid.UUID  `db:"id"                json:"id"`
	ProjectID        uuid.UUID  `db:"project_id"        json:"projectId"`
	StoragePath      string     `db:"storage_path"      json:"storagePath"`
	Filename         string     `db:"filename"          json:"filename"`
	Category         string     `db:"category"          json:"category"`
	ValidationStatus string     `db:"validation_status" json:"validationStatus"`
	ValidationNotes  *string    `db:"validation_notes"  json:"validationNotes,omitempty"`
	ValidatedAt      *time.Time `db:"validated_at"      json:"validatedAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at"        json:"createdAt"`
}

// Chunk is one retrievable passage of a material.
type Chunk struct {
	ID               uuid.UUID `db:"id"                json:"id"`
	MaterialID       uuid.UUID `db:"material_id"       json:"materialId"`
	Text             string    `db:"chunk_text"        json:"text"`
	SectionHierarchy string    `db:"section_hierarchy" json:"sectionHierarchy"`
	PageStart        int       `db:"page_start"        json:"pageStart"`
	PageEnd          int       `db:"page_end"          json:"pageEnd"`
	Index            int       `db:"chunk_index"       json:"index"`
	TokenCount       int       `db:"token_count"       json:"tokenCount"`
	// Embedding is nil when no vector could be produced; such chunks are
	// reachable through keyword search only.
	Embedding []float32 `db:"embedding"  json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ChunkHit is a chunk returned by a keyword or semantic search.
// Similarity is only meaningful for semantic hits.
type ChunkHit struct {
	ChunkID    uuid.UUID
	MaterialID uuid.UUID
	Index      int
	Similarity float64
}

// ChunkSample is a chunk plus the material fields needed to summarize a
// project for topic extraction.
type ChunkSample struct {
	MaterialID       uuid.UUID
	Filename         string
	Category         string
	SectionHierarchy string
	Text             string
	PageStart        int
}

// TopicChunk is a mapped chunk with its source material and relevance,
// used as generation context.
type TopicChunk struct {
	ChunkID          uuid.UUID
	Text             string
	SectionHierarchy string
	PageStart        int
	PageEnd          int
	Filename         string
	Category         string
	RelevanceScore   float64
	RelevanceSource  RelevanceSource
}
