package models

import (
	"time"

	"github.com/google/uuid"
)

// RelevanceSource records how a chunk was matched to a topic.
type RelevanceSource string

const (
	SourceKeyword            RelevanceSource = "keyword_match"
	SourceSemantic           RelevanceSource = "semantic_search"
	SourceKeywordAndSemantic RelevanceSource = "keyword_and_semantic"
)

// MaxTopicKeywords caps Topic.Keywords.
const MaxTopicKeywords = 8

// Topic is a study topic of a project. Confirmed topics are never removed by
// re-extraction.
type Topic struct {
	ID                uuid.UUID   `db:"id"                  json:"id"`
	ProjectID         uuid.UUID   `db:"project_id"          json:"projectId"`
	Name              string      `db:"name"                json:"name"`
	Description       string      `db:"description"         json:"description"`
	Keywords          []string    `db:"keywords"            json:"keywords"`
	OrderIndex        int         `db:"order_index"         json:"orderIndex"`
	UserConfirmed     bool        `db:"user_confirmed"      json:"userConfirmed"`
	SourceMaterialIDs []uuid.UUID `db:"source_material_ids" json:"sourceMaterialIds"`
	CreatedAt         time.Time   `db:"created_at"          json:"createdAt"`
	UpdatedAt         time.Time   `db:"updated_at"          json:"updatedAt"`
}

// TopicChunkMapping links a topic to a chunk with a relevance score.
type TopicChunkMapping struct {
	TopicID         uuid.UUID       `db:"topic_id"         json:"topicId"`
	ChunkID         uuid.UUID       `db:"chunk_id"         json:"chunkId"`
	RelevanceScore  float64         `db:"relevance_score"  json:"relevanceScore"`
	RelevanceSource RelevanceSource `db:"relevance_source" json:"relevanceSource"`
}
