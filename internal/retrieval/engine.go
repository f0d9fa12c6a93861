// Package retrieval ranks a project's chunks for a topic by fusing keyword
// and vector search.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/internal/metrics"
	"github.com/harishm17/study-buddy/pkg/models"
)

const (
	// KeywordScore is the relevance of a keyword-only hit.
	KeywordScore = 0.8
	// DualMatchBoost multiplies the score of a chunk found by both paths.
	DualMatchBoost = 1.1
	// DefaultLimit applies when Query.Limit is not positive.
	DefaultLimit = 15
)

// Index is the subset of the store the engine reads.
type Index interface {
	KeywordSearch(ctx context.Context, projectID uuid.UUID, patterns []string, limit int) ([]models.ChunkHit, error)
	SemanticSearch(ctx context.Context, projectID uuid.UUID, embedding []float32, limit int) ([]models.ChunkHit, error)
}

type Query struct {
	ProjectID        uuid.UUID
	TopicName        string
	TopicDescription string
	Keywords         []string
	Limit            int
}

// Result is one ranked chunk.
type Result struct {
	ChunkID uuid.UUID
	Score   float64
	Source  models.RelevanceSource
}

type Engine struct {
	index    Index
	embedder models.Embedder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewEngine builds an engine. m may be nil.
func NewEngine(index Index, embedder models.Embedder, m *metrics.Metrics) *Engine {
	return &Engine{
		index:    index,
		embedder: embedder,
		metrics:  m,
		logger:   slog.Default().With("component", "retrieval"),
	}
}

// Search returns at most q.Limit chunks, best first. A failure of the
// semantic path is logged and the keyword results are returned alone; only a
// keyword query failure is returned as an error.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var keywordHits []models.ChunkHit
	if patterns := Patterns(q.Keywords); len(patterns) > 0 {
		hits, err := e.index.KeywordSearch(ctx, q.ProjectID, patterns, 2*limit)
		if err != nil {
			return nil, err
		}
		keywordHits = hits
	}

	semanticHits := e.semantic(ctx, q, 2*limit)

	return Fuse(keywordHits, semanticHits, limit), nil
}

func (e *Engine) semantic(ctx context.Context, q Query, limit int) []models.ChunkHit {
	text := q.TopicName + ": " + q.TopicDescription

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("topic embedding failed, using keyword results only",
			"project_id", q.ProjectID, "topic", q.TopicName, "error", err)
		e.metrics.RetrievalDegraded()
		return nil
	}

	hits, err := e.index.SemanticSearch(ctx, q.ProjectID, vec, limit)
	if err != nil {
		e.logger.Warn("semantic search failed, using keyword results only",
			"project_id", q.ProjectID, "topic", q.TopicName, "error", err)
		e.metrics.RetrievalDegraded()
		return nil
	}
	return hits
}

// Fuse merges both hit lists by chunk ID and truncates to limit.
//
//	keyword only:  KeywordScore
//	semantic only: similarity
//	both:          max(KeywordScore, similarity) * DualMatchBoost
//
// Ties keep insertion order: keyword hits first in document order, then new
// semantic hits by similarity.
func Fuse(keyword, semantic []models.ChunkHit, limit int) []Result {
	byID := make(map[uuid.UUID]int, len(keyword)+len(semantic))
	results := make([]Result, 0, len(keyword)+len(semantic))

	for _, h := range keyword {
		if _, seen := byID[h.ChunkID]; seen {
			continue
		}
		byID[h.ChunkID] = len(results)
		results = append(results, Result{ChunkID: h.ChunkID, Score: KeywordScore, Source: models.SourceKeyword})
	}

	for _, h := range semantic {
		i, seen := byID[h.ChunkID]
		if !seen {
			byID[h.ChunkID] = len(results)
			results = append(results, Result{ChunkID: h.ChunkID, Score: h.Similarity, Source: models.SourceSemantic})
			continue
		}
		if results[i].Source == models.SourceKeyword {
			results[i].Score = max(KeywordScore, h.Similarity) * DualMatchBoost
			results[i].Source = models.SourceKeywordAndSemantic
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Patterns turns keywords into escaped ILIKE patterns of the form %kw%.
// Non-printable runes are removed, and the backslash escapes every literal
// backslash, percent and underscore. Empty keywords are dropped.
func Patterns(keywords []string) []string {
	var patterns []string
	for _, kw := range keywords {
		clean := SanitizeKeyword(kw)
		if clean == "" {
			continue
		}
		patterns = append(patterns, "%"+escapeLike(clean)+"%")
	}
	return patterns
}

// SanitizeKeyword strips non-printable runes and surrounding space.
func SanitizeKeyword(kw string) string {
	kw = strings.Map(func(r rune) rune {
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, kw)
	return strings.TrimSpace(kw)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
