package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/harishm17/study-buddy/internal/retrieval"
	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/internal/topics"
	"github.com/harishm17/study-buddy/pkg/models"
)

// topicChunkLimit is the number of chunks mapped to each topic.
const topicChunkLimit = 15

var errNoTopics = errors.New("extraction returned no topics")

func (r *Runner) extractTopics(ctx context.Context, sr *stageRun) (*stageResult, error) {
	var in extractInput
	if err := sr.decode(&in); err != nil {
		return nil, err
	}
	if in.ProjectID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing projectId", ErrInvalidInput)
	}

	extraction, err := r.topics.Extract(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	sr.progress(ctx, 25)

	selected := topics.Select(extraction.Candidates, len(extraction.Materials))
	if len(selected) == 0 {
		return nil, errNoTopics
	}

	existing, err := r.store.ListTopics(ctx, in.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	plan := topics.Reconcile(in.ProjectID, selected, existing, extraction.MaterialIDs())
	sr.progress(ctx, 50)

	// Retrieval runs before the sync transaction so no LLM call holds it open.
	var mappings []models.TopicChunkMapping
	for _, t := range plan.Kept {
		results, err := r.engine.Search(ctx, retrieval.Query{
			ProjectID:        in.ProjectID,
			TopicName:        t.Name,
			TopicDescription: t.Description,
			Keywords:         t.Keywords,
			Limit:            topicChunkLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("map chunks for %q: %w", t.Name, err)
		}
		for _, res := range results {
			mappings = append(mappings, models.TopicChunkMapping{
				TopicID:         t.ID,
				ChunkID:         res.ChunkID,
				RelevanceScore:  res.Score,
				RelevanceSource: res.Source,
			})
		}
	}
	sr.progress(ctx, 75)

	sync := store.TopicSync{
		Updates:  plan.Updates,
		Inserts:  plan.Inserts,
		Deletes:  plan.Deletes,
		Mappings: mappings,
	}
	if err := r.store.SyncTopics(ctx, in.ProjectID, sync, sr.now); err != nil {
		return nil, fmt.Errorf("sync topics: %w", err)
	}

	r.logger.Info("topics reconciled", "project_id", in.ProjectID,
		"updated", len(plan.Updates), "inserted", len(plan.Inserts), "deleted", len(plan.Deletes), "mappings", len(mappings))

	return &stageResult{
		result: map[string]any{
			"topics_extracted": len(plan.Kept),
			"topics_deleted":   len(plan.Deletes),
		},
		fields: map[string]any{"topicsCount": len(plan.Kept)},
	}, nil
}
