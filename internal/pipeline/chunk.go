package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/harishm17/study-buddy/internal/chunker"
	"github.com/harishm17/study-buddy/internal/extract"
	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/pkg/models"
)

func (r *Runner) chunk(ctx context.Context, sr *stageRun) (*stageResult, error) {
	var in materialInput
	if err := sr.decode(&in); err != nil {
		return nil, err
	}
	id, err := in.materialID(sr.job)
	if err != nil {
		return nil, err
	}

	material, err := r.store.GetMaterial(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get material %s: %w", id, err)
	}

	doc, err := r.extractor.Extract(ctx, material.StoragePath, material.Filename)
	switch {
	case errors.Is(err, extract.ErrObjectNotFound):
		return nil, fmt.Errorf("material file %s: %w", material.StoragePath, store.ErrNotFound)
	case errors.Is(err, extract.ErrUnsupportedFormat), errors.Is(err, extract.ErrCorruptDocument):
		return nil, fmt.Errorf("%w: %w", ErrUnprocessable, err)
	case err != nil:
		return nil, fmt.Errorf("extract %s: %w", material.Filename, err)
	}
	sr.progress(ctx, 25)

	pieces := chunker.ChunkPages(doc.Pages, chunker.Options{TargetTokens: r.cfg.ChunkTargetTokens})
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: no chunks produced from %s", ErrUnprocessable, material.Filename)
	}
	sr.progress(ctx, 50)

	chunks := make([]*models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &models.Chunk{
			ID:               uuid.New(),
			MaterialID:       material.ID,
			Text:             p.Text,
			SectionHierarchy: p.Hierarchy,
			PageStart:        p.PageStart,
			PageEnd:          p.PageEnd,
			Index:            p.Index,
			TokenCount:       p.TokenCount,
			CreatedAt:        sr.now,
		}
	}
	failedBatches := r.embed(ctx, chunks)
	sr.progress(ctx, 75)

	if err := r.store.ReplaceChunks(ctx, material.ID, chunks, sr.now); err != nil {
		return nil, fmt.Errorf("write chunks: %w", err)
	}
	r.metrics.AddChunks(len(chunks))

	return &stageResult{
		result: map[string]any{
			"chunks_created":           len(chunks),
			"embedding_batches_failed": failedBatches,
		},
		fields: map[string]any{"chunksCreated": len(chunks)},
		chain: func(ctx context.Context) {
			r.chainExtract(ctx, sr.job)
		},
	}, nil
}

// embed fills in chunk embeddings batch by batch on the pool and returns the
// number of failed batches. Chunks of a failed batch keep a nil embedding.
func (r *Runner) embed(ctx context.Context, chunks []*models.Chunk) int {
	size := r.cfg.EmbedBatchSize
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)

	for start := 0; start < len(chunks); start += size {
		batch := chunks[start:min(start+size, len(chunks))]
		first := start

		wg.Add(1)
		task := func() {
			defer wg.Done()
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}

			vectors, err := r.embedder.EmbedBatch(ctx, texts)
			if err == nil && len(vectors) != len(batch) {
				err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
			}
			if err != nil {
				failed.Add(1)
				r.metrics.EmbeddingBatchFailed()
				r.logger.Warn("embedding batch failed, chunks stay keyword-only",
					"first_index", first, "size", len(batch), "error", err)
				return
			}
			for i, v := range vectors {
				batch[i].Embedding = v
			}
		}

		if err := r.pool.Submit(task); err != nil {
			// Released pool: run the batch on this goroutine.
			task()
		}
	}

	wg.Wait()
	return int(failed.Load())
}
