package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harishm17/study-buddy/internal/cache"
	"github.com/harishm17/study-buddy/internal/dispatch"
	"github.com/harishm17/study-buddy/internal/pipeline"
	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/pkg/models"
)

// enqueueOptions are the flags of the enqueue command.
type enqueueOptions struct {
	project     string
	user        string
	material    string
	topic       string
	topics      []string
	submission  string
	contentType string
	data        string
}

func enqueueCMD() *cobra.Command {
	var opts enqueueOptions

	enqueue := &cobra.Command{
		Use:   "enqueue JOB_TYPE",
		Short: "Create a pending job and dispatch it",
		Long: "Create a pending job row and dispatch it through the configured dispatcher.\n" +
			"JOB_TYPE is one of validate_material, chunk_material, extract_topics,\n" +
			"generate_content, generate_exam, grade_exam.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType, err := models.ParseJobType(args[0])
			if err != nil {
				return err
			}
			projectID, err := uuid.Parse(opts.project)
			if err != nil {
				return fmt.Errorf("--project must be a UUID: %w", err)
			}
			userID, err := uuid.Parse(opts.user)
			if err != nil {
				return fmt.Errorf("--user must be a UUID: %w", err)
			}
			materialID, data, err := buildInput(jobType, projectID, opts)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, pool, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			redisClient, err := cache.NewClient(cfg.Redis.URL)
			if err != nil {
				return fmt.Errorf("create redis client: %w", err)
			}
			defer redisClient.Close()

			jobs := store.NewPostgresStore(pool)
			d, err := dispatch.New(cfg.Dispatch, redisClient, jobs)
			if err != nil {
				return fmt.Errorf("create dispatcher: %w", err)
			}

			now := time.Now().UTC()
			job, err := pipeline.NewJob(projectID, userID, materialID, jobType, data, now)
			if err != nil {
				return err
			}

			taskID, err := pipeline.Enqueue(ctx, jobs, d, job, now)
			if errors.Is(err, store.ErrDuplicateKey) {
				return fmt.Errorf("a %s job is already in flight for this project", jobType)
			}
			if err != nil {
				return err
			}
			if w, ok := d.(interface{ Wait(ctx context.Context) error }); ok {
				_ = w.Wait(ctx)
			}

			return printJSON(cmd, map[string]any{"jobId": job.ID, "taskId": taskID})
		},
	}

	f := enqueue.Flags()
	f.StringVar(&opts.project, "project", "", "project ID (required)")
	f.StringVar(&opts.user, "user", "", "user ID (required)")
	f.StringVar(&opts.material, "material", "", "material ID for validate_material and chunk_material")
	f.StringVar(&opts.topic, "topic", "", "topic ID for generate_content")
	f.StringSliceVar(&opts.topics, "topics", nil, "topic IDs for generate_exam")
	f.StringVar(&opts.submission, "submission", "", "submission ID for grade_exam")
	f.StringVar(&opts.contentType, "content-type", "", "section_notes, solved_examples, interactive_examples or topic_quiz")
	f.StringVar(&opts.data, "data", "", "extra job data as a JSON object, merged over the flags")
	_ = enqueue.MarkFlagRequired("project")
	_ = enqueue.MarkFlagRequired("user")

	return enqueue
}

// buildInput assembles the job data for jobType from the flags.
func buildInput(jobType models.JobType, projectID uuid.UUID, opts enqueueOptions) (*uuid.UUID, map[string]any, error) {
	data := map[string]any{}
	var materialID *uuid.UUID

	switch jobType {
	case models.JobTypeValidateMaterial, models.JobTypeChunkMaterial:
		id, err := uuid.Parse(opts.material)
		if err != nil {
			return nil, nil, fmt.Errorf("--material must be a UUID for %s", jobType)
		}
		materialID = &id
		data["materialId"] = id
	case models.JobTypeExtractTopics:
		data["projectId"] = projectID
	case models.JobTypeGenerateContent:
		id, err := uuid.Parse(opts.topic)
		if err != nil {
			return nil, nil, fmt.Errorf("--topic must be a UUID for %s", jobType)
		}
		if opts.contentType == "" {
			return nil, nil, fmt.Errorf("--content-type is required for %s", jobType)
		}
		data["topicId"] = id
		data["contentType"] = opts.contentType
	case models.JobTypeGenerateExam:
		ids := make([]uuid.UUID, 0, len(opts.topics))
		for _, s := range opts.topics {
			id, err := uuid.Parse(s)
			if err != nil {
				return nil, nil, fmt.Errorf("--topics: %q is not a UUID", s)
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return nil, nil, fmt.Errorf("--topics is required for %s", jobType)
		}
		data["projectId"] = projectID
		data["topicIds"] = ids
	case models.JobTypeGradeExam:
		id, err := uuid.Parse(opts.submission)
		if err != nil {
			return nil, nil, fmt.Errorf("--submission must be a UUID for %s", jobType)
		}
		data["submissionId"] = id
	}

	if opts.data != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(opts.data), &extra); err != nil {
			return nil, nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
		for k, v := range extra {
			data[k] = v
		}
	}
	return materialID, data, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
