package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/pkg/models"
)

func (r *Runner) generateContent(ctx context.Context, sr *stageRun) (*stageResult, error) {
	var in contentInput
	if err := sr.decode(&in); err != nil {
		return nil, err
	}
	if in.TopicID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing topicId", ErrInvalidInput)
	}
	ct, err := models.ParseContentType(in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	topic, err := r.store.GetTopic(ctx, in.TopicID)
	if err != nil {
		return nil, fmt.Errorf("get topic %s: %w", in.TopicID, err)
	}
	sr.progress(ctx, 30)

	res, err := r.content.Generate(ctx, ct, topic, in.Preferences)
	if err != nil {
		return nil, err
	}
	sr.progress(ctx, 70)

	row := &models.TopicContent{
		ID:          uuid.New(),
		TopicID:     topic.ID,
		ContentType: ct,
		ContentData: res.Data,
		Metadata:    res.Metadata,
		CreatedAt:   sr.now,
	}
	if err := r.store.CreateTopicContent(ctx, row); err != nil {
		return nil, fmt.Errorf("save content: %w", err)
	}

	return &stageResult{
		result: map[string]any{
			"content_id":   row.ID,
			"content_type": ct,
			"metadata":     res.Metadata,
		},
		fields: map[string]any{"contentId": row.ID, "contentType": ct},
	}, nil
}

func (r *Runner) generateExam(ctx context.Context, sr *stageRun) (*stageResult, error) {
	var in examInput
	if err := sr.decode(&in); err != nil {
		return nil, err
	}
	if in.ProjectID == uuid.Nil || len(in.TopicIDs) == 0 {
		return nil, fmt.Errorf("%w: missing projectId or topicIds", ErrInvalidInput)
	}

	list, err := r.store.ListTopicsByIDs(ctx, in.ProjectID, in.TopicIDs)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("exam topics: %w", store.ErrNotFound)
	}
	slices.SortStableFunc(list, func(a, b *models.Topic) int { return a.OrderIndex - b.OrderIndex })
	sr.progress(ctx, 30)

	exam, err := r.exams.Generate(ctx, list, in.Config)
	if err != nil {
		return nil, err
	}
	sr.progress(ctx, 70)

	questions, err := json.Marshal(exam.Questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}
	row := &models.SampleExam{
		ID:              uuid.New(),
		ProjectID:       in.ProjectID,
		Name:            "Sample Exam - " + sr.now.Format("2006-01-02"),
		Questions:       questions,
		DurationMinutes: exam.DurationMinutes,
		DifficultyLevel: exam.DifficultyLevel,
		TopicsCovered:   exam.TopicsCovered,
		CreatedAt:       sr.now,
	}
	if err := r.store.CreateSampleExam(ctx, row); err != nil {
		return nil, fmt.Errorf("save exam: %w", err)
	}

	return &stageResult{
		result: map[string]any{
			"exam_id":         row.ID,
			"total_questions": len(exam.Questions),
			"topics_covered":  exam.TopicsCovered,
		},
		fields: map[string]any{"examId": row.ID, "totalQuestions": len(exam.Questions)},
	}, nil
}

func (r *Runner) gradeExam(ctx context.Context, sr *stageRun) (*stageResult, error) {
	var in gradeInput
	if err := sr.decode(&in); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	sr.progress(ctx, 30)

	grading := r.grader.Grade(ctx, in.SubmissionID.String(), in.Questions, in.Answers, sr.now)
	sr.progress(ctx, 70)

	gradingJSON, err := json.Marshal(grading)
	if err != nil {
		return nil, fmt.Errorf("encode grading: %w", err)
	}
	feedbackJSON, err := json.Marshal(grading.Feedback())
	if err != nil {
		return nil, fmt.Errorf("encode feedback: %w", err)
	}
	if err := r.store.SaveGrading(ctx, in.SubmissionID, gradingJSON, feedbackJSON, sr.now); err != nil {
		return nil, fmt.Errorf("save grading for submission %s: %w", in.SubmissionID, err)
	}

	return &stageResult{
		result: map[string]any{
			"submission_id": in.SubmissionID,
			"overall_score": grading.OverallScore,
		},
		fields: map[string]any{"overallScore": grading.OverallScore},
	}, nil
}
