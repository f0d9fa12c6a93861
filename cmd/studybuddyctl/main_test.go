package main

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harishm17/study-buddy/pkg/models"
)

func TestBuildInput(t *testing.T) {
	projectID := uuid.New()
	materialID := uuid.New()
	topicID := uuid.New()

	tests := []struct {
		name     string
		jobType  models.JobType
		opts     enqueueOptions
		wantKeys []string
		material bool
	}{
		{
			name:     "validate material",
			jobType:  models.JobTypeValidateMaterial,
			opts:     enqueueOptions{material: materialID.String()},
			wantKeys: []string{"materialId"},
			material: true,
		},
		{
			name:     "extract topics",
			jobType:  models.JobTypeExtractTopics,
			wantKeys: []string{"projectId"},
		},
		{
			name:     "generate content",
			jobType:  models.JobTypeGenerateContent,
			opts:     enqueueOptions{topic: topicID.String(), contentType: "topic_quiz"},
			wantKeys: []string{"topicId", "contentType"},
		},
		{
			name:     "generate exam",
			jobType:  models.JobTypeGenerateExam,
			opts:     enqueueOptions{topics: []string{topicID.String()}},
			wantKeys: []string{"projectId", "topicIds"},
		},
		{
			name:     "grade exam with data",
			jobType:  models.JobTypeGradeExam,
			opts:     enqueueOptions{submission: uuid.NewString(), data: `{"answers":{"q1":"B"}}`},
			wantKeys: []string{"submissionId", "answers"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mID, data, err := buildInput(tt.jobType, projectID, tt.opts)
			require.NoError(t, err)

			assert.Len(t, data, len(tt.wantKeys))
			for _, k := range tt.wantKeys {
				assert.Contains(t, data, k)
			}
			if tt.material {
				require.NotNil(t, mID)
				assert.Equal(t, materialID, *mID)
			} else {
				assert.Nil(t, mID)
			}
		})
	}
}

func TestBuildInput_Errors(t *testing.T) {
	tests := []struct {
		name    string
		jobType models.JobType
		opts    enqueueOptions
	}{
		{"missing material", models.JobTypeChunkMaterial, enqueueOptions{}},
		{"missing content type", models.JobTypeGenerateContent, enqueueOptions{topic: uuid.NewString()}},
		{"no topics", models.JobTypeGenerateExam, enqueueOptions{}},
		{"bad topic", models.JobTypeGenerateExam, enqueueOptions{topics: []string{"nope"}}},
		{"bad data", models.JobTypeExtractTopics, enqueueOptions{data: `[1,2]`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := buildInput(tt.jobType, uuid.New(), tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestParseSteps(t *testing.T) {
	n, err := parseSteps("3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, bad := range []string{"0", "-2", "two"} {
		_, err := parseSteps(bad)
		assert.Error(t, err, bad)
	}
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cmd := migrateCMD()
	cmd.SetArgs([]string{"up"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestEnqueue_RejectsUnknownJobType(t *testing.T) {
	cmd := enqueueCMD()
	cmd.SetArgs([]string{"summarize", "--project", uuid.NewString(), "--user", uuid.NewString()})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job type")
}
