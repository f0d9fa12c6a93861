package content_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/internal/ai/mock"
	"github.com/harishm17/study-buddy/internal/content"
	"github.com/harishm17/study-buddy/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistribute(t *testing.T) {
	assert.Equal(t, []int{7, 7, 6}, content.Distribute(20, 3))
	assert.Equal(t, []int{5, 5, 5, 5}, content.Distribute(20, 4))
	assert.Equal(t, []int{1, 1, 0}, content.Distribute(2, 3))
	assert.Empty(t, content.Distribute(5, 0))
}

func TestTypeMix(t *testing.T) {
	got := content.TypeMix(10, content.DefaultTypeDistribution)
	assert.Equal(t, []string{
		"multiple_choice", "multiple_choice", "multiple_choice", "multiple_choice", "multiple_choice", "multiple_choice",
		"short_answer", "short_answer", "short_answer",
		"numerical",
	}, got)

	got = content.TypeMix(2, content.DefaultTypeDistribution)
	assert.Equal(t, []string{"multiple_choice", "short_answer"}, got)

	got = content.TypeMix(3, map[string]int{"essay": 50, "true_false": 50})
	assert.Equal(t, []string{"true_false", "true_false", "essay"}, got)
}

// countingGenerator answers each exam prompt with as many questions as the
// prompt asks for.
func countingGenerator(t *testing.T) (*mock.MockProvider, *[]int) {
	var mu sync.Mutex
	var asked []int
	gen := mock.NewMockProvider()
	gen.GenerateJSONFunc = func(ctx context.Context, p models.Prompt, out any) error {
		var n int
		for _, line := range strings.Split(p.User, "\n") {
			if strings.HasPrefix(line, "**Number of Questions:** ") {
				_, err := fmt.Sscan(strings.TrimPrefix(line, "**Number of Questions:** "), &n)
				require.NoError(t, err)
			}
		}
		mu.Lock()
		asked = append(asked, n)
		mu.Unlock()

		qs := make([]map[string]any, n)
		for i := range qs {
			qs[i] = map[string]any{"question_type": "multiple_choice", "question_text": "q", "correct_answer": "A", "points": 2}
		}
		return mock.NewMockProvider().RespondJSON(map[string]any{"questions": qs}).GenerateJSON(ctx, p, out)
	}
	return gen, &asked
}

func TestExamGenerator_Generate(t *testing.T) {
	topics := []*models.Topic{
		{ID: uuid.New(), Name: "Stacks"},
		{ID: uuid.New(), Name: "Queues"},
		{ID: uuid.New(), Name: "Heaps"},
	}
	src := &fakeChunks{byTopic: map[uuid.UUID][]*models.TopicChunk{}}
	gen, asked := countingGenerator(t)

	exam, err := content.NewExamGenerator(gen, src).Generate(context.Background(), topics, content.ExamConfig{})
	require.NoError(t, err)

	assert.Equal(t, []int{7, 7, 6}, *asked)
	assert.Len(t, exam.Questions, content.DefaultExamQuestions)
	assert.Equal(t, content.DefaultExamDuration, exam.DurationMinutes)
	assert.Equal(t, "medium", exam.DifficultyLevel)
	assert.Equal(t, []string{"Stacks", "Queues", "Heaps"}, exam.TopicsCovered)

	perTopic := map[string]int{}
	for _, q := range exam.Questions {
		perTopic[q.TopicName]++
		assert.NotEmpty(t, q.TopicID)
	}
	assert.Equal(t, map[string]int{"Stacks": 7, "Queues": 7, "Heaps": 6}, perTopic)
}

func TestExamGenerator_SkipsTopicsWithoutQuestions(t *testing.T) {
	topics := []*models.Topic{{ID: uuid.New(), Name: "A"}, {ID: uuid.New(), Name: "B"}, {ID: uuid.New(), Name: "C"}}
	gen, asked := countingGenerator(t)

	exam, err := content.NewExamGenerator(gen, &fakeChunks{}).Generate(context.Background(), topics, content.ExamConfig{TotalQuestions: 2, DurationMinutes: 30, DifficultyLevel: "hard"})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1}, *asked)
	assert.Len(t, exam.Questions, 2)
	assert.Equal(t, 30, exam.DurationMinutes)
	assert.Equal(t, "hard", exam.DifficultyLevel)
	assert.Len(t, exam.TopicsCovered, 3)
}

func TestExamGenerator_NoTopics(t *testing.T) {
	_, err := content.NewExamGenerator(mock.NewMockProvider(), &fakeChunks{}).Generate(context.Background(), nil, content.ExamConfig{})
	require.Error(t, err)
}
