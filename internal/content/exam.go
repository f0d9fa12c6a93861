package content

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"

	"github.com/harishm17/study-buddy/pkg/models"
)

// Exam defaults.
const (
	DefaultExamQuestions = 20
	DefaultExamDuration  = 120
	examChunksPerTopic   = 10
)

// DefaultTypeDistribution is the question type mix in percent.
var DefaultTypeDistribution = map[string]int{
	models.QuestionMultipleChoice: 60,
	models.QuestionShortAnswer:    30,
	models.QuestionNumerical:      10,
}

var examGuidance = map[string]string{
	"easy":   "Create straightforward questions testing basic understanding.",
	"medium": "Create moderately challenging questions requiring application and analysis.",
	"hard":   "Create complex questions requiring deep understanding and synthesis.",
}

// ExamConfig is the caller's exam request. Zero values take the defaults.
type ExamConfig struct {
	TotalQuestions           int            `json:"total_questions"`
	DurationMinutes          int            `json:"duration_minutes"`
	QuestionTypeDistribution map[string]int `json:"question_type_distribution"`
	DifficultyLevel          string         `json:"difficulty_level"`
}

func (c ExamConfig) withDefaults() ExamConfig {
	if c.TotalQuestions <= 0 {
		c.TotalQuestions = DefaultExamQuestions
	}
	if c.DurationMinutes <= 0 {
		c.DurationMinutes = DefaultExamDuration
	}
	if len(c.QuestionTypeDistribution) == 0 {
		c.QuestionTypeDistribution = DefaultTypeDistribution
	}
	c.DifficultyLevel = Preferences{DifficultyLevel: c.DifficultyLevel}.difficulty()
	return c
}

// Exam is a generated exam before it is stored.
type Exam struct {
	Questions       []Question
	DurationMinutes int
	DifficultyLevel string
	TopicsCovered   []string
}

// ExamGenerator writes questions per topic and mixes them into one exam.
type ExamGenerator struct {
	gen     models.Generator
	chunks  ChunkSource
	shuffle func([]Question)
}

func NewExamGenerator(gen models.Generator, chunks ChunkSource) *ExamGenerator {
	return &ExamGenerator{
		gen:    gen,
		chunks: chunks,
		shuffle: func(qs []Question) {
			rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
		},
	}
}

// Generate spreads cfg.TotalQuestions over topics, which must already be in
// exam order. Each question is tagged with its topic and the final list is
// shuffled.
func (e *ExamGenerator) Generate(ctx context.Context, topics []*models.Topic, cfg ExamConfig) (*Exam, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("exam needs at least one topic")
	}
	cfg = cfg.withDefaults()

	counts := Distribute(cfg.TotalQuestions, len(topics))
	var all []Question
	covered := make([]string, 0, len(topics))

	for i, topic := range topics {
		covered = append(covered, topic.Name)
		if counts[i] == 0 {
			continue
		}

		chunks, err := e.chunks.ListTopicChunks(ctx, topic.ID, examChunksPerTopic)
		if err != nil {
			return nil, fmt.Errorf("list chunks for topic %s: %w", topic.ID, err)
		}

		questions, err := e.topicQuestions(ctx, topic, chunks, counts[i], cfg)
		if err != nil {
			return nil, fmt.Errorf("generate questions for %q: %w", topic.Name, err)
		}
		for j := range questions {
			questions[j].TopicID = topic.ID.String()
			questions[j].TopicName = topic.Name
		}
		all = append(all, questions...)
	}

	e.shuffle(all)
	return &Exam{
		Questions:       all,
		DurationMinutes: cfg.DurationMinutes,
		DifficultyLevel: cfg.DifficultyLevel,
		TopicsCovered:   covered,
	}, nil
}

func (e *ExamGenerator) topicQuestions(ctx context.Context, topic *models.Topic, chunks []*models.TopicChunk, count int, cfg ExamConfig) ([]Question, error) {
	types := TypeMix(count, cfg.QuestionTypeDistribution)

	excerpts := make([]string, len(chunks))
	for i, c := range chunks {
		excerpts[i] = fmt.Sprintf("[Excerpt %d]\n%s", i+1, strings.TrimSpace(c.Text))
	}

	prompt := fmt.Sprintf(`You are creating exam questions for a comprehensive assessment.

**Topic:** %s
**Description:** %s
**Number of Questions:** %d
**Difficulty:** %s

%s

**Source Material:**

%s

Question types needed, in this mix: %s

%s`, topic.Name, topic.Description, count, cfg.DifficultyLevel, examGuidance[cfg.DifficultyLevel],
		strings.Join(excerpts, "\n\n---\n\n"), strings.Join(types, ", "), questionFormat(count, cfg.DifficultyLevel))

	g := Generator{gen: e.gen}
	return g.questions(ctx, prompt, 0.6)
}

// Distribute splits total evenly over n slots; the first total%n slots get
// one extra.
func Distribute(total, n int) []int {
	counts := make([]int, n)
	if n == 0 {
		return counts
	}
	base, rem := total/n, total%n
	for i := range counts {
		counts[i] = base
		if i < rem {
			counts[i]++
		}
	}
	return counts
}

var typeOrder = []string{
	models.QuestionMultipleChoice,
	models.QuestionShortAnswer,
	models.QuestionNumerical,
	models.QuestionTrueFalse,
}

// TypeMix expands a percentage distribution into count question types. Each
// listed type gets at least one slot before the list is cut to count. Types
// are ordered multiple choice, short answer, numerical, true/false, then any
// others alphabetically.
func TypeMix(count int, dist map[string]int) []string {
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		ia, ib := slices.Index(typeOrder, keys[a]), slices.Index(typeOrder, keys[b])
		switch {
		case ia >= 0 && ib >= 0:
			return ia < ib
		case ia >= 0:
			return true
		case ib >= 0:
			return false
		}
		return keys[a] < keys[b]
	})

	var types []string
	for _, k := range keys {
		n := max(1, int(math.Round(float64(count)*float64(dist[k])/100)))
		for i := 0; i < n; i++ {
			types = append(types, k)
		}
	}
	if len(types) > count {
		types = types[:count]
	}
	return types
}
