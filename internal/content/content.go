// Package content generates study material for a topic, builds sample
// exams across topics and grades exam submissions.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/pkg/models"
)

// MaxContextChunks bounds the mapped chunks fed to a content prompt.
const MaxContextChunks = 15

var (
	ErrNoChunks           = errors.New("topic has no mapped chunks")
	ErrUnknownContentType = errors.New("unknown content type")
)

// ChunkSource reads a topic's mapped chunks, most relevant first.
type ChunkSource interface {
	ListTopicChunks(ctx context.Context, topicID uuid.UUID, limit int) ([]*models.TopicChunk, error)
}

// Preferences tune one content request. Zero values take the defaults.
type Preferences struct {
	DetailLevel     string `json:"detail_level"`
	IncludeExamples *bool  `json:"include_examples"`
	Count           int    `json:"count"`
	QuestionCount   int    `json:"question_count"`
	DifficultyLevel string `json:"difficulty_level"`
}

func (p Preferences) difficulty() string {
	switch p.DifficultyLevel {
	case "easy", "medium", "hard":
		return p.DifficultyLevel
	}
	return "medium"
}

// Result is stored as a topic_content row.
type Result struct {
	Data     json.RawMessage
	Metadata json.RawMessage
}

// Citation names a source file the notes drew on.
type Citation struct {
	Filename string `json:"filename"`
	Category string `json:"category"`
	Pages    string `json:"pages"`
}

type builder func(ctx context.Context, g *Generator, topic *models.Topic, chunks []*models.TopicChunk, prefs Preferences) (any, any, error)

// builders has one entry per models.ContentType.
var builders = map[models.ContentType]builder{
	models.ContentSectionNotes:        buildNotes,
	models.ContentSolvedExamples:      buildSolvedExamples,
	models.ContentInteractiveExamples: buildInteractiveExamples,
	models.ContentTopicQuiz:           buildQuiz,
}

// Generator produces topic content with a text generator.
type Generator struct {
	gen    models.Generator
	chunks ChunkSource
}

func NewGenerator(gen models.Generator, chunks ChunkSource) *Generator {
	return &Generator{gen: gen, chunks: chunks}
}

// Generate builds content of type ct for topic. It returns ErrNoChunks when
// the topic has no mapped chunks.
func (g *Generator) Generate(ctx context.Context, ct models.ContentType, topic *models.Topic, prefs Preferences) (*Result, error) {
	build, ok := builders[ct]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, ct)
	}

	chunks, err := g.chunks.ListTopicChunks(ctx, topic.ID, MaxContextChunks)
	if err != nil {
		return nil, fmt.Errorf("list topic chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	data, meta, err := build(ctx, g, topic, chunks, prefs)
	if err != nil {
		return nil, err
	}

	var res Result
	if res.Data, err = json.Marshal(data); err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	if res.Metadata, err = json.Marshal(meta); err != nil {
		return nil, fmt.Errorf("encode content metadata: %w", err)
	}
	return &res, nil
}

// --- Section notes ---

var detailInstructions = map[string]string{
	"brief":         "Focus on key concepts and main points only. Be concise.",
	"moderate":      "Provide a balanced overview with important details and explanations.",
	"comprehensive": "Provide thorough, detailed notes covering all aspects in depth.",
}

func buildNotes(ctx context.Context, g *Generator, topic *models.Topic, chunks []*models.TopicChunk, prefs Preferences) (any, any, error) {
	detail, ok := detailInstructions[prefs.DetailLevel]
	if !ok {
		detail = detailInstructions["comprehensive"]
	}
	examples := "Include relevant examples and illustrations from the source material."
	if prefs.IncludeExamples != nil && !*prefs.IncludeExamples {
		examples = "Focus on concepts and explanations without detailed examples."
	}

	prompt := fmt.Sprintf(`You are an expert educational content creator. Synthesize study notes for one topic from the course materials below.

**Topic:** %s
**Description:** %s

**Detail Level:** %s
%s

**Source Material Excerpts:**

%s

**Instructions:**
1. Synthesize the sources into cohesive, well-structured notes with clear headings
2. Highlight key concepts, definitions, formulas and important points
3. Use markdown formatting
4. Add [Citation: filename, pages] after important facts or quotes

Format the notes as:
# %s

## Overview
## Key Concepts
## Detailed Content
## Summary`, topic.Name, topic.Description, detail, examples, sourcedContext(chunks), topic.Name)

	notes, err := g.gen.GenerateText(ctx, models.Prompt{User: prompt, Temperature: 0.3})
	if err != nil {
		return nil, nil, fmt.Errorf("generate notes: %w", err)
	}

	meta := map[string]any{
		"citations":   Citations(chunks),
		"chunk_count": len(chunks),
	}
	return notes, meta, nil
}

// Citations lists each source file once, in relevance order.
func Citations(chunks []*models.TopicChunk) []Citation {
	seen := make(map[string]bool)
	var out []Citation
	for _, c := range chunks {
		if seen[c.Filename] {
			continue
		}
		seen[c.Filename] = true
		out = append(out, Citation{
			Filename: c.Filename,
			Category: c.Category,
			Pages:    fmt.Sprintf("%d-%d", c.PageStart, c.PageEnd),
		})
	}
	return out
}

// --- Examples ---

const defaultExampleCount = 3

var solvedGuidance = map[string]string{
	"easy":   "Create straightforward problems that test basic understanding of core concepts.",
	"medium": "Create moderately challenging problems requiring application of multiple concepts.",
	"hard":   "Create complex problems requiring deep understanding and multi-step reasoning.",
}

var interactiveGuidance = map[string]string{
	"easy":   "Create straightforward problems with 2-3 steps.",
	"medium": "Create moderately challenging problems with 3-5 steps.",
	"hard":   "Create complex problems with 5+ steps requiring deeper reasoning.",
}

const solvedFormat = `{"examples": [{
  "title": "Brief descriptive title",
  "problem_statement": "Clear statement of the problem",
  "solution_steps": [{"step_number": 1, "description": "What we're doing", "work": "Work or reasoning", "explanation": "Why"}],
  "final_answer": "Complete answer with units",
  "key_concepts": ["Concept 1"],
  "difficulty": "%s"
}]}`

const interactiveFormat = `{"examples": [{
  "title": "Brief descriptive title",
  "problem_statement": "Clear initial problem setup",
  "steps": [{
    "step_number": 1,
    "question": "What should the student figure out?",
    "hint": "Hint without giving away the answer",
    "answer_type": "numeric|text|multiple_choice",
    "correct_answer": "The expected answer",
    "acceptable_answers": ["Alternative forms"],
    "explanation": "Why this is correct",
    "feedback_correct": "Positive reinforcement",
    "feedback_incorrect": "Guidance when wrong"
  }],
  "key_concepts": ["Concept 1"],
  "difficulty": "%s",
  "estimated_time_minutes": 10
}]}`

func buildSolvedExamples(ctx context.Context, g *Generator, topic *models.Topic, chunks []*models.TopicChunk, prefs Preferences) (any, any, error) {
	return g.examples(ctx, "solved", solvedGuidance, solvedFormat, topic, chunks, prefs)
}

func buildInteractiveExamples(ctx context.Context, g *Generator, topic *models.Topic, chunks []*models.TopicChunk, prefs Preferences) (any, any, error) {
	return g.examples(ctx, "interactive", interactiveGuidance, interactiveFormat, topic, chunks, prefs)
}

func (g *Generator) examples(ctx context.Context, kind string, guidance map[string]string, format string, topic *models.Topic, chunks []*models.TopicChunk, prefs Preferences) (any, any, error) {
	count := prefs.Count
	if count <= 0 {
		count = defaultExampleCount
	}
	difficulty := prefs.difficulty()

	prompt := fmt.Sprintf(`You are an expert educator creating %s example problems for students.

**Topic:** %s
**Description:** %s
**Difficulty Level:** %s
**Number of Examples:** %d

%s

**Source Material:**

%s

Create %d distinct examples grounded in the source material. Return a JSON object:
%s`, kind, topic.Name, topic.Description, difficulty, count, guidance[difficulty], briefContext(chunks), count, fmt.Sprintf(format, difficulty))

	var resp struct {
		Examples []json.RawMessage `json:"examples"`
	}
	if err := g.gen.GenerateJSON(ctx, models.Prompt{User: prompt, Temperature: 0.5}, &resp); err != nil {
		return nil, nil, fmt.Errorf("generate %s examples: %w", kind, err)
	}
	if resp.Examples == nil {
		resp.Examples = []json.RawMessage{}
	}

	meta := map[string]any{
		"example_type":     kind,
		"difficulty_level": difficulty,
		"count":            len(resp.Examples),
	}
	return resp.Examples, meta, nil
}

// --- Quiz ---

const defaultQuizQuestions = 10

var quizTypes = []string{
	models.QuestionMultipleChoice,
	models.QuestionShortAnswer,
	models.QuestionNumerical,
	models.QuestionTrueFalse,
}

var quizGuidance = map[string]string{
	"easy":   "Focus on basic recall and simple understanding. Questions should test fundamental concepts.",
	"medium": "Test both understanding and application. Include some analysis and problem-solving.",
	"hard":   "Require deep understanding, critical thinking, and complex problem-solving.",
}

func buildQuiz(ctx context.Context, g *Generator, topic *models.Topic, chunks []*models.TopicChunk, prefs Preferences) (any, any, error) {
	count := prefs.QuestionCount
	if count <= 0 {
		count = defaultQuizQuestions
	}
	difficulty := prefs.difficulty()

	prompt := fmt.Sprintf(`You are an expert educator creating a quiz for students.

**Topic:** %s
**Description:** %s
**Difficulty Level:** %s
**Number of Questions:** %d
**Question Types to Include:** %s

%s

**Source Material:**

%s

%s`, topic.Name, topic.Description, difficulty, count, strings.Join(quizTypes, ", "),
		quizGuidance[difficulty], briefContext(chunks), questionFormat(count, difficulty))

	questions, err := g.questions(ctx, prompt, 0.6)
	if err != nil {
		return nil, nil, fmt.Errorf("generate quiz: %w", err)
	}

	meta := map[string]any{
		"total_questions":  len(questions),
		"difficulty_level": difficulty,
		"question_types":   quizTypes,
	}
	return questions, meta, nil
}

func (g *Generator) questions(ctx context.Context, prompt string, temperature float64) ([]Question, error) {
	var resp struct {
		Questions []Question `json:"questions"`
	}
	if err := g.gen.GenerateJSON(ctx, models.Prompt{User: prompt, Temperature: temperature}, &resp); err != nil {
		return nil, err
	}
	if resp.Questions == nil {
		resp.Questions = []Question{}
	}
	return resp.Questions, nil
}

func questionFormat(count int, difficulty string) string {
	return fmt.Sprintf(`Create %[1]d diverse questions based on the source material. Provide an explanation and a points value (1-5) for every question.

Question formats:
multiple_choice: {"question_type": "multiple_choice", "question_text": "...", "options": [{"id": "A", "text": "..."}, {"id": "B", "text": "..."}, {"id": "C", "text": "..."}, {"id": "D", "text": "..."}], "correct_answer": "B", "explanation": "...", "points": 2, "difficulty": "%[2]s"}
short_answer: {"question_type": "short_answer", "question_text": "...", "sample_answer": "...", "key_points": ["..."], "explanation": "...", "points": 3, "difficulty": "%[2]s"}
numerical: {"question_type": "numerical", "question_text": "...", "correct_answer": 42.5, "unit": "m", "tolerance": 0.1, "explanation": "...", "points": 3, "difficulty": "%[2]s"}
true_false: {"question_type": "true_false", "question_text": "...", "correct_answer": true, "explanation": "...", "points": 1, "difficulty": "%[2]s"}

Return a JSON object: {"questions": [ ... %[1]d question objects ... ]}`, count, difficulty)
}

// --- Context rendering ---

// sourcedContext renders chunks with file, pages and section for notes.
func sourcedContext(chunks []*models.TopicChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		section := c.SectionHierarchy
		if section == "" {
			section = "N/A"
		}
		parts[i] = fmt.Sprintf("[Chunk %d] Source: %s (pp. %d-%d)\nSection: %s\n\n%s\n\n---",
			i+1, c.Filename, c.PageStart, c.PageEnd, section, strings.TrimSpace(c.Text))
	}
	return strings.Join(parts, "\n\n")
}

func briefContext(chunks []*models.TopicChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		section := c.SectionHierarchy
		if section == "" {
			section = "N/A"
		}
		parts[i] = fmt.Sprintf("[Source %d - %s]\n%s", i+1, section, strings.TrimSpace(c.Text))
	}
	return strings.Join(parts, "\n\n---\n\n")
}
