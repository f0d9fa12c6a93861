package topics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/pkg/models"
)

const (
	representativeChunkLimit = 100
	sectionsPerFile          = 20
	sampleCount              = 10
	samplePreviewChars       = 300
)

// ErrNothingToExtract means the project has no chunked valid material.
var ErrNothingToExtract = errors.New("no chunked valid materials in project")

// Source is what the extractor reads from the store.
type Source interface {
	ListValidMaterials(ctx context.Context, projectID uuid.UUID) ([]*models.Material, error)
	ListRepresentativeChunks(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.ChunkSample, error)
}

// Extraction is the raw output of one run, before deduplication.
type Extraction struct {
	Materials  []*models.Material
	Candidates []Candidate
}

// MaterialIDs returns the IDs of the materials the run was based on.
func (e *Extraction) MaterialIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(e.Materials))
	for i, m := range e.Materials {
		ids[i] = m.ID
	}
	return ids
}

// Extractor proposes topics for a project from a summary of its materials.
type Extractor struct {
	gen    models.Generator
	source Source
	logger *slog.Logger
}

func NewExtractor(gen models.Generator, source Source) *Extractor {
	return &Extractor{
		gen:    gen,
		source: source,
		logger: slog.Default().With("component", "topic_extractor"),
	}
}

const extractorSystemPrompt = "You are an expert educational content analyzer. Extract key topics from course materials."

// Extract returns the generator's candidate topics for projectID.
func (x *Extractor) Extract(ctx context.Context, projectID uuid.UUID) (*Extraction, error) {
	materials, err := x.source.ListValidMaterials(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list valid materials: %w", err)
	}
	if len(materials) == 0 {
		return nil, ErrNothingToExtract
	}

	samples, err := x.source.ListRepresentativeChunks(ctx, projectID, representativeChunkLimit)
	if err != nil {
		return nil, fmt.Errorf("list representative chunks: %w", err)
	}
	if len(samples) == 0 {
		return nil, ErrNothingToExtract
	}

	lo, hi := Band(len(materials))
	prompt := models.Prompt{
		System: extractorSystemPrompt,
		User:   extractionPrompt(BuildSummary(materials, samples), lo, hi),
	}

	var resp struct {
		Topics []Candidate `json:"topics"`
	}
	if err := x.gen.GenerateJSON(ctx, prompt, &resp); err != nil {
		return nil, fmt.Errorf("generate topics: %w", err)
	}

	for i := range resp.Topics {
		resp.Topics[i].Keywords = CleanKeywords(resp.Topics[i].Keywords)
	}

	x.logger.Info("topics extracted", "project_id", projectID, "count", len(resp.Topics), "materials", len(materials))
	return &Extraction{Materials: materials, Candidates: resp.Topics}, nil
}

// Select deduplicates candidates and truncates them to the band maximum
// for materialCount.
func Select(candidates []Candidate, materialCount int) []Candidate {
	out := Dedupe(candidates)
	if _, hi := Band(materialCount); len(out) > hi {
		out = out[:hi]
	}
	return out
}

// BuildSummary renders the material list, each file's section titles and a
// few sample passages as markdown for the extraction prompt.
func BuildSummary(materials []*models.Material, samples []*models.ChunkSample) string {
	var b strings.Builder

	b.WriteString("## Uploaded Materials\n\n")
	for _, m := range materials {
		fmt.Fprintf(&b, "- **%s** (%s)\n", m.Filename, categoryLabel(m.Category))
	}

	b.WriteString("\n## Content Structure\n")
	var files []string
	sections := make(map[string][]string)
	for _, s := range samples {
		if s.SectionHierarchy == "" {
			continue
		}
		if _, ok := sections[s.Filename]; !ok {
			files = append(files, s.Filename)
		}
		if !slices.Contains(sections[s.Filename], s.SectionHierarchy) {
			sections[s.Filename] = append(sections[s.Filename], s.SectionHierarchy)
		}
	}
	for _, f := range files {
		fmt.Fprintf(&b, "\n**%s:**\n", f)
		list := sections[f]
		if len(list) > sectionsPerFile {
			list = list[:sectionsPerFile]
		}
		for _, s := range list {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	b.WriteString("\n## Sample Content\n")
	for i, s := range samples {
		if i == sampleCount {
			break
		}
		preview := s.Text
		if r := []rune(preview); len(r) > samplePreviewChars {
			preview = string(r[:samplePreviewChars])
		}
		fmt.Fprintf(&b, "\n**Sample %d** (%s, p. %d):\n%s...\n", i+1, s.Filename, s.PageStart, strings.TrimSpace(preview))
	}
	return b.String()
}

func extractionPrompt(summary string, lo, hi int) string {
	return fmt.Sprintf(`You are analyzing educational materials to extract key topics for a study guide.

%s

Based on these materials, extract the topics a student should study.

Requirements:
- Each topic should be a distinct concept or subject area
- Topics should cover all major themes in the materials
- Include %d-%d topics
- For each topic, provide:
  - name: Clear, concise topic name (2-5 words)
  - description: Brief explanation (1-2 sentences)
  - keywords: 3-8 relevant keywords for searching

Return a JSON object with this structure:
{"topics": [{"name": "Photosynthesis", "description": "How plants convert light energy into chemical energy.", "keywords": ["photosynthesis", "chloroplast", "Calvin cycle"]}]}`, summary, lo, hi)
}

// categoryLabel turns "lecture_notes" into "Lecture Notes".
func categoryLabel(category string) string {
	words := strings.Fields(strings.ReplaceAll(category, "_", " "))
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + strings.ToLower(string(r[1:]))
	}
	return strings.Join(words, " ")
}
