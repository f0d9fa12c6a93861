package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/harishm17/study-buddy/internal/extract"
	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/pkg/models"
)

const (
	validationSamplePages = 3
	minSampleChars        = 100
	validationPromptChars = 2000
)

// validation is the verdict written to the material.
type validation struct {
	Valid bool   `json:"is_valid"`
	Notes string `json:"notes"`
}

func (v validation) status() string {
	if v.Valid {
		return models.ValidationValid
	}
	return models.ValidationInvalid
}

func (r *Runner) validate(ctx context.Context, sr *stageRun) (*stageResult, error) {
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

	verdict, err := r.judge(ctx, sr, material)
	if err != nil {
		return nil, err
	}
	sr.progress(ctx, 70)

	status := verdict.status()
	if err := r.store.SetMaterialValidation(ctx, material.ID, status, verdict.Notes, sr.now); err != nil {
		return nil, fmt.Errorf("write validation: %w", err)
	}

	res := &stageResult{
		result: map[string]any{"validation_status": status, "notes": verdict.Notes},
		fields: map[string]any{"validationStatus": status},
	}
	if verdict.Valid {
		res.chain = func(ctx context.Context) {
			r.chainJob(ctx, sr.job, models.JobTypeChunkMaterial, &material.ID, materialInput{MaterialID: material.ID})
		}
	}
	return res, nil
}

// judge extracts the material and decides whether it is usable study
// material for its category. Unreadable documents are invalid, not failures.
func (r *Runner) judge(ctx context.Context, sr *stageRun, m *models.Material) (validation, error) {
	doc, err := r.extractor.Extract(ctx, m.StoragePath, m.Filename)
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat), errors.Is(err, extract.ErrCorruptDocument):
		return validation{Notes: "Validation error: " + err.Error()}, nil
	case errors.Is(err, extract.ErrObjectNotFound):
		return validation{}, fmt.Errorf("material file %s: %w", m.StoragePath, store.ErrNotFound)
	case err != nil:
		return validation{}, fmt.Errorf("extract %s: %w", m.Filename, err)
	}
	sr.progress(ctx, 40)

	if doc.PageCount == 0 {
		return validation{Notes: "Document has no pages"}, nil
	}
	if utf8.RuneCountInString(strings.TrimSpace(doc.SampleText(validationSamplePages))) <= minSampleChars {
		return validation{Notes: "Document appears to be empty or contains only images"}, nil
	}

	var v validation
	prompt := models.Prompt{
		User: validationPrompt(m, doc),
		Mini: true,
	}
	if err := r.generator.GenerateJSON(ctx, prompt, &v); err != nil {
		return validation{}, fmt.Errorf("judge material: %w", err)
	}
	if v.Notes == "" {
		v.Notes = "No validation notes provided"
	}
	return v, nil
}

func validationPrompt(m *models.Material, doc *extract.Document) string {
	sample := doc.Text()
	if r := []rune(sample); len(r) > validationPromptChars {
		sample = string(r[:validationPromptChars])
	}

	var b strings.Builder
	b.WriteString("You are validating educational content for StudyBuddy.\n\n")
	fmt.Fprintf(&b, "Material Category: %s\nFilename: %s\nPage Count: %d\n\n", m.Category, m.Filename, doc.PageCount)
	fmt.Fprintf(&b, "Sample Content:\n%s\n\n", sample)
	b.WriteString("Please validate this material:\n")
	fmt.Fprintf(&b, "1. Is this actually educational content related to %q?\n", strings.ReplaceAll(m.Category, "_", " "))
	b.WriteString("2. Is the content readable and properly formatted?\n")
	b.WriteString("3. Are there any issues or concerns?\n\n")
	b.WriteString("Return a JSON response with:\n- is_valid: boolean\n- notes: string (brief explanation)\n")
	return b.String()
}
