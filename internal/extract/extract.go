// Package extract turns stored material files into paged layout blocks for
// validation and chunking.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/harishm17/study-buddy/internal/blob"
	"github.com/harishm17/study-buddy/internal/chunker"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("document could not be parsed")
	ErrObjectNotFound    = blob.ErrNotFound
)

// Extractor reads a material and returns its pages.
type Extractor interface {
	Extract(ctx context.Context, storagePath, filename string) (*Document, error)
}

// Document is the extracted content of one material.
type Document struct {
	PageCount int
	Pages     []chunker.Page
}

// Text joins every block of every page.
func (d *Document) Text() string {
	return d.textOf(len(d.Pages))
}

// SampleText joins the blocks of the first n pages.
func (d *Document) SampleText(n int) string {
	return d.textOf(min(n, len(d.Pages)))
}

func (d *Document) textOf(n int) string {
	var parts []string
	for _, p := range d.Pages[:n] {
		for _, b := range p.Blocks {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

var textFormats = map[string]bool{
	".txt":      false,
	".md":       true,
	".markdown": true,
}

var layoutFormats = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// Service extracts plain text formats itself and sends layout formats to a
// Processor.
type Service struct {
	blobs     blob.Reader
	processor Processor
	logger    *slog.Logger
}

var _ Extractor = (*Service)(nil)

// NewService returns a Service. processor may be nil, in which case layout
// formats are unsupported.
func NewService(blobs blob.Reader, processor Processor) *Service {
	return &Service{
		blobs:     blobs,
		processor: processor,
		logger:    slog.Default().With("component", "extract"),
	}
}

func (s *Service) Extract(ctx context.Context, storagePath, filename string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	markdown, isText := textFormats[ext]
	mimeType, isLayout := layoutFormats[ext]
	if !isText && !isLayout {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if isLayout && s.processor == nil {
		return nil, fmt.Errorf("%w: %s needs a Document AI processor", ErrUnsupportedFormat, ext)
	}

	data, err := blob.ReadAll(ctx, s.blobs, storagePath)
	if err != nil {
		return nil, err
	}

	if isText {
		pages := ParseText(string(data), markdown)
		return &Document{PageCount: len(pages), Pages: pages}, nil
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorruptDocument, filename)
	}
	doc, err := s.processor.Process(ctx, data, mimeType)
	if err != nil {
		return nil, err
	}
	pages := LayoutPages(doc)
	s.logger.Debug("document processed", "filename", filename, "pages", len(pages))
	return &Document{PageCount: len(pages), Pages: pages}, nil
}

// --- Plain text ---

// markdownSizes gives markdown headings font sizes that chunker.DetectHeading
// maps back to levels 1-3.
var markdownSizes = []float64{18, 15, 13}

// ParseText splits text into pages at form feeds and into blocks at blank
// lines. With markdown set, ATX headings become bold blocks sized by level.
// Pages with no text are kept so page numbers stay aligned.
func ParseText(text string, markdown bool) []chunker.Page {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	raw := strings.Split(text, "\f")
	pages := make([]chunker.Page, 0, len(raw))
	for i, body := range raw {
		pages = append(pages, chunker.Page{Number: i + 1, Blocks: parseBlocks(body, markdown)})
	}
	return pages
}

func parseBlocks(body string, markdown bool) []chunker.Block {
	var blocks []chunker.Block
	var para []string

	flush := func() {
		if len(para) == 0 {
			return
		}
		blocks = append(blocks, chunker.Block{Text: strings.Join(para, "\n")})
		para = nil
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if markdown {
			if level, title, ok := atxHeading(trimmed); ok {
				flush()
				blocks = append(blocks, chunker.Block{
					Text:     title,
					Bold:     true,
					FontSize: markdownSizes[min(level, len(markdownSizes))-1],
				})
				continue
			}
		}
		para = append(para, trimmed)
	}
	flush()
	return blocks
}

func atxHeading(line string) (level int, title string, ok bool) {
	level = len(line) - len(strings.TrimLeft(line, "#"))
	if level == 0 || level > 6 || len(line) == level || line[level] != ' ' {
		return 0, "", false
	}
	title = strings.TrimSpace(strings.TrimRight(line[level:], "# "))
	return level, title, title != ""
}
