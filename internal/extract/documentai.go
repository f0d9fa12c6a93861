package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/harishm17/study-buddy/internal/blob"
	"github.com/harishm17/study-buddy/internal/chunker"
	"github.com/harishm17/study-buddy/internal/config"
)

// Processor runs layout analysis on raw document bytes.
type Processor interface {
	Process(ctx context.Context, content []byte, mimeType string) (*documentaipb.Document, error)
}

// DocumentAI is a Processor backed by one Document AI processor.
type DocumentAI struct {
	client *documentai.DocumentProcessorClient
	name   string
}

var _ Processor = (*DocumentAI)(nil)

// NewDocumentAI connects to the regional Document AI endpoint.
func NewDocumentAI(ctx context.Context, cfg config.StorageConfig) (*DocumentAI, error) {
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.DocumentAILocation)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, blob.ClientOptions(cfg)...)

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	return &DocumentAI{
		client: client,
		name:   fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.DocumentAIProjectID, cfg.DocumentAILocation, cfg.DocumentAIProcessor),
	}, nil
}

func (d *DocumentAI) Process(ctx context.Context, content []byte, mimeType string) (*documentaipb.Document, error) {
	resp, err := d.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: d.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: content, MimeType: mimeType},
		},
	})
	if err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
		}
		return nil, fmt.Errorf("documentai process: %w", err)
	}
	if resp.GetDocument() == nil {
		return nil, fmt.Errorf("%w: empty documentai response", ErrCorruptDocument)
	}
	return resp.GetDocument(), nil
}

func (d *DocumentAI) Close() error {
	return d.client.Close()
}

// --- Layout conversion ---

// LayoutPages converts a processed document into pages of paragraph blocks.
// Each block takes its style from the first token inside it. A page without
// paragraphs falls back to its full layout text. A document with text but no
// pages is parsed as plain text.
func LayoutPages(doc *documentaipb.Document) []chunker.Page {
	if len(doc.GetPages()) == 0 {
		return ParseText(doc.GetText(), false)
	}

	pages := make([]chunker.Page, 0, len(doc.GetPages()))
	for i, p := range doc.GetPages() {
		number := int(p.GetPageNumber())
		if number <= 0 {
			number = i + 1
		}
		page := chunker.Page{Number: number}

		tokens := tokenStarts(p.GetTokens())
		for _, para := range p.GetParagraphs() {
			anchor := para.GetLayout().GetTextAnchor()
			text := strings.TrimSpace(anchorText(doc.GetText(), anchor))
			if text == "" {
				continue
			}
			block := chunker.Block{Text: text}
			if style := tokens.styleAt(anchor); style != nil {
				block.Bold = style.GetBold()
				block.FontSize = float64(style.GetFontSize())
			}
			page.Blocks = append(page.Blocks, block)
		}

		if len(page.Blocks) == 0 {
			if text := strings.TrimSpace(anchorText(doc.GetText(), p.GetLayout().GetTextAnchor())); text != "" {
				page.Blocks = append(page.Blocks, chunker.Block{Text: text})
			}
		}
		pages = append(pages, page)
	}
	return pages
}

func anchorText(full string, anchor *documentaipb.Document_TextAnchor) string {
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start := max(int(seg.GetStartIndex()), 0)
		end := min(int(seg.GetEndIndex()), len(full))
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

type styledToken struct {
	start int64
	style *documentaipb.Document_Page_Token_StyleInfo
}

type tokenIndex []styledToken

func tokenStarts(tokens []*documentaipb.Document_Page_Token) tokenIndex {
	idx := make(tokenIndex, 0, len(tokens))
	for _, t := range tokens {
		segs := t.GetLayout().GetTextAnchor().GetTextSegments()
		if len(segs) == 0 || t.GetStyleInfo() == nil {
			continue
		}
		idx = append(idx, styledToken{start: segs[0].GetStartIndex(), style: t.GetStyleInfo()})
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a].start < idx[b].start })
	return idx
}

// styleAt returns the style of the first token starting inside anchor.
func (idx tokenIndex) styleAt(anchor *documentaipb.Document_TextAnchor) *documentaipb.Document_Page_Token_StyleInfo {
	segs := anchor.GetTextSegments()
	if len(segs) == 0 {
		return nil
	}
	start, end := segs[0].GetStartIndex(), segs[len(segs)-1].GetEndIndex()
	i := sort.Search(len(idx), func(i int) bool { return idx[i].start >= start })
	if i < len(idx) && idx[i].start < end {
		return idx[i].style
	}
	return nil
}
