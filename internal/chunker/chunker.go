// Package chunker splits extracted document text into section-tagged passages
// sized for retrieval.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTargetTokens is the chunk size the splitter packs toward.
const DefaultTargetTokens = 800

const (
	maxHeadingLevel   = 3
	minHeadingLen     = 3
	hierarchySep      = " > "
	paragraphSep      = "\n\n"
	overflowNumerator = 6 // a section fits in one chunk up to target*6/5
	overflowDivisor   = 5
)

var (
	reNumbered = regexp.MustCompile(`^(\d+\.)+\s`)
	reChapter  = regexp.MustCompile(`(?i)^(Chapter|Section|Part)\s+\d+`)
)

// Block is one layout block of a page as reported by the text extractor.
type Block struct {
	Text     string
	Bold     bool
	FontSize float64
}

// Page is a 1-based page of a document with its layout blocks in reading order.
type Page struct {
	Number int
	Blocks []Block
}

// Chunk is one emitted passage.
type Chunk struct {
	Text       string
	Hierarchy  string
	PageStart  int
	PageEnd    int
	Index      int
	TokenCount int
}

// Options configures ChunkPages.
type Options struct {
	TargetTokens int
}

type heading struct {
	level int
	text  string
}

// EstimateTokens approximates the token count of text as len/4.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// ChunkPages segments pages into passages. Headings open sections; body blocks
// accumulate under the current section and are flushed through the splitter
// at every heading and at the end of the document. Indices are sequential
// across the whole document. Identical input yields identical output.
func ChunkPages(pages []Page, opts Options) []Chunk {
	target := opts.TargetTokens
	if target <= 0 {
		target = DefaultTargetTokens
	}

	c := &builder{target: target}
	if len(pages) > 0 {
		c.sectionStart = pages[0].Number
	}

	for _, page := range pages {
		for _, block := range page.Blocks {
			text := strings.TrimSpace(Sanitize(block.Text))
			if text == "" {
				continue
			}

			lead, rest := splitLead(text)
			level, ok := DetectHeading(Block{Text: lead, Bold: block.Bold, FontSize: block.FontSize})
			if !ok {
				c.buffer = append(c.buffer, text)
				continue
			}

			c.flush(max(c.sectionStart, page.Number-1))
			c.push(heading{level: level, text: lead})
			c.sectionStart = page.Number
			if rest != "" {
				c.buffer = append(c.buffer, rest)
			}
		}
	}

	if len(pages) > 0 {
		c.flush(max(c.sectionStart, pages[len(pages)-1].Number))
	}
	return c.chunks
}

// DetectHeading classifies a block by its leading text. Numbered headings
// ("2.1. Title", "Chapter 3") take their level from the dot count of the first
// token; styled headings (bold, larger than 12pt, capitalized) take it from
// the font size.
func DetectHeading(b Block) (level int, ok bool) {
	text := strings.TrimSpace(b.Text)
	if utf8.RuneCountInString(text) < minHeadingLen {
		return 0, false
	}

	if reNumbered.MatchString(text) || reChapter.MatchString(text) {
		first := strings.Fields(text)[0]
		return min(strings.Count(first, ".")+1, maxHeadingLevel), true
	}

	r, _ := utf8.DecodeRuneInString(text)
	if b.Bold && b.FontSize > 12 && unicode.IsUpper(r) {
		switch {
		case b.FontSize > 16:
			return 1, true
		case b.FontSize > 14:
			return 2, true
		default:
			return 3, true
		}
	}
	return 0, false
}

// Sanitize removes NUL and other control characters (except newline and tab)
// and drops invalid UTF-8.
func Sanitize(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' {
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// SplitSection packs text into chunks of at most target tokens on paragraph
// boundaries. Text within target*1.2 stays whole. A single paragraph larger
// than target is never cut.
func SplitSection(text string, target int) []string {
	if EstimateTokens(text)*overflowDivisor <= target*overflowNumerator {
		return []string{text}
	}

	var out []string
	var current []string
	for _, para := range strings.Split(text, paragraphSep) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(current) > 0 {
			candidate := strings.Join(append(current[:len(current):len(current)], para), paragraphSep)
			if EstimateTokens(candidate) > target {
				out = append(out, strings.Join(current, paragraphSep))
				current = current[:0]
			}
		}
		current = append(current, para)
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, paragraphSep))
	}
	return out
}

type builder struct {
	target       int
	stack        []heading
	buffer       []string
	sectionStart int
	chunks       []Chunk
}

func (c *builder) push(h heading) {
	keep := c.stack[:0]
	for _, e := range c.stack {
		if e.level < h.level {
			keep = append(keep, e)
		}
	}
	c.stack = append(keep, h)
}

func (c *builder) hierarchy() string {
	parts := make([]string, len(c.stack))
	for i, h := range c.stack {
		parts[i] = h.text
	}
	return strings.Join(parts, hierarchySep)
}

func (c *builder) flush(pageEnd int) {
	if len(c.buffer) == 0 {
		return
	}
	section := strings.Join(c.buffer, paragraphSep)
	c.buffer = c.buffer[:0]

	hierarchy := c.hierarchy()
	for _, text := range SplitSection(section, c.target) {
		c.chunks = append(c.chunks, Chunk{
			Text:       text,
			Hierarchy:  hierarchy,
			PageStart:  c.sectionStart,
			PageEnd:    pageEnd,
			Index:      len(c.chunks),
			TokenCount: EstimateTokens(text),
		})
	}
}

// splitLead separates the first line of a block from the remainder.
func splitLead(text string) (lead, rest string) {
	lead, rest, _ = strings.Cut(text, "\n")
	return strings.TrimSpace(lead), strings.TrimSpace(rest)
}
