package splitters

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators split on paragraphs, then lines, then words, then runes.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveSplitter splits text on the coarsest separator that occurs in it and
// recurses into pieces that are still too long with the finer separators.
// Adjacent small pieces are merged back up to the chunk size, keeping up to
// chunkOverlap runes of the previous chunk. Sizes are counted in runes.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// Option configures a RecursiveSplitter.
type Option func(*RecursiveSplitter)

// WithChunkSize sets the maximum chunk length in runes.
func WithChunkSize(n int) Option {
	return func(s *RecursiveSplitter) { s.chunkSize = n }
}

// WithChunkOverlap sets how many runes consecutive chunks may share.
func WithChunkOverlap(n int) Option {
	return func(s *RecursiveSplitter) { s.chunkOverlap = n }
}

// WithSeparators replaces the separator list. A final "" is appended when
// missing so a hard cut is always available.
func WithSeparators(seps ...string) Option {
	return func(s *RecursiveSplitter) { s.separators = append([]string(nil), seps...) }
}

// NewRecursiveSplitter validates the options and returns a splitter.
func NewRecursiveSplitter(opts ...Option) (*RecursiveSplitter, error) {
	s := &RecursiveSplitter{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		separators:   DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := validateSizes(s.chunkSize, s.chunkOverlap); err != nil {
		return nil, err
	}
	if n := len(s.separators); n == 0 || s.separators[n-1] != "" {
		s.separators = append(s.separators, "")
	}
	return s, nil
}

func validateSizes(size, overlap int) error {
	if size <= 0 {
		return &schema.ConfigError{Field: "chunker.chunk_size", Reason: fmt.Sprintf("must be positive, got %d", size)}
	}
	if overlap < 0 || overlap >= size {
		return &schema.ConfigError{Field: "chunker.chunk_overlap", Reason: fmt.Sprintf("must be in [0, %d), got %d", size, overlap)}
	}
	return nil
}

// ChunkSize returns the configured maximum chunk length.
func (s *RecursiveSplitter) ChunkSize() int { return s.chunkSize }

// Split chunks a document. Chunks are numbered from 0 in order of appearance.
func (s *RecursiveSplitter) Split(ctx context.Context, doc *schema.Document) ([]schema.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return toChunks(doc, s.SplitText(doc.Content)), nil
}

// SplitText is the pure core of Split.
func (s *RecursiveSplitter) SplitText(text string) []schema.ChunkText {
	return locate(text, s.split(text, s.separators))
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := ""
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var chunks, fitting []string
	for _, piece := range splitOn(text, separator) {
		if runeLen(piece) < s.chunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			chunks = append(chunks, s.merge(fitting, separator)...)
			fitting = nil
		}
		if len(finer) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, finer)...)
		}
	}
	if len(fitting) > 0 {
		chunks = append(chunks, s.merge(fitting, separator)...)
	}
	return chunks
}

// merge joins consecutive pieces while the result stays within chunkSize.
// total always equals the rune length of strings.Join(current, separator).
func (s *RecursiveSplitter) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)
	joined := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var out, current []string
	total := 0
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n+joined(len(current)) > s.chunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
				out = append(out, doc)
			}
			for len(current) > 0 && (total > s.chunkOverlap || total+n+joined(len(current)) > s.chunkSize) {
				total -= runeLen(current[0]) + joined(len(current)-1)
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n + joined(len(current)-1)
	}
	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		out = append(out, doc)
	}
	return out
}

func splitOn(text, separator string) []string {
	if separator != "" {
		return strings.Split(text, separator)
	}
	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// locate trims the pieces, drops empty ones and finds each piece's position in
// text. Pieces are searched from just after the previous piece's start so that
// overlapping chunks resolve to increasing offsets.
func locate(text string, pieces []string) []schema.ChunkText {
	out := make([]schema.ChunkText, 0, len(pieces))
	lines := lineCounter{text: text, line: 1}
	from := 0
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		loc := schema.Location{Start: -1, End: -1}
		if i := strings.Index(text[from:], p); i >= 0 {
			start := from + i
			loc = span(text, start, p, lines.at(start))
			from = start + 1
		} else if i := strings.Index(text, p); i >= 0 {
			loc = span(text, i, p, 1+strings.Count(text[:i], "\n"))
		}
		out = append(out, schema.ChunkText{Text: p, Location: loc})
	}
	return out
}

func span(text string, start int, piece string, fromLine int) schema.Location {
	return schema.Location{
		Start:    start,
		End:      start + len(piece),
		FromLine: fromLine,
		ToLine:   fromLine + strings.Count(piece, "\n"),
	}
}

// lineCounter maps non-decreasing byte offsets to 1-based line numbers.
type lineCounter struct {
	text string
	pos  int
	line int
}

func (c *lineCounter) at(offset int) int {
	if offset > c.pos {
		c.line += strings.Count(c.text[c.pos:offset], "\n")
		c.pos = offset
	}
	return c.line
}

func toChunks(doc *schema.Document, texts []schema.ChunkText) []schema.Chunk {
	chunks := make([]schema.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = schema.Chunk{
			ParentSourcePath: doc.SourcePath,
			SequenceIndex:    i,
			Text:             t.Text,
			Location:         t.Location,
			Extra:            copyMetadata(doc.Metadata),
		}
	}
	return chunks
}

func copyMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// compile-time check to ensure RecursiveSplitter implements the Chunker interface
var _ interfaces.Chunker = (*RecursiveSplitter)(nil)
