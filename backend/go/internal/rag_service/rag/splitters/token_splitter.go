package splitters

import (
	"context"
	"fmt"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"

	"github.com/pkoukk/tiktoken-go"
)

// TokenSplitter cuts documents into windows of ChunkSize tokens that overlap
// by ChunkOverlap tokens.
type TokenSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	tokenizer    *tiktoken.Tiktoken
}

// NewTokenSplitter creates a TokenSplitter using the cl100k_base encoding
// (gpt-4, gpt-3.5-turbo, text-embedding-ada-002 and text-embedding-3-*).
func NewTokenSplitter(chunkSize, chunkOverlap int) (*TokenSplitter, error) {
	if err := validateSizes(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return &TokenSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		tokenizer:    tke,
	}, nil
}

// Split chunks a document by token count.
func (s *TokenSplitter) Split(ctx context.Context, doc *schema.Document) ([]schema.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return toChunks(doc, s.SplitText(doc.Content)), nil
}

// SplitText returns the token windows of text in order.
func (s *TokenSplitter) SplitText(text string) []schema.ChunkText {
	tokens := s.tokenizer.Encode(text, nil, nil)
	step := s.ChunkSize - s.ChunkOverlap

	var pieces []string
	for start := 0; start < len(tokens); start += step {
		end := start + s.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		pieces = append(pieces, s.tokenizer.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return locate(text, pieces)
}

// compile-time check to ensure TokenSplitter implements the Chunker interface
var _ interfaces.Chunker = (*TokenSplitter)(nil)
