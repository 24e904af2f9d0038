package splitters

import (
	"fmt"
	"strings"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
)

// New builds the chunker named by kind: "recursive" (default) or "token".
func New(kind string, chunkSize, chunkOverlap int) (interfaces.Chunker, error) {
	switch strings.ToLower(kind) {
	case "", "recursive", "character":
		return NewRecursiveSplitter(WithChunkSize(chunkSize), WithChunkOverlap(chunkOverlap))
	case "token":
		return NewTokenSplitter(chunkSize, chunkOverlap)
	default:
		return nil, &schema.ConfigError{Field: "chunker.type", Reason: fmt.Sprintf("unsupported chunker %q", kind)}
	}
}
