package interfaces

import (
	"context"

	"DocQA/backend/go/internal/rag_service/rag/schema"
)

// Loader converts one file into a Document. sourcePath is the
// corpus-relative identity the loader must put into Document.SourcePath.
type Loader interface {
	Load(ctx context.Context, path, sourcePath string) (*schema.Document, error)
}

// Chunker splits a document into ordered chunks. Identical input always
// yields the same chunks.
type Chunker interface {
	Split(ctx context.Context, doc *schema.Document) ([]schema.Chunk, error)
}

// Embedder maps text to fixed-dimension vectors. EmbedMany returns exactly
// one vector per input text, in input order.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is a store of named indexes holding (id, vector, metadata) triples.
type VectorIndex interface {
	ListIndexes(ctx context.Context) ([]string, error)
	CreateIndex(ctx context.Context, desc schema.IndexDescriptor) error
	// IndexReady reports whether a freshly created index accepts reads and writes.
	IndexReady(ctx context.Context, name string) (bool, error)
	// DeleteAllRecords removes every record but keeps the index itself.
	DeleteAllRecords(ctx context.Context, name string) error
	Upsert(ctx context.Context, name string, records []schema.VectorRecord) error
	Query(ctx context.Context, name string, vector []float32, opts schema.QueryOptions) ([]schema.QueryMatch, error)
	Stats(ctx context.Context, name string) (schema.IndexStats, error)
}

// Reranker reorders retrieved matches by their relevance to the query and
// may drop the least relevant ones.
type Reranker interface {
	Rerank(ctx context.Context, query string, matches []schema.QueryMatch) ([]schema.QueryMatch, error)
}

// LLM is a language model that completes a prompt.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerateRequest is the input of a Generator: all retrieved context and the question.
type GenerateRequest struct {
	ContextDocument string
	Question        string
}

// Generator produces an answer grounded in the supplied context.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
