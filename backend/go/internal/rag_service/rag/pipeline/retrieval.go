package pipeline

import (
	"context"
	"fmt"
	"strings"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/pkg/logger"
)

const DefaultTopK = 10

// RetrievalOptions configures a RetrievalPipeline.
type RetrievalOptions struct {
	IndexName string
	TopK      int
	// IncludeValues asks the store to return the matched vectors too.
	IncludeValues bool
	// Reranker, when set, reorders the matches before generation.
	Reranker interfaces.Reranker
}

// RetrievalPipeline answers a question from the records of one index.
// It keeps no state between calls.
type RetrievalPipeline struct {
	embedder  interfaces.Embedder
	index     interfaces.VectorIndex
	generator interfaces.Generator
	opts      RetrievalOptions
	log       *logger.Logger
}

// NewRetrievalPipeline creates a new RetrievalPipeline.
func NewRetrievalPipeline(
	embedder interfaces.Embedder,
	index interfaces.VectorIndex,
	generator interfaces.Generator,
	opts RetrievalOptions,
	log *logger.Logger,
) *RetrievalPipeline {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if log == nil {
		log = logger.Discard()
	}
	return &RetrievalPipeline{
		embedder:  embedder,
		index:     index,
		generator: generator,
		opts:      opts,
		log:       log,
	}
}

// Answer embeds the question, retrieves the nearest records and has the
// generator answer from their text. When the index returns no match the
// result has NoMatches set and the generator is not called. Provider errors
// are returned as they are.
func (p *RetrievalPipeline) Answer(ctx context.Context, question string) (*schema.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, schema.ErrEmptyQuestion
	}
	log := p.log.With("index", p.opts.IndexName)

	vector, err := p.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, err
	}

	matches, err := p.index.Query(ctx, p.opts.IndexName, vector, schema.QueryOptions{
		TopK:            p.opts.TopK,
		IncludeMetadata: true,
		IncludeValues:   p.opts.IncludeValues,
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		log.Info("No records matched the question")
		return &schema.Answer{NoMatches: true}, nil
	}
	log.Debug(fmt.Sprintf("Retrieved %d matches", len(matches)))

	if p.opts.Reranker != nil {
		matches, err = p.opts.Reranker.Rerank(ctx, question, matches)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			log.Info("Reranker dropped every match")
			return &schema.Answer{NoMatches: true}, nil
		}
	}

	text, err := p.generator.Generate(ctx, interfaces.GenerateRequest{
		ContextDocument: ContextDocument(matches),
		Question:        question,
	})
	if err != nil {
		return nil, err
	}
	return &schema.Answer{Text: text, Sources: matches}, nil
}

// ContextDocument joins the matched texts in the order the store returned them.
func ContextDocument(matches []schema.QueryMatch) string {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Metadata.Text
	}
	return strings.Join(texts, " ")
}
