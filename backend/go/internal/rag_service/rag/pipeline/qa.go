package pipeline

import (
	"context"
	"fmt"
	"strings"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/pkg/logger"
)

// DefaultStuffTemplate places all retrieved context into a single prompt.
const DefaultStuffTemplate = "Use the following pieces of context to answer the question at the end. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n" +
	"{context}\n\nQuestion: {question}\nHelpful Answer:"

// StuffGenerator answers a question by stuffing the whole context document
// into one prompt for the LLM, without any summarisation step.
type StuffGenerator struct {
	llm      interfaces.LLM
	template string
	log      *logger.Logger
}

// NewStuffGenerator creates a StuffGenerator with DefaultStuffTemplate.
func NewStuffGenerator(llm interfaces.LLM, log *logger.Logger) *StuffGenerator {
	if log == nil {
		log = logger.Discard()
	}
	return &StuffGenerator{llm: llm, template: DefaultStuffTemplate, log: log}
}

// Prompt renders the template for req.
func (g *StuffGenerator) Prompt(req interfaces.GenerateRequest) string {
	return strings.NewReplacer("{context}", req.ContextDocument, "{question}", req.Question).Replace(g.template)
}

// Generate builds the prompt and calls the LLM to generate an answer.
func (g *StuffGenerator) Generate(ctx context.Context, req interfaces.GenerateRequest) (string, error) {
	prompt := g.Prompt(req)
	g.log.Debug(fmt.Sprintf("Sending prompt of %d bytes to LLM", len(prompt)))

	answer, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

var _ interfaces.Generator = (*StuffGenerator)(nil)
