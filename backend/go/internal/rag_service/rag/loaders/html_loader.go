package loaders

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// HTMLLoader reads saved web pages and converts them to Markdown, which keeps
// headings and paragraphs as blank-line separated blocks for the chunker.
type HTMLLoader struct{}

func NewHTMLLoader() *HTMLLoader {
	return &HTMLLoader{}
}

func (l *HTMLLoader) Load(ctx context.Context, path, sourcePath string) (*schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	markdown, err := htmltomarkdown.ConvertString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to convert html: %w", err)
	}

	return &schema.Document{
		SourcePath: sourcePath,
		Content:    markdown,
		Metadata: map[string]string{
			schema.MetadataKeyFileName: filepath.Base(path),
		},
	}, nil
}

var _ interfaces.Loader = (*HTMLLoader)(nil)
