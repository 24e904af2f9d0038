package loaders

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
)

// MarkdownLoader implements the Loader interface for reading Markdown (.md) files.
type MarkdownLoader struct{}

// NewMarkdownLoader creates a new MarkdownLoader.
func NewMarkdownLoader() *MarkdownLoader {
	return &MarkdownLoader{}
}

// imageRegex matches Markdown image syntax, e.g. ![alt text](path/to/image.jpg).
var imageRegex = regexp.MustCompile(`!\[(.*?)\]\((.*?)\)`)

// titleRegex matches the first level-one ATX heading.
var titleRegex = regexp.MustCompile(`(?m)^#\s+(.+?)\s*#*\s*$`)

// Load reads a Markdown file. Images are replaced by their alt text and the
// first "# " heading becomes the document title.
func (l *MarkdownLoader) Load(ctx context.Context, path, sourcePath string) (*schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := imageRegex.ReplaceAllString(string(content), "$1")

	doc := &schema.Document{
		SourcePath: sourcePath,
		Content:    text,
		Metadata: map[string]string{
			schema.MetadataKeyFileName: filepath.Base(path),
		},
	}
	if m := titleRegex.FindStringSubmatch(text); len(m) == 2 {
		doc.Metadata[schema.MetadataKeyTitle] = strings.TrimSpace(m[1])
	}
	return doc, nil
}

// compile-time check to ensure MarkdownLoader implements the Loader interface
var _ interfaces.Loader = (*MarkdownLoader)(nil)
