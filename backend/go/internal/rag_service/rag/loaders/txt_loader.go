package loaders

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
)

// TxtLoader implements the Loader interface for reading plain text files.
type TxtLoader struct{}

// NewTxtLoader creates a new TxtLoader.
func NewTxtLoader() *TxtLoader {
	return &TxtLoader{}
}

// Load reads a text file as a single Document. A UTF-8 byte order mark is dropped.
func (l *TxtLoader) Load(ctx context.Context, path, sourcePath string) (*schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return &schema.Document{
		SourcePath: sourcePath,
		Content:    strings.TrimPrefix(string(content), "\ufeff"),
		Metadata: map[string]string{
			schema.MetadataKeyFileName: filepath.Base(path),
		},
	}, nil
}

// compile-time check to ensure TxtLoader implements the Loader interface
var _ interfaces.Loader = (*TxtLoader)(nil)
