package loaders

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"

	"github.com/ledongthuc/pdf"
)

// PdfLoader implements the Loader interface for reading PDF files.
type PdfLoader struct{}

// NewPdfLoader creates a new PdfLoader.
func NewPdfLoader() *PdfLoader {
	return &PdfLoader{}
}

// Load extracts the plain text of every page. Pages are separated by a blank
// line so the chunker treats a page break as a paragraph boundary.
func (l *PdfLoader) Load(ctx context.Context, path, sourcePath string) (*schema.Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	return &schema.Document{
		SourcePath: sourcePath,
		Content:    strings.Join(pages, "\n\n"),
		Metadata: map[string]string{
			schema.MetadataKeyFileName:  filepath.Base(path),
			schema.MetadataKeyPageCount: strconv.Itoa(numPages),
		},
	}, nil
}

// compile-time check to ensure PdfLoader implements the Loader interface
var _ interfaces.Loader = (*PdfLoader)(nil)
