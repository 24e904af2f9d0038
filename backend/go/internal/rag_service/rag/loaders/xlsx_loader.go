package loaders

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"

	"github.com/xuri/excelize/v2"
)

// XlsxLoader implements the Loader interface for reading Excel (.xlsx) files.
type XlsxLoader struct{}

// NewXlsxLoader creates a new XlsxLoader.
func NewXlsxLoader() *XlsxLoader {
	return &XlsxLoader{}
}

// Load converts each sheet to a Markdown table under a "## <sheet>" heading
// and returns the whole workbook as one Document.
func (l *XlsxLoader) Load(ctx context.Context, path, sourcePath string) (*schema.Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var mdBuilder strings.Builder
	sheetList := f.GetSheetList()
	for _, sheetName := range sheetList {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheetName, err)
		}
		if len(rows) == 0 {
			continue
		}

		mdBuilder.WriteString("## " + sheetName + "\n\n")
		width := 0
		for _, row := range rows {
			if len(row) > width {
				width = len(row)
			}
		}
		writeRow(&mdBuilder, rows[0], width)
		mdBuilder.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
		for _, row := range rows[1:] {
			writeRow(&mdBuilder, row, width)
		}
		mdBuilder.WriteString("\n")
	}

	return &schema.Document{
		SourcePath: sourcePath,
		Content:    mdBuilder.String(),
		Metadata: map[string]string{
			schema.MetadataKeyFileName:   filepath.Base(path),
			schema.MetadataKeySheetNames: strings.Join(sheetList, ","),
		},
	}, nil
}

// writeRow pads short rows so every table line has width cells.
func writeRow(sb *strings.Builder, row []string, width int) {
	cells := make([]string, width)
	copy(cells, row)
	sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
}

// compile-time check to ensure XlsxLoader implements the Loader interface
var _ interfaces.Loader = (*XlsxLoader)(nil)
