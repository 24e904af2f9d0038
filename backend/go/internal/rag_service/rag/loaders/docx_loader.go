package loaders

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"

	"baliance.com/gooxml/document"
	"github.com/unidoc/unioffice/v2/common/license"
	uodocument "github.com/unidoc/unioffice/v2/document"
)

var (
	licenseOnce sync.Once
	licenseErr  error
)

// DocxLoader 实现了用于读取 Word (.docx) 文件的 Loader 接口。
// 默认使用 gooxml 解析；配置了 unioffice metered key 时改用 unioffice。
type DocxLoader struct {
	licenseKey string
}

// NewDocxLoader 创建一个新的 DocxLoader。licenseKey 可以为空。
func NewDocxLoader(licenseKey string) *DocxLoader {
	return &DocxLoader{licenseKey: licenseKey}
}

// Load 读取一个 .docx 文件，按段落提取正文，段落之间以空行分隔。
func (l *DocxLoader) Load(ctx context.Context, path, sourcePath string) (*schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		content, title string
		err            error
	)
	if l.licenseKey != "" {
		content, title, err = l.readLicensed(path)
	} else {
		content, title, err = readDocx(path)
	}
	if err != nil {
		return nil, err
	}

	result := &schema.Document{
		SourcePath: sourcePath,
		Content:    content,
		Metadata: map[string]string{
			schema.MetadataKeyFileName: filepath.Base(path),
		},
	}
	if title != "" {
		result.Metadata[schema.MetadataKeyTitle] = title
	}
	return result, nil
}

func readDocx(path string) (string, string, error) {
	doc, err := document.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to open docx: %w", err)
	}

	var sb strings.Builder
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs() {
			sb.WriteString(r.Text())
		}
		sb.WriteString("\n\n")
	}
	return sb.String(), doc.CoreProperties.Title(), nil
}

func (l *DocxLoader) readLicensed(path string) (string, string, error) {
	licenseOnce.Do(func() {
		if err := license.SetMeteredKey(l.licenseKey); err != nil {
			licenseErr = fmt.Errorf("failed to set unioffice license: %w", err)
		}
	})
	if licenseErr != nil {
		return "", "", licenseErr
	}

	doc, err := uodocument.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs() {
			sb.WriteString(r.Text())
		}
		sb.WriteString("\n\n")
	}
	return sb.String(), doc.CoreProperties.Title(), nil
}

// 编译时检查，确保 DocxLoader 实现了 Loader 接口
var _ interfaces.Loader = (*DocxLoader)(nil)
