package loaders

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"

	"github.com/djherbis/times"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gobwas/glob"
)

// Registry maps lower-cased file extensions (with the dot) to loaders.
type Registry struct {
	loaders map[string]interfaces.Loader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]interfaces.Loader)}
}

// DefaultRegistry registers every built-in loader. docxLicenseKey is passed
// to the Word loader.
func DefaultRegistry(docxLicenseKey string) *Registry {
	r := NewRegistry()
	r.Register(".txt", NewTxtLoader())
	r.Register(".pdf", NewPdfLoader())
	r.Register(".docx", NewDocxLoader(docxLicenseKey))
	r.Register(".md", NewMarkdownLoader())
	r.Register(".markdown", NewMarkdownLoader())
	r.Register(".xlsx", NewXlsxLoader())
	r.Register(".html", NewHTMLLoader())
	r.Register(".htm", NewHTMLLoader())
	return r
}

// Register binds ext to loader, replacing any previous binding.
func (r *Registry) Register(ext string, loader interfaces.Loader) {
	r.loaders[normalizeExt(ext)] = loader
}

// Lookup returns the loader for path's extension.
func (r *Registry) Lookup(path string) (interfaces.Loader, bool) {
	l, ok := r.loaders[normalizeExt(filepath.Ext(path))]
	return l, ok
}

// Restrict returns a registry holding only the listed extensions.
// An empty list returns r unchanged.
func (r *Registry) Restrict(exts []string) (*Registry, error) {
	if len(exts) == 0 {
		return r, nil
	}
	out := NewRegistry()
	for _, ext := range exts {
		l, ok := r.loaders[normalizeExt(ext)]
		if !ok {
			return nil, &schema.ConfigError{Field: "corpus.extensions", Reason: fmt.Sprintf("no loader for %q", ext)}
		}
		out.loaders[normalizeExt(ext)] = l
	}
	return out, nil
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// textExtensions are checked by content sniffing: a binary file carrying one
// of these extensions is skipped instead of being embedded as garbage.
var textExtensions = map[string]bool{".txt": true, ".md": true, ".markdown": true}

// ScanOptions tunes a directory scan.
type ScanOptions struct {
	// Exclude holds glob patterns matched against the corpus-relative path
	// (forward slashes) and against the base name.
	Exclude []string
}

// Entry is a file selected for loading.
type Entry struct {
	Path       string
	SourcePath string
	loader     interfaces.Loader
}

// Load runs the entry's loader and adds file metadata.
func (e Entry) Load(ctx context.Context) (*schema.Document, error) {
	doc, err := e.loader.Load(ctx, e.Path, e.SourcePath)
	if err != nil {
		return nil, err
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string)
	}
	if ts, err := times.Stat(e.Path); err == nil {
		doc.Metadata[schema.MetadataKeyModTime] = ts.ModTime().UTC().Format(time.RFC3339)
		if ts.HasBirthTime() {
			doc.Metadata[schema.MetadataKeyBirthTime] = ts.BirthTime().UTC().Format(time.RFC3339)
		}
	}
	return doc, nil
}

// Scan is the result of walking a corpus directory.
type Scan struct {
	Entries []Entry
	// Skipped lists corpus-relative paths that were not selected, with a reason.
	Skipped []string
}

// Scan walks root in lexical order and selects every file with a registered
// extension. Unsupported, excluded and mis-typed files are skipped, not fatal.
func (r *Registry) Scan(ctx context.Context, root string, opts ScanOptions) (*Scan, error) {
	patterns := make([]glob.Glob, 0, len(opts.Exclude))
	for _, p := range opts.Exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, &schema.ConfigError{Field: "corpus.exclude", Reason: fmt.Sprintf("bad pattern %q: %v", p, err)}
		}
		patterns = append(patterns, g)
	}

	scan := &Scan{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if excluded(patterns, rel) {
			scan.Skipped = append(scan.Skipped, rel+" (excluded)")
			return nil
		}
		loader, ok := r.Lookup(path)
		if !ok {
			scan.Skipped = append(scan.Skipped, rel+" (unsupported extension)")
			return nil
		}
		if textExtensions[normalizeExt(filepath.Ext(path))] && !isText(path) {
			scan.Skipped = append(scan.Skipped, rel+" (not a text file)")
			return nil
		}
		scan.Entries = append(scan.Entries, Entry{Path: path, SourcePath: rel, loader: loader})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan corpus directory %s: %w", root, err)
	}
	return scan, nil
}

// LoadDirectory loads every supported file under root. Files that fail to load
// are returned as failures; the remaining documents are still returned.
func (r *Registry) LoadDirectory(ctx context.Context, root string, opts ScanOptions) ([]*schema.Document, *Scan, []schema.DocumentFailure, error) {
	scan, err := r.Scan(ctx, root, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	var (
		docs     []*schema.Document
		failures []schema.DocumentFailure
	)
	for _, e := range scan.Entries {
		doc, err := e.Load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, nil, ctx.Err()
			}
			failures = append(failures, schema.DocumentFailure{SourcePath: e.SourcePath, FirstChunk: -1, LastChunk: -1, Kind: schema.FailureLoad, Err: err})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, scan, failures, nil
}

func excluded(patterns []glob.Glob, rel string) bool {
	base := rel[strings.LastIndex(rel, "/")+1:]
	for _, g := range patterns {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

// isText sniffs the file header. Unreadable files are let through so the
// loader reports the real error.
func isText(path string) bool {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return true
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
