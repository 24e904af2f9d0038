package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/loaders"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/internal/rag_service/rag/storages/vectorstore"

	"github.com/stretchr/testify/require"
)

const testDim = 4

// vectorFor is the deterministic embedding used by fakeEmbedder.
func vectorFor(text string) []float32 {
	v := make([]float32, testDim)
	for i, r := range text {
		v[i%testDim] += float32(r)
	}
	v[testDim-1] += float32(len(text))
	return v
}

// fakeEmbedder embeds with vectorFor. Texts containing a marker listed in
// short or wrongDim produce a result that fails the integrity checks.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	err      error
	short    string
	wrongDim string
}

func (f *fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		switch {
		case f.short != "" && strings.Contains(t, f.short):
			return out, nil
		case f.wrongDim != "" && strings.Contains(t, f.wrongDim):
			out = append(out, []float32{1})
		default:
			out = append(out, vectorFor(t))
		}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingIndex wraps a MemoryIndex and records every upsert and create call.
type recordingIndex struct {
	*vectorstore.MemoryIndex

	mu      sync.Mutex
	upserts [][]string
	creates int
	// failUpsert, when set, decides per call (0-based) whether the upsert fails.
	failUpsert func(call int) error
	matches    []schema.QueryMatch
}

func newRecordingIndex(opts ...vectorstore.MemoryOption) *recordingIndex {
	return &recordingIndex{MemoryIndex: vectorstore.NewMemoryIndex(opts...)}
}

func (r *recordingIndex) CreateIndex(ctx context.Context, desc schema.IndexDescriptor) error {
	r.mu.Lock()
	r.creates++
	r.mu.Unlock()
	return r.MemoryIndex.CreateIndex(ctx, desc)
}

func (r *recordingIndex) Upsert(ctx context.Context, name string, records []schema.VectorRecord) error {
	r.mu.Lock()
	call := len(r.upserts)
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	r.upserts = append(r.upserts, ids)
	fail := r.failUpsert
	r.mu.Unlock()

	if fail != nil {
		if err := fail(call); err != nil {
			return err
		}
	}
	return r.MemoryIndex.Upsert(ctx, name, records)
}

func (r *recordingIndex) Query(ctx context.Context, name string, vector []float32, opts schema.QueryOptions) ([]schema.QueryMatch, error) {
	if r.matches != nil {
		return r.matches, nil
	}
	return r.MemoryIndex.Query(ctx, name, vector, opts)
}

func (r *recordingIndex) UpsertSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	sizes := make([]int, len(r.upserts))
	for i, ids := range r.upserts {
		sizes[i] = len(ids)
	}
	return sizes
}

// lineChunker makes one chunk per non-empty line.
type lineChunker struct{}

func (lineChunker) Split(_ context.Context, doc *schema.Document) ([]schema.Chunk, error) {
	var chunks []schema.Chunk
	for _, line := range strings.Split(doc.Content, "\n") {
		if line == "" {
			continue
		}
		chunks = append(chunks, schema.Chunk{
			ParentSourcePath: doc.SourcePath,
			SequenceIndex:    len(chunks),
			Text:             line,
		})
	}
	return chunks, nil
}

// recordingGenerator records every request it receives.
type recordingGenerator struct {
	requests []interfaces.GenerateRequest
	answer   string
	err      error
}

func (g *recordingGenerator) Generate(_ context.Context, req interfaces.GenerateRequest) (string, error) {
	g.requests = append(g.requests, req)
	return g.answer, g.err
}

// stubLLM returns a fixed completion and remembers the prompt.
type stubLLM struct {
	prompt string
	out    string
}

func (s *stubLLM) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.out, nil
}

// writeCorpus creates files under a temp dir and returns the dir.
func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// lines returns n lines tagged with prefix.
func lines(prefix string, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%s line %d\n", prefix, i)
	}
	return sb.String()
}

// plainRegistry loads .txt files and files without extension as text.
func plainRegistry() *loaders.Registry {
	r := loaders.NewRegistry()
	r.Register(".txt", loaders.NewTxtLoader())
	r.Register("", loaders.NewTxtLoader())
	return r
}

var errUpstream = errors.New("503 service unavailable")
