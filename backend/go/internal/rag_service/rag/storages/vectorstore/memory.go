package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
)

// MemoryIndex is a thread-safe, in-process implementation of VectorIndex.
// Scoring is exhaustive, so it only suits small corpora, local runs and tests.
type MemoryIndex struct {
	mu        sync.RWMutex
	indexes   map[string]*memoryCollection
	readyPoll int
}

type memoryCollection struct {
	desc    schema.IndexDescriptor
	records map[string]schema.VectorRecord
	// order keeps first-insertion order so equal scores come back stably.
	order     []string
	pollsLeft int
}

// MemoryOption configures a MemoryIndex.
type MemoryOption func(*MemoryIndex)

// WithProvisioningPolls makes a new index report not-ready for the first n
// IndexReady calls, like a remote store that provisions asynchronously.
func WithProvisioningPolls(n int) MemoryOption {
	return func(m *MemoryIndex) { m.readyPoll = n }
}

// NewMemoryIndex creates an empty store.
func NewMemoryIndex(opts ...MemoryOption) *MemoryIndex {
	m := &MemoryIndex{indexes: make(map[string]*memoryCollection)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryIndex) ListIndexes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.indexes))
	for name := range m.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryIndex) CreateIndex(ctx context.Context, desc schema.IndexDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if desc.Dimension <= 0 {
		return fmt.Errorf("index %s: dimension must be positive", desc.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[desc.Name]; ok {
		return fmt.Errorf("index %s already exists", desc.Name)
	}
	m.indexes[desc.Name] = &memoryCollection{
		desc:      desc,
		records:   make(map[string]schema.VectorRecord),
		pollsLeft: m.readyPoll,
	}
	return nil
}

func (m *MemoryIndex) IndexReady(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(name)
	if err != nil {
		return false, err
	}
	if c.pollsLeft > 0 {
		c.pollsLeft--
		return false, nil
	}
	return true, nil
}

func (m *MemoryIndex) DeleteAllRecords(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(name)
	if err != nil {
		return err
	}
	c.records = make(map[string]schema.VectorRecord)
	c.order = nil
	return nil
}

// Upsert validates the whole batch before writing, so a rejected batch leaves
// the index untouched.
func (m *MemoryIndex) Upsert(ctx context.Context, name string, records []schema.VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(name)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("index %s: record without id", name)
		}
		if len(r.Vector) != c.desc.Dimension {
			return fmt.Errorf("index %s: record %s has dimension %d, want %d", name, r.ID, len(r.Vector), c.desc.Dimension)
		}
	}
	for _, r := range records {
		if _, ok := c.records[r.ID]; !ok {
			c.order = append(c.order, r.ID)
		}
		r.Vector = append([]float32(nil), r.Vector...)
		c.records[r.ID] = r
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, name string, vector []float32, opts schema.QueryOptions) ([]schema.QueryMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(name)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.desc.Dimension {
		return nil, fmt.Errorf("index %s: query has dimension %d, want %d", name, len(vector), c.desc.Dimension)
	}
	if opts.TopK <= 0 {
		return nil, nil
	}

	matches := make([]schema.QueryMatch, 0, len(c.order))
	for _, id := range c.order {
		r := c.records[id]
		match := schema.QueryMatch{ID: r.ID, Score: score(c.desc.Metric, vector, r.Vector)}
		if opts.IncludeMetadata {
			match.Metadata = r.Metadata
		}
		if opts.IncludeValues {
			match.Values = append([]float32(nil), r.Vector...)
		}
		matches = append(matches, match)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

func (m *MemoryIndex) Stats(ctx context.Context, name string) (schema.IndexStats, error) {
	if err := ctx.Err(); err != nil {
		return schema.IndexStats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(name)
	if err != nil {
		return schema.IndexStats{}, err
	}
	return schema.IndexStats{
		Name:        name,
		RecordCount: int64(len(c.records)),
		Dimension:   c.desc.Dimension,
		Metric:      c.desc.Metric,
		Ready:       c.pollsLeft == 0,
		Extra:       map[string]string{"backend": "memory"},
	}, nil
}

// Record returns a stored record by id.
func (m *MemoryIndex) Record(name, id string) (schema.VectorRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.indexes[name]
	if !ok {
		return schema.VectorRecord{}, false
	}
	r, ok := c.records[id]
	return r, ok
}

// get must be called with m.mu held.
func (m *MemoryIndex) get(name string) (*memoryCollection, error) {
	c, ok := m.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrIndexNotFound, name)
	}
	return c, nil
}

// score returns a similarity where larger is closer for every metric.
func score(metric schema.Metric, a, b []float32) float32 {
	switch metric {
	case schema.MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(1 / (1 + math.Sqrt(sum)))
	case schema.MetricDotProduct:
		return float32(dot(a, b))
	default:
		na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 0
		}
		return float32(dot(a, b) / (na * nb))
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// compile-time check to ensure MemoryIndex implements the VectorIndex interface
var _ interfaces.VectorIndex = (*MemoryIndex)(nil)
