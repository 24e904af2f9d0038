package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/loaders"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const DefaultBatchSize = 100

// IngestOptions configures an IngestionPipeline.
type IngestOptions struct {
	IndexName string
	// Dimension is the index dimension every embedding must have.
	Dimension int
	// BatchSize caps the number of records per upsert call.
	BatchSize int
	// Concurrency is the number of documents processed at once. With 1,
	// documents are processed strictly in file order.
	Concurrency int
	// Exclude holds glob patterns of files to skip.
	Exclude []string
}

// IngestionPipeline loads, splits, embeds and upserts a document corpus.
// It never retries: failed documents and batches are listed in the report so
// the caller can retry them.
type IngestionPipeline struct {
	chunker  interfaces.Chunker
	embedder interfaces.Embedder
	index    interfaces.VectorIndex
	registry *loaders.Registry
	opts     IngestOptions
	log      *logger.Logger
}

// NewIngestionPipeline creates a new IngestionPipeline.
func NewIngestionPipeline(
	chunker interfaces.Chunker,
	embedder interfaces.Embedder,
	index interfaces.VectorIndex,
	registry *loaders.Registry,
	opts IngestOptions,
	log *logger.Logger,
) *IngestionPipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &IngestionPipeline{
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		registry: registry,
		opts:     opts,
		log:      log,
	}
}

// run holds the mutable state of one Run.
type run struct {
	mu       sync.Mutex
	report   *schema.IngestReport
	embedded map[string]bool
	failed   map[string]bool
	log      *logger.Logger
}

func (r *run) fail(f schema.DocumentFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Failures = append(r.report.Failures, f)
	r.failed[f.SourcePath] = true
	r.log.With("source", f.SourcePath).WithError(f.Err).Error(fmt.Sprintf("Document failed at %s", f.Kind))
}

// Run ingests every supported file under dir. The returned error is reserved
// for conditions that stop the whole run: an unreadable directory or a
// cancelled context. Per-document and per-batch failures are in the report.
func (p *IngestionPipeline) Run(ctx context.Context, dir string) (*schema.IngestReport, error) {
	runID := uuid.NewString()
	log := p.log.With("run_id", runID).With("index", p.opts.IndexName)
	start := time.Now()

	scan, err := p.registry.Scan(ctx, dir, loaders.ScanOptions{Exclude: p.opts.Exclude})
	if err != nil {
		return nil, err
	}
	for _, s := range scan.Skipped {
		log.Debug(fmt.Sprintf("Skipping %s", s))
	}
	log.Info(fmt.Sprintf("Starting ingestion of %d files from %s", len(scan.Entries), dir))

	r := &run{
		report: &schema.IngestReport{
			RunID:      runID,
			IndexName:  p.opts.IndexName,
			Directory:  dir,
			Skipped:    scan.Skipped,
			BatchSizes: []int{},
			StartedAt:  start,
		},
		embedded: make(map[string]bool),
		failed:   make(map[string]bool),
		log:      log,
	}

	b := newBatcher(p.opts.BatchSize,
		func(ctx context.Context, records []schema.VectorRecord) error {
			return p.index.Upsert(ctx, p.opts.IndexName, records)
		},
		func(records []schema.VectorRecord, err error) { p.batchDone(r, records, err) },
	)

	g := new(errgroup.Group)
	g.SetLimit(p.opts.Concurrency)
	for _, entry := range scan.Entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Failures are recorded per document; returning them would not
			// stop the other documents anyway.
			p.ingestDocument(ctx, entry, b, r)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() == nil {
		b.flush(ctx)
	}

	rep := r.report
	for src := range r.embedded {
		if !r.failed[src] {
			rep.DocumentsIngested++
		}
	}
	rep.Duration = time.Since(start)
	if err := ctx.Err(); err != nil {
		log.WithError(err).Warn("Ingestion cancelled")
		return rep, err
	}

	log.With("documents", rep.DocumentsIngested).
		With("records", rep.RecordsUpserted).
		With("failures", len(rep.Failures)).
		Info(fmt.Sprintf("Finished ingestion in %s", rep.Duration.Round(time.Millisecond)))
	return rep, nil
}

// ingestDocument loads, splits and embeds one file, then hands its records to
// the batcher. A document whose embeddings fail any check contributes no
// records at all.
func (p *IngestionPipeline) ingestDocument(ctx context.Context, entry loaders.Entry, b *batcher, r *run) {
	src := entry.SourcePath
	pre := func(kind schema.FailureKind, err error) schema.DocumentFailure {
		return schema.DocumentFailure{SourcePath: src, FirstChunk: -1, LastChunk: -1, Kind: kind, Err: err}
	}

	doc, err := entry.Load(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.fail(pre(schema.FailureLoad, err))
		}
		return
	}
	r.mu.Lock()
	r.report.DocumentsLoaded++
	r.mu.Unlock()

	chunks, err := p.chunker.Split(ctx, doc)
	if err != nil {
		if ctx.Err() == nil {
			r.fail(pre(schema.FailureSplit, err))
		}
		return
	}
	if len(chunks) == 0 {
		r.log.With("source", src).Debug("Document has no text")
		return
	}
	last := len(chunks) - 1
	whole := func(kind schema.FailureKind, err error) schema.DocumentFailure {
		return schema.DocumentFailure{SourcePath: src, FirstChunk: 0, LastChunk: last, Kind: kind, Err: err}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedMany(ctx, texts)
	if err != nil {
		if ctx.Err() == nil {
			r.fail(whole(schema.FailureEmbed, err))
		}
		return
	}
	if err := p.checkEmbeddings(src, len(chunks), vectors); err != nil {
		r.fail(whole(schema.FailureIntegrity, err))
		return
	}

	records := make([]schema.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = schema.NewVectorRecord(c, vectors[i])
	}

	r.mu.Lock()
	r.report.Chunks += len(chunks)
	r.embedded[src] = true
	r.mu.Unlock()
	r.log.With("source", src).With("chunks", len(chunks)).Debug("Document embedded")

	b.add(ctx, records)
}

func (p *IngestionPipeline) checkEmbeddings(src string, want int, vectors [][]float32) error {
	if len(vectors) != want {
		return &schema.IntegrityError{
			SourcePath: src,
			Reason:     fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), want),
		}
	}
	if p.opts.Dimension <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != p.opts.Dimension {
			return &schema.IntegrityError{
				SourcePath: src,
				Reason:     fmt.Sprintf("vector %d has dimension %d, index has %d", i, len(v), p.opts.Dimension),
			}
		}
	}
	return nil
}

// batchDone runs under the batcher lock after every flush.
func (p *IngestionPipeline) batchDone(r *run, records []schema.VectorRecord, err error) {
	r.mu.Lock()
	r.report.BatchSizes = append(r.report.BatchSizes, len(records))
	if err == nil {
		r.report.RecordsUpserted += len(records)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	batchErr := &schema.BatchError{IndexName: p.opts.IndexName, Segments: schema.SegmentsOf(records), Err: err}
	if errors.Is(err, context.Canceled) {
		return
	}
	r.log.WithError(batchErr).Error(fmt.Sprintf("Upsert of %d records failed", len(records)))
	for _, seg := range batchErr.Segments {
		r.fail(schema.DocumentFailure{
			SourcePath: seg.SourcePath,
			FirstChunk: seg.FirstChunk,
			LastChunk:  seg.LastChunk,
			Kind:       schema.FailureUpsert,
			Err:        batchErr,
		})
	}
}
