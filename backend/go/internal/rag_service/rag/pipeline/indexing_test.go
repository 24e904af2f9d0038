package pipeline

import (
	"context"
	"fmt"
	"testing"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/internal/rag_service/rag/splitters"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIndex = "docs"

func newIngestion(t *testing.T, idx *recordingIndex, emb *fakeEmbedder, chunker interfaces.Chunker, opts IngestOptions) *IngestionPipeline {
	t.Helper()
	require.NoError(t, idx.MemoryIndex.CreateIndex(context.Background(), schema.IndexDescriptor{
		Name: testIndex, Dimension: testDim, Metric: schema.MetricCosine,
	}))
	opts.IndexName = testIndex
	opts.Dimension = testDim
	return NewIngestionPipeline(chunker, emb, idx, plainRegistry(), opts, nil)
}

func TestIngestSingleSmallDocument(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"docA": "A B C D E"})
	chunker, err := splitters.NewRecursiveSplitter(splitters.WithChunkSize(100000), splitters.WithChunkOverlap(0))
	require.NoError(t, err)
	idx := newRecordingIndex()
	emb := &fakeEmbedder{}

	report, err := newIngestion(t, idx, emb, chunker, IngestOptions{}).Run(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, idx.upserts, 1)
	assert.Equal(t, []string{"docA_0"}, idx.upserts[0])
	assert.Equal(t, 1, emb.Calls())
	assert.Equal(t, 1, report.DocumentsIngested)
	assert.Equal(t, 1, report.RecordsUpserted)
	assert.False(t, report.Failed())
	assert.NotEmpty(t, report.RunID)

	rec, ok := idx.Record(testIndex, "docA_0")
	require.True(t, ok)
	assert.Equal(t, "A B C D E", rec.Metadata.Text)
	assert.Equal(t, "docA", rec.Metadata.SourcePath)
}

func TestIngestBatchesOfAtMostBatchSize(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"big.txt": lines("big", 250)})
	idx := newRecordingIndex()

	report, err := newIngestion(t, idx, &fakeEmbedder{}, lineChunker{}, IngestOptions{BatchSize: 100}).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []int{100, 100, 50}, idx.UpsertSizes())
	assert.Equal(t, []int{100, 100, 50}, report.BatchSizes)
	assert.Equal(t, 250, report.Chunks)
	assert.Equal(t, 250, report.RecordsUpserted)
}

func TestIngestBatchSpansDocuments(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": lines("a", 70),
		"b.txt": lines("b", 70),
		"c.txt": lines("c", 61),
	})
	idx := newRecordingIndex()

	_, err := newIngestion(t, idx, &fakeEmbedder{}, lineChunker{}, IngestOptions{BatchSize: 100}).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []int{100, 100, 1}, idx.UpsertSizes())
	// Records of each document stay in chunk order.
	assert.Equal(t, "a.txt_69", idx.upserts[0][69])
	assert.Equal(t, "b.txt_0", idx.upserts[0][70])
	assert.Equal(t, "c.txt_60", idx.upserts[2][0])
}

func TestIngestIsIdempotent(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": lines("a", 12), "b.txt": lines("b", 5)})
	idx := newRecordingIndex()
	p := newIngestion(t, idx, &fakeEmbedder{}, lineChunker{}, IngestOptions{BatchSize: 7})
	ctx := context.Background()

	_, err := p.Run(ctx, dir)
	require.NoError(t, err)
	first, err := idx.Stats(ctx, testIndex)
	require.NoError(t, err)
	before, _ := idx.Record(testIndex, "a.txt_3")

	_, err = p.Run(ctx, dir)
	require.NoError(t, err)
	second, err := idx.Stats(ctx, testIndex)
	require.NoError(t, err)
	after, _ := idx.Record(testIndex, "a.txt_3")

	assert.Equal(t, int64(17), first.RecordCount)
	assert.Equal(t, first.RecordCount, second.RecordCount)
	assert.Equal(t, before.Vector, after.Vector)
}

func TestIngestPreservesVectorOrder(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": lines("alpha", 9)})
	idx := newRecordingIndex()

	_, err := newIngestion(t, idx, &fakeEmbedder{}, lineChunker{}, IngestOptions{}).Run(context.Background(), dir)
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		rec, ok := idx.Record(testIndex, schema.RecordID("a.txt", i))
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("alpha line %d", i), rec.Metadata.Text)
		assert.Equal(t, vectorFor(rec.Metadata.Text), rec.Vector)
		assert.Equal(t, i, rec.Metadata.SequenceIndex)
	}
}

func TestIngestIntegrityFailureIsolatesDocument(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"good.txt":  lines("good", 3),
		"short.txt": "fine\nSHORT here\nfine again\n",
		"wide.txt":  "ok\nWIDE vector\n",
	})
	idx := newRecordingIndex()
	emb := &fakeEmbedder{short: "SHORT", wrongDim: "WIDE"}

	report, err := newIngestion(t, idx, emb, lineChunker{}, IngestOptions{}).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, report.DocumentsLoaded)
	assert.Equal(t, 1, report.DocumentsIngested)
	assert.Equal(t, 3, report.RecordsUpserted)
	require.Len(t, report.Failures, 2)
	for _, f := range report.Failures {
		assert.Equal(t, schema.FailureIntegrity, f.Kind)
		assert.ErrorIs(t, f.Err, schema.ErrIntegrity)
		assert.Equal(t, 0, f.FirstChunk)
	}
	_, ok := idx.Record(testIndex, "short.txt_0")
	assert.False(t, ok, "no record of a failed document is written")
}

func TestIngestEmbedFailureIsReportedPerDocument(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": lines("a", 4)})
	idx := newRecordingIndex()
	emb := &fakeEmbedder{err: &schema.ProviderError{Op: "embed", Entity: "m", Err: errUpstream}}

	report, err := newIngestion(t, idx, emb, lineChunker{}, IngestOptions{}).Run(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	f := report.Failures[0]
	assert.Equal(t, schema.FailureEmbed, f.Kind)
	assert.Equal(t, "a.txt", f.SourcePath)
	assert.Equal(t, 0, f.FirstChunk)
	assert.Equal(t, 3, f.LastChunk)
	assert.ErrorIs(t, f.Err, schema.ErrProviderUnavailable)
	assert.Empty(t, idx.upserts)
}

func TestIngestUpsertFailureReportsChunkRanges(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.txt": lines("a", 70),
		"b.txt": lines("b", 70),
	})
	idx := newRecordingIndex()
	idx.failUpsert = func(call int) error {
		if call == 0 {
			return errUpstream
		}
		return nil
	}

	report, err := newIngestion(t, idx, &fakeEmbedder{}, lineChunker{}, IngestOptions{BatchSize: 100}).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []int{100, 40}, report.BatchSizes)
	assert.Equal(t, 40, report.RecordsUpserted)
	assert.Zero(t, report.DocumentsIngested)
	require.Len(t, report.Failures, 2)

	assert.Equal(t, schema.DocumentFailure{SourcePath: "a.txt", FirstChunk: 0, LastChunk: 69, Kind: schema.FailureUpsert, Err: report.Failures[0].Err}, report.Failures[0])
	assert.Equal(t, "b.txt", report.Failures[1].SourcePath)
	assert.Equal(t, 0, report.Failures[1].FirstChunk)
	assert.Equal(t, 29, report.Failures[1].LastChunk)

	var be *schema.BatchError
	require.ErrorAs(t, report.Failures[0].Err, &be)
	assert.Equal(t, testIndex, be.IndexName)
	assert.ErrorIs(t, be, errUpstream)
	assert.Contains(t, be.Error(), "a.txt[0-69]")
}

func TestIngestConcurrentDocuments(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 10; i++ {
		files[fmt.Sprintf("doc%02d.txt", i)] = lines(fmt.Sprintf("doc%02d", i), 30)
	}
	dir := writeCorpus(t, files)
	idx := newRecordingIndex()

	report, err := newIngestion(t, idx, &fakeEmbedder{}, lineChunker{}, IngestOptions{BatchSize: 25, Concurrency: 4}).Run(context.Background(), dir)
	require.NoError(t, err)

	total := 0
	for _, size := range idx.UpsertSizes() {
		assert.LessOrEqual(t, size, 25)
		total += size
	}
	assert.Equal(t, 300, total)
	assert.Equal(t, 10, report.DocumentsIngested)

	stats, err := idx.Stats(context.Background(), testIndex)
	require.NoError(t, err)
	assert.Equal(t, int64(300), stats.RecordCount)
	for i := 0; i < 10; i++ {
		rec, ok := idx.Record(testIndex, schema.RecordID(fmt.Sprintf("doc%02d.txt", i), 17))
		require.True(t, ok)
		assert.Equal(t, vectorFor(rec.Metadata.Text), rec.Vector)
	}
}

func TestIngestSkipsUnsupportedFiles(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": "one\n", "image.png": "\x89PNG"})
	idx := newRecordingIndex()

	report, err := newIngestion(t, idx, &fakeEmbedder{}, lineChunker{}, IngestOptions{}).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocumentsIngested)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0], "image.png")
}

func TestIngestMissingDirectoryIsFatal(t *testing.T) {
	idx := newRecordingIndex()
	_, err := newIngestion(t, idx, &fakeEmbedder{}, lineChunker{}, IngestOptions{}).Run(context.Background(), "/does/not/exist")
	assert.Error(t, err)
}

func TestIngestCancelled(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"a.txt": lines("a", 3)})
	idx := newRecordingIndex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newIngestion(t, idx, &fakeEmbedder{}, lineChunker{}, IngestOptions{}).Run(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, idx.upserts)
}
