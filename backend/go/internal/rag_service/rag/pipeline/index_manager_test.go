package pipeline

import (
	"context"
	"testing"
	"time"

	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/internal/rag_service/rag/storages/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDesc = schema.IndexDescriptor{Name: testIndex, Dimension: testDim, Metric: schema.MetricCosine}

func TestEnsureCreatedReturnsFalseOnlyOnce(t *testing.T) {
	ctx := context.Background()
	idx := newRecordingIndex(vectorstore.WithProvisioningPolls(2))
	m := NewIndexManager(idx, WithReadyPolling(time.Millisecond, 5))

	existed, err := m.EnsureCreated(ctx, testDesc)
	require.NoError(t, err)
	assert.False(t, existed)

	for i := 0; i < 3; i++ {
		existed, err = m.EnsureCreated(ctx, testDesc)
		require.NoError(t, err)
		assert.True(t, existed)
	}
	assert.Equal(t, 1, idx.creates)

	ok, err := m.Exists(ctx, testIndex)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.Exists(ctx, testIndex+"-other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureCreatedReadinessTimeout(t *testing.T) {
	idx := newRecordingIndex(vectorstore.WithProvisioningPolls(10))
	m := NewIndexManager(idx, WithReadyPolling(time.Millisecond, 3))

	_, err := m.EnsureCreated(context.Background(), testDesc)
	require.ErrorIs(t, err, schema.ErrReadinessTimeout)
	assert.ErrorIs(t, err, schema.ErrProviderUnavailable)

	var pe *schema.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "wait_ready", pe.Op)
	assert.Equal(t, testIndex, pe.Entity)
}

func TestEnsureCreatedHonoursContext(t *testing.T) {
	idx := newRecordingIndex(vectorstore.WithProvisioningPolls(10))
	m := NewIndexManager(idx, WithReadyPolling(time.Hour, 3))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.EnsureCreated(ctx, testDesc)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnsureCreatedRejectsMismatchedIndex(t *testing.T) {
	ctx := context.Background()
	idx := newRecordingIndex()
	require.NoError(t, idx.CreateIndex(ctx, testDesc))
	m := NewIndexManager(idx)

	wider := testDesc
	wider.Dimension = testDim * 2
	_, err := m.EnsureCreated(ctx, wider)
	var ce *schema.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "index.dimension", ce.Field)

	dot := testDesc
	dot.Metric = schema.MetricDotProduct
	_, err = m.EnsureCreated(ctx, dot)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "index.metric", ce.Field)
	assert.Equal(t, 1, idx.creates)
}

func TestDescribeAndDelete(t *testing.T) {
	ctx := context.Background()
	idx := newRecordingIndex()
	m := NewIndexManager(idx)
	_, err := m.EnsureCreated(ctx, testDesc)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, testIndex, []schema.VectorRecord{
		{ID: "a_0", Vector: vectorFor("a")},
		{ID: "a_1", Vector: vectorFor("b")},
	}))

	stats, err := m.Describe(ctx, testIndex)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.RecordCount)

	require.NoError(t, m.Delete(ctx, testIndex))
	stats, err = m.Describe(ctx, testIndex)
	require.NoError(t, err)
	assert.Zero(t, stats.RecordCount)

	existed, err := m.EnsureCreated(ctx, testDesc)
	require.NoError(t, err)
	assert.True(t, existed, "delete keeps the index")
}

func TestDescribeUnknownIndex(t *testing.T) {
	_, err := NewIndexManager(newRecordingIndex()).Describe(context.Background(), "missing")
	assert.ErrorIs(t, err, schema.ErrIndexNotFound)
}
