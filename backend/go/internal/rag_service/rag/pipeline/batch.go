package pipeline

import (
	"context"
	"sync"

	"DocQA/backend/go/internal/rag_service/rag/schema"
)

// upsertFunc sends one batch to the store.
type upsertFunc func(ctx context.Context, records []schema.VectorRecord) error

// batcher accumulates records from every document of a run and upserts them
// in batches of at most size records. Filling, flushing and clearing happen
// under one lock, so a flush never observes a half-filled batch from another
// goroutine.
type batcher struct {
	mu      sync.Mutex
	size    int
	pending []schema.VectorRecord
	upsert  upsertFunc
	// done is called, still under the lock, after every flush.
	done func(records []schema.VectorRecord, err error)
}

func newBatcher(size int, upsert upsertFunc, done func([]schema.VectorRecord, error)) *batcher {
	return &batcher{
		size:    size,
		pending: make([]schema.VectorRecord, 0, size),
		upsert:  upsert,
		done:    done,
	}
}

// add appends records, flushing each time the batch reaches its cap.
// The records of one call stay contiguous in flush order.
func (b *batcher) add(ctx context.Context, records []schema.VectorRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range records {
		b.pending = append(b.pending, r)
		if len(b.pending) == b.size {
			b.flushLocked(ctx)
		}
	}
}

// flush sends whatever is pending.
func (b *batcher) flush(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked(ctx)
}

func (b *batcher) flushLocked(ctx context.Context) {
	if len(b.pending) == 0 {
		return
	}
	batch := make([]schema.VectorRecord, len(b.pending))
	copy(batch, b.pending)
	b.pending = b.pending[:0]

	err := b.upsert(ctx, batch)
	b.done(batch, err)
}
