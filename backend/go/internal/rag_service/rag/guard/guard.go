// Package guard wraps the external providers (embedder, vector index, LLM,
// reranker) with a per-call timeout and an optional circuit breaker, and reports
// their failures as *schema.ProviderError.
package guard

import (
	"context"
	"errors"
	"time"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/pkg/circuitbreaker"
)

// Options applies to every call of one provider.
type Options struct {
	// Timeout bounds a single call. Zero means no timeout.
	Timeout time.Duration
	// Breaker is optional.
	Breaker circuitbreaker.CircuitBreaker
}

// NewBreaker builds a breaker from config, or nil when it is disabled.
// Cancellations and caller mistakes do not count as failures.
func NewBreaker(cfg config.CircuitBreakerConfig) circuitbreaker.CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	return circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.Timeout,
		circuitbreaker.WithIgnoreError(func(err error) bool {
			return errors.Is(err, context.Canceled) ||
				errors.Is(err, schema.ErrConfiguration) ||
				errors.Is(err, schema.ErrIndexNotFound)
		}))
}

// call runs fn under the options and classifies its error.
func call(ctx context.Context, opts Options, op, entity string, fn func(ctx context.Context) error) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	run := func() error { return fn(ctx) }

	var err error
	if opts.Breaker != nil {
		err = opts.Breaker.Execute(run)
	} else {
		err = run()
	}
	return classify(ctx, op, entity, err)
}

func classify(ctx context.Context, op, entity string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// The caller gave up; nothing is wrong with the provider.
		return err
	case errors.Is(err, schema.ErrProviderUnavailable),
		errors.Is(err, schema.ErrConfiguration),
		errors.Is(err, schema.ErrIntegrity):
		return err
	default:
		return &schema.ProviderError{Op: op, Entity: entity, Err: err}
	}
}

// Embedder guards an interfaces.Embedder.
type Embedder struct {
	inner interfaces.Embedder
	model string
	opts  Options
}

func NewEmbedder(inner interfaces.Embedder, model string, opts Options) *Embedder {
	return &Embedder{inner: inner, model: model, opts: opts}
}

func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := call(ctx, e.opts, "embed", e.model, func(ctx context.Context) (err error) {
		out, err = e.inner.EmbedMany(ctx, texts)
		return err
	})
	return out, err
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := call(ctx, e.opts, "embed", e.model, func(ctx context.Context) (err error) {
		out, err = e.inner.EmbedOne(ctx, text)
		return err
	})
	return out, err
}

// Index guards an interfaces.VectorIndex.
type Index struct {
	inner interfaces.VectorIndex
	opts  Options
}

func NewIndex(inner interfaces.VectorIndex, opts Options) *Index {
	return &Index{inner: inner, opts: opts}
}

func (g *Index) ListIndexes(ctx context.Context) ([]string, error) {
	var out []string
	err := call(ctx, g.opts, "list indexes", "", func(ctx context.Context) (err error) {
		out, err = g.inner.ListIndexes(ctx)
		return err
	})
	return out, err
}

func (g *Index) CreateIndex(ctx context.Context, desc schema.IndexDescriptor) error {
	return call(ctx, g.opts, "create index", desc.Name, func(ctx context.Context) error {
		return g.inner.CreateIndex(ctx, desc)
	})
}

func (g *Index) IndexReady(ctx context.Context, name string) (bool, error) {
	var ready bool
	err := call(ctx, g.opts, "check readiness", name, func(ctx context.Context) (err error) {
		ready, err = g.inner.IndexReady(ctx, name)
		return err
	})
	return ready, err
}

func (g *Index) DeleteAllRecords(ctx context.Context, name string) error {
	return call(ctx, g.opts, "delete records", name, func(ctx context.Context) error {
		return g.inner.DeleteAllRecords(ctx, name)
	})
}

func (g *Index) Upsert(ctx context.Context, name string, records []schema.VectorRecord) error {
	return call(ctx, g.opts, "upsert", name, func(ctx context.Context) error {
		return g.inner.Upsert(ctx, name, records)
	})
}

func (g *Index) Query(ctx context.Context, name string, vector []float32, opts schema.QueryOptions) ([]schema.QueryMatch, error) {
	var out []schema.QueryMatch
	err := call(ctx, g.opts, "query", name, func(ctx context.Context) (err error) {
		out, err = g.inner.Query(ctx, name, vector, opts)
		return err
	})
	return out, err
}

func (g *Index) Stats(ctx context.Context, name string) (schema.IndexStats, error) {
	var out schema.IndexStats
	err := call(ctx, g.opts, "describe", name, func(ctx context.Context) (err error) {
		out, err = g.inner.Stats(ctx, name)
		return err
	})
	return out, err
}

// LLM guards an interfaces.LLM.
type LLM struct {
	inner interfaces.LLM
	model string
	opts  Options
}

func NewLLM(inner interfaces.LLM, model string, opts Options) *LLM {
	return &LLM{inner: inner, model: model, opts: opts}
}

func (l *LLM) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := call(ctx, l.opts, "generate", l.model, func(ctx context.Context) (err error) {
		out, err = l.inner.Generate(ctx, prompt)
		return err
	})
	return out, err
}

// Reranker guards an interfaces.Reranker.
type Reranker struct {
	inner interfaces.Reranker
	model string
	opts  Options
}

func NewReranker(inner interfaces.Reranker, model string, opts Options) *Reranker {
	return &Reranker{inner: inner, model: model, opts: opts}
}

func (r *Reranker) Rerank(ctx context.Context, query string, matches []schema.QueryMatch) ([]schema.QueryMatch, error) {
	var out []schema.QueryMatch
	err := call(ctx, r.opts, "rerank", r.model, func(ctx context.Context) (err error) {
		out, err = r.inner.Rerank(ctx, query, matches)
		return err
	})
	return out, err
}

var (
	_ interfaces.Reranker    = (*Reranker)(nil)
	_ interfaces.Embedder    = (*Embedder)(nil)
	_ interfaces.VectorIndex = (*Index)(nil)
	_ interfaces.LLM         = (*LLM)(nil)
)
