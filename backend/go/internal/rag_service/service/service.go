// Package service wires the document QA components from configuration and
// exposes the operations the drivers (console, HTTP, MCP) call.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/internal/database/kafka"
	"DocQA/backend/go/internal/database/minio"
	"DocQA/backend/go/internal/database/redis"
	"DocQA/backend/go/internal/embedding"
	"DocQA/backend/go/internal/llm"
	"DocQA/backend/go/internal/rag_service/events"
	"DocQA/backend/go/internal/rag_service/rag/guard"
	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/loaders"
	"DocQA/backend/go/internal/rag_service/rag/pipeline"
	"DocQA/backend/go/internal/rag_service/rag/rerankers"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/internal/rag_service/rag/sources"
	"DocQA/backend/go/internal/rag_service/rag/splitters"
	"DocQA/backend/go/internal/rag_service/rag/storages/vectorstore"
	"DocQA/backend/go/pkg/logger"
)

// Components are the raw collaborators of a Service, before guarding.
type Components struct {
	Registry *loaders.Registry
	Chunker  interfaces.Chunker
	Embedder interfaces.Embedder
	Index    interfaces.VectorIndex
	LLM      interfaces.LLM
	// Reranker is optional.
	Reranker interfaces.Reranker
	// Source, when set, is synced into the corpus directory before the
	// corpus is ingested.
	Source CorpusSource
	// Events is optional. Its Close is not called by Service.Close unless it
	// is also in Closers.
	Events events.Publisher
	// Closers are called by Service.Close in reverse order.
	Closers []func() error
}

// CorpusSource fills the corpus directory from a remote store.
type CorpusSource interface {
	Sync(ctx context.Context, dir string) (sources.SyncResult, error)
}

// Service is the facade over IndexManager, IngestionPipeline and RetrievalPipeline
// for the configured index.
type Service struct {
	cfg       *config.AppConfig
	log       *logger.Logger
	desc      schema.IndexDescriptor
	manager   *pipeline.IndexManager
	ingestion *pipeline.IngestionPipeline
	retrieval *pipeline.RetrievalPipeline
	events    events.Publisher
	source    CorpusSource
	closers   []func() error

	// writeMu serialises operations that write to the index.
	writeMu sync.Mutex
}

// New validates cfg and builds every component it names.
func New(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}
	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return NewWithComponents(cfg, c, log)
}

func buildComponents(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (c Components, err error) {
	defer func() {
		if err != nil {
			_ = closeAll(c.Closers)
		}
	}()

	c.Registry, err = loaders.DefaultRegistry(cfg.Corpus.UnidocLicenseKey).Restrict(cfg.Corpus.Extensions)
	if err != nil {
		return c, err
	}
	c.Chunker, err = splitters.New(cfg.Chunker.Type, cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		return c, err
	}

	emb, err := embedding.New(ctx, cfg.Embedding)
	if err != nil {
		return c, fmt.Errorf("failed to create embedder: %w", err)
	}
	c.Embedder = emb
	c.Closers = append(c.Closers, emb.Close)
	if strings.EqualFold(cfg.Embedding.Cache.Backend, "redis") {
		rdb, err := redis.NewClient(ctx, &cfg.Databases.Redis, log)
		if err != nil {
			return c, &schema.ProviderError{Op: "connect", Entity: cfg.Databases.Redis.Address, Err: err}
		}
		c.Closers = append(c.Closers, rdb.Close)
		emb.WithCache(embedding.NewRedisCache(rdb, cfg.Databases.Redis.KeyPrefix, cfg.Embedding.Model, cfg.Embedding.Cache.TTL))
	}

	model, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return c, fmt.Errorf("failed to create llm: %w", err)
	}
	c.LLM = model
	if cl, ok := model.(io.Closer); ok {
		c.Closers = append(c.Closers, cl.Close)
	}

	c.Reranker, err = rerankers.New(cfg.Retrieval.Rerank)
	if err != nil {
		return c, err
	}

	if cfg.Corpus.Bucket != "" {
		mc, err := minio.NewClient(ctx, &cfg.Databases.MinIO, cfg.Corpus.Bucket, log)
		if err != nil {
			return c, &schema.ProviderError{Op: "connect", Entity: cfg.Databases.MinIO.Endpoint, Err: err}
		}
		c.Source = sources.NewMinIOSource(mc, cfg.Corpus.Bucket, cfg.Corpus.Prefix, log)
	}

	if cfg.Events.Enabled {
		if err := kafka.EnsureTopics(ctx, &cfg.Databases.Kafka, log, cfg.Events.Topic); err != nil {
			return c, &schema.ProviderError{Op: "connect", Entity: "kafka", Err: err}
		}
		pub := events.NewKafkaPublisher(kafka.NewWriter(&cfg.Databases.Kafka, cfg.Events.Topic))
		c.Events = pub
		c.Closers = append(c.Closers, pub.Close)
	}

	idx, closeIdx, err := vectorstore.Open(ctx, cfg.Vector.Backend, &cfg.Databases.Milvus, log)
	if err != nil {
		return c, err
	}
	c.Index = idx
	c.Closers = append(c.Closers, closeIdx)
	return c, nil
}

// NewWithComponents builds a Service over already constructed components.
// Embedder, index, LLM and reranker are wrapped with the configured timeouts and breakers.
func NewWithComponents(cfg *config.AppConfig, c Components, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.Discard()
	}
	metric, err := schema.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, &schema.ConfigError{Field: "index.metric", Reason: err.Error()}
	}

	embedder := guard.NewEmbedder(c.Embedder, cfg.Embedding.Model, guard.Options{
		Timeout: cfg.Embedding.Timeout,
		Breaker: guard.NewBreaker(cfg.Embedding.CircuitBreaker),
	})
	index := guard.NewIndex(c.Index, guard.Options{Timeout: cfg.Index.Timeout})
	model := guard.NewLLM(c.LLM, cfg.LLM.Model, guard.Options{
		Timeout: cfg.LLM.Timeout,
		Breaker: guard.NewBreaker(cfg.LLM.CircuitBreaker),
	})

	var reranker interfaces.Reranker
	if c.Reranker != nil {
		reranker = guard.NewReranker(c.Reranker, cfg.Retrieval.Rerank.Model, guard.Options{Timeout: cfg.Retrieval.Rerank.Timeout})
	}

	s := &Service{
		cfg: cfg,
		log: log,
		desc: schema.IndexDescriptor{
			Name:      cfg.Index.Name,
			Dimension: cfg.Index.Dimension,
			Metric:    metric,
		},
		events:  c.Events,
		source:  c.Source,
		closers: c.Closers,
	}
	s.manager = pipeline.NewIndexManager(index,
		pipeline.WithReadyPolling(cfg.Index.ReadyPollInterval, cfg.Index.ReadyMaxAttempts),
		pipeline.WithLogger(log),
	)
	s.ingestion = pipeline.NewIngestionPipeline(c.Chunker, embedder, index, c.Registry, pipeline.IngestOptions{
		IndexName:   cfg.Index.Name,
		Dimension:   cfg.Index.Dimension,
		BatchSize:   cfg.Ingest.BatchSize,
		Concurrency: cfg.Ingest.Concurrency,
		Exclude:     cfg.Corpus.Exclude,
	}, log)
	s.retrieval = pipeline.NewRetrievalPipeline(embedder, index, pipeline.NewStuffGenerator(model, log), pipeline.RetrievalOptions{
		IndexName:     cfg.Index.Name,
		TopK:          cfg.Retrieval.TopK,
		IncludeValues: cfg.Retrieval.IncludeValues,
		Reranker:      reranker,
	}, log)
	return s, nil
}

// IndexName is the name of the served index.
func (s *Service) IndexName() string { return s.desc.Name }

// Bootstrap makes sure the index exists. A freshly created index is
// populated from the corpus directory and the ingestion report is returned;
// for an existing index the report is nil.
func (s *Service) Bootstrap(ctx context.Context) (*schema.IngestReport, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existed, err := s.manager.EnsureCreated(ctx, s.desc)
	if err != nil {
		return nil, err
	}
	if existed {
		s.log.With("index", s.desc.Name).Info("Index already populated, skipping ingestion")
		return nil, nil
	}
	return s.run(ctx, s.cfg.Corpus.Directory)
}

// Ask answers a question from the index.
func (s *Service) Ask(ctx context.Context, question string) (*schema.Answer, error) {
	return s.retrieval.Answer(ctx, question)
}

// Describe returns the index statistics.
func (s *Service) Describe(ctx context.Context) (schema.IndexStats, error) {
	return s.manager.Describe(ctx, s.desc.Name)
}

// Delete removes every record of the index. There is no undo.
func (s *Service) Delete(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.manager.Delete(ctx, s.desc.Name)
}

// Reindex ingests the corpus directory again. Unchanged chunks are
// overwritten in place. With purge, every record is deleted first so chunks
// of removed or shortened documents do not survive.
func (s *Service) Reindex(ctx context.Context, purge bool) (*schema.IngestReport, error) {
	return s.ingest(ctx, s.cfg.Corpus.Directory, purge)
}

// Ingest adds the documents under dir to the index. An empty dir means the
// configured corpus directory.
func (s *Service) Ingest(ctx context.Context, dir string) (*schema.IngestReport, error) {
	if dir == "" {
		dir = s.cfg.Corpus.Directory
	}
	return s.ingest(ctx, dir, false)
}

func (s *Service) ingest(ctx context.Context, dir string, purge bool) (*schema.IngestReport, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.manager.EnsureCreated(ctx, s.desc); err != nil {
		return nil, err
	}
	if purge {
		if err := s.manager.Delete(ctx, s.desc.Name); err != nil {
			return nil, err
		}
	}
	return s.run(ctx, dir)
}

// eventTimeout bounds publishing one report.
const eventTimeout = 10 * time.Second

// run ingests dir and publishes the report of a completed run. The corpus
// directory is synced from its source first. A failed publish is logged and
// does not fail the run.
func (s *Service) run(ctx context.Context, dir string) (*schema.IngestReport, error) {
	if s.source != nil && dir == s.cfg.Corpus.Directory {
		if _, err := s.source.Sync(ctx, dir); err != nil {
			return nil, &schema.ProviderError{Op: "sync corpus", Entity: s.cfg.Corpus.Bucket, Err: err}
		}
	}
	report, err := s.ingestion.Run(ctx, dir)
	if err != nil || s.events == nil {
		return report, err
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()
	if perr := s.events.PublishReport(pctx, report); perr != nil {
		s.log.With("run_id", report.RunID).WithError(perr).Warn("Failed to publish ingest report")
	}
	return report, nil
}

// Close releases the provider connections.
func (s *Service) Close() error {
	return closeAll(s.closers)
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
