package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/internal/database/milvus"
	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/pkg/logger"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// Schema fields of a chunk collection.
	FieldID         = "id"
	FieldEmbedding  = "embedding"
	FieldSourcePath = "source_path"
	FieldSeqIndex   = "seq_index"
	FieldText       = "text"
	FieldLocation   = "location"
	FieldExtra      = "extra"

	idMaxLength         = 512
	sourcePathMaxLength = 2048
)

// MilvusIndex maps each named index onto a Milvus collection.
type MilvusIndex struct {
	log    *logger.Logger
	client client.Client
	cfg    *config.MilvusConfig

	mu      sync.Mutex
	metrics map[string]entity.MetricType
}

// NewMilvusIndex wraps an open Milvus client.
func NewMilvusIndex(milvusClient *milvus.MilvusClient, log *logger.Logger) (*MilvusIndex, error) {
	if milvusClient == nil || milvusClient.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	return &MilvusIndex{
		log:     log,
		client:  milvusClient.Client,
		cfg:     milvusClient.Config,
		metrics: make(map[string]entity.MetricType),
	}, nil
}

// MetricType maps a metric onto its Milvus equivalent.
func MetricType(m schema.Metric) entity.MetricType {
	switch m {
	case schema.MetricEuclidean:
		return entity.L2
	case schema.MetricDotProduct:
		return entity.IP
	default:
		return entity.COSINE
	}
}

func metricFromMilvus(mt string) schema.Metric {
	switch entity.MetricType(strings.ToUpper(mt)) {
	case entity.L2:
		return schema.MetricEuclidean
	case entity.IP:
		return schema.MetricDotProduct
	case entity.COSINE:
		return schema.MetricCosine
	default:
		return ""
	}
}

func (s *MilvusIndex) ListIndexes(ctx context.Context) ([]string, error) {
	colls, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list Milvus collections: %w", err)
	}
	names := make([]string, 0, len(colls))
	for _, c := range colls {
		names = append(names, c.Name)
	}
	return names, nil
}

// CreateIndex creates the collection, builds the vector index and starts an
// asynchronous load. IndexReady reports when the load has finished.
func (s *MilvusIndex) CreateIndex(ctx context.Context, desc schema.IndexDescriptor) error {
	textMax := s.cfg.TextMaxLength
	if textMax <= 0 {
		textMax = 65535
	}
	coll := entity.NewSchema().
		WithName(desc.Name).
		WithDescription("document chunks and their embeddings").
		WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).
			WithIsPrimaryKey(true).WithMaxLength(idMaxLength)).
		WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(desc.Dimension))).
		WithField(entity.NewField().WithName(FieldSourcePath).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(sourcePathMaxLength)).
		WithField(entity.NewField().WithName(FieldSeqIndex).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(FieldText).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(int64(textMax))).
		WithField(entity.NewField().WithName(FieldLocation).WithDataType(entity.FieldTypeJSON)).
		WithField(entity.NewField().WithName(FieldExtra).WithDataType(entity.FieldTypeJSON))

	shards := s.cfg.ShardNum
	if shards <= 0 {
		shards = entity.DefaultShardNumber
	}
	if err := s.client.CreateCollection(ctx, coll, shards); err != nil {
		return fmt.Errorf("failed to create Milvus collection %s: %w", desc.Name, err)
	}

	metric := MetricType(desc.Metric)
	idx, err := milvus.BuildIndex(s.cfg.IndexType, metric, s.cfg.IndexParams)
	if err != nil {
		return err
	}
	if err := s.client.CreateIndex(ctx, desc.Name, FieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to index field %s of %s: %w", FieldEmbedding, desc.Name, err)
	}
	if err := s.client.LoadCollection(ctx, desc.Name, true); err != nil {
		return fmt.Errorf("failed to load Milvus collection %s: %w", desc.Name, err)
	}

	s.mu.Lock()
	s.metrics[desc.Name] = metric
	s.mu.Unlock()
	s.log.With("collection", desc.Name).With("dimension", desc.Dimension).With("metric", string(metric)).
		Info("Created Milvus collection")
	return nil
}

func (s *MilvusIndex) IndexReady(ctx context.Context, name string) (bool, error) {
	state, err := s.client.GetLoadState(ctx, name, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get load state of %s: %w", name, err)
	}
	switch state {
	case entity.LoadStateLoaded:
		return true, nil
	case entity.LoadStateNotLoad:
		// A collection released by someone else must be loaded again.
		if err := s.client.LoadCollection(ctx, name, true); err != nil {
			return false, fmt.Errorf("failed to load Milvus collection %s: %w", name, err)
		}
	}
	return false, nil
}

// DeleteAllRecords deletes by an expression that matches every row.
func (s *MilvusIndex) DeleteAllRecords(ctx context.Context, name string) error {
	expr := FieldSeqIndex + " >= 0"
	if err := s.client.Delete(ctx, name, "", expr); err != nil {
		return fmt.Errorf("failed to delete records from %s: %w", name, err)
	}
	return nil
}

func (s *MilvusIndex) Upsert(ctx context.Context, name string, records []schema.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	var (
		ids       = make([]string, len(records))
		vectors   = make([][]float32, len(records))
		sources   = make([]string, len(records))
		seqs      = make([]int64, len(records))
		texts     = make([]string, len(records))
		locations = make([][]byte, len(records))
		extras    = make([][]byte, len(records))
	)
	dim := len(records[0].Vector)
	for i, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("record %s has dimension %d, batch has %d", r.ID, len(r.Vector), dim)
		}
		ids[i] = r.ID
		vectors[i] = r.Vector
		sources[i] = r.Metadata.SourcePath
		seqs[i] = int64(r.Metadata.SequenceIndex)
		texts[i] = r.Metadata.Text

		loc, err := json.Marshal(r.Metadata.Location)
		if err != nil {
			return fmt.Errorf("failed to encode location of %s: %w", r.ID, err)
		}
		locations[i] = loc
		extra := r.Metadata.Extra
		if extra == nil {
			extra = map[string]string{}
		}
		if extras[i], err = json.Marshal(extra); err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", r.ID, err)
		}
	}

	_, err := s.client.Upsert(ctx, name, "",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnFloatVector(FieldEmbedding, dim, vectors),
		entity.NewColumnVarChar(FieldSourcePath, sources),
		entity.NewColumnInt64(FieldSeqIndex, seqs),
		entity.NewColumnVarChar(FieldText, texts),
		entity.NewColumnJSONBytes(FieldLocation, locations),
		entity.NewColumnJSONBytes(FieldExtra, extras),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %d records into %s: %w", len(records), name, err)
	}
	return nil
}

// Query returns hits in the order Milvus ranks them. Scores are the raw
// Milvus values; for L2 that is a distance, so smaller is closer.
func (s *MilvusIndex) Query(ctx context.Context, name string, vector []float32, opts schema.QueryOptions) ([]schema.QueryMatch, error) {
	if opts.TopK <= 0 {
		return nil, nil
	}
	metric, err := s.metricOf(ctx, name)
	if err != nil {
		return nil, err
	}
	sp, err := milvus.BuildSearchParam(s.cfg.IndexType, s.cfg.SearchParams)
	if err != nil {
		return nil, err
	}

	var output []string
	if opts.IncludeMetadata {
		output = append(output, FieldSourcePath, FieldSeqIndex, FieldText, FieldLocation, FieldExtra)
	}
	if opts.IncludeValues {
		output = append(output, FieldEmbedding)
	}

	results, err := s.client.Search(ctx, name, nil, "", output,
		[]entity.Vector{entity.FloatVector(vector)}, FieldEmbedding, metric, opts.TopK, sp)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", name, err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return s.toMatches(results[0])
}

func (s *MilvusIndex) toMatches(res client.SearchResult) ([]schema.QueryMatch, error) {
	if res.Err != nil {
		return nil, res.Err
	}
	idCol, ok := res.IDs.(*entity.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("search result has unexpected id column %T", res.IDs)
	}
	ids := idCol.Data()

	var (
		sources, texts    []string
		seqs              []int64
		locations, extras [][]byte
		vectors           [][]float32
	)
	if col, ok := res.Fields.GetColumn(FieldSourcePath).(*entity.ColumnVarChar); ok {
		sources = col.Data()
	}
	if col, ok := res.Fields.GetColumn(FieldText).(*entity.ColumnVarChar); ok {
		texts = col.Data()
	}
	if col, ok := res.Fields.GetColumn(FieldSeqIndex).(*entity.ColumnInt64); ok {
		seqs = col.Data()
	}
	if col, ok := res.Fields.GetColumn(FieldLocation).(*entity.ColumnJSONBytes); ok {
		locations = col.Data()
	}
	if col, ok := res.Fields.GetColumn(FieldExtra).(*entity.ColumnJSONBytes); ok {
		extras = col.Data()
	}
	if col, ok := res.Fields.GetColumn(FieldEmbedding).(*entity.ColumnFloatVector); ok {
		vectors = col.Data()
	}

	matches := make([]schema.QueryMatch, 0, res.ResultCount)
	for i := 0; i < res.ResultCount && i < len(ids); i++ {
		m := schema.QueryMatch{ID: ids[i], Score: res.Scores[i]}
		if i < len(sources) {
			m.Metadata.SourcePath = sources[i]
		}
		if i < len(texts) {
			m.Metadata.Text = texts[i]
		}
		if i < len(seqs) {
			m.Metadata.SequenceIndex = int(seqs[i])
		}
		if i < len(locations) && len(locations[i]) > 0 {
			if err := json.Unmarshal(locations[i], &m.Metadata.Location); err != nil {
				s.log.With("id", ids[i]).WithError(err).Warn("Ignoring malformed location metadata")
			}
		}
		if i < len(extras) && len(extras[i]) > 0 {
			if err := json.Unmarshal(extras[i], &m.Metadata.Extra); err != nil {
				s.log.With("id", ids[i]).WithError(err).Warn("Ignoring malformed extra metadata")
			}
		}
		if i < len(vectors) {
			m.Values = vectors[i]
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Stats flushes first so that freshly upserted rows are counted.
func (s *MilvusIndex) Stats(ctx context.Context, name string) (schema.IndexStats, error) {
	if err := s.client.Flush(ctx, name, false); err != nil {
		return schema.IndexStats{}, fmt.Errorf("failed to flush %s: %w", name, err)
	}
	raw, err := s.client.GetCollectionStatistics(ctx, name)
	if err != nil {
		return schema.IndexStats{}, fmt.Errorf("failed to get statistics of %s: %w", name, err)
	}
	stats := schema.IndexStats{Name: name, Extra: raw}
	if n, err := strconv.ParseInt(raw["row_count"], 10, 64); err == nil {
		stats.RecordCount = n
	}

	coll, err := s.client.DescribeCollection(ctx, name)
	if err != nil {
		return schema.IndexStats{}, fmt.Errorf("failed to describe %s: %w", name, err)
	}
	if coll.Schema != nil {
		for _, f := range coll.Schema.Fields {
			if f.Name == FieldEmbedding {
				stats.Dimension, _ = strconv.Atoi(f.TypeParams[entity.TypeParamDim])
			}
		}
	}
	if metric, err := s.metricOf(ctx, name); err == nil {
		stats.Metric = metricFromMilvus(string(metric))
	}
	if state, err := s.client.GetLoadState(ctx, name, nil); err == nil {
		stats.Ready = state == entity.LoadStateLoaded
	}
	return stats, nil
}

// metricOf returns the metric the collection was indexed with.
func (s *MilvusIndex) metricOf(ctx context.Context, name string) (entity.MetricType, error) {
	s.mu.Lock()
	metric, ok := s.metrics[name]
	s.mu.Unlock()
	if ok {
		return metric, nil
	}

	idxs, err := s.client.DescribeIndex(ctx, name, FieldEmbedding)
	if err != nil {
		return "", fmt.Errorf("failed to describe index of %s: %w", name, err)
	}
	for _, idx := range idxs {
		if mt, ok := idx.Params()["metric_type"]; ok && mt != "" {
			metric = entity.MetricType(strings.ToUpper(mt))
			break
		}
	}
	if metric == "" {
		return "", fmt.Errorf("index of %s reports no metric type", name)
	}
	s.mu.Lock()
	s.metrics[name] = metric
	s.mu.Unlock()
	return metric, nil
}

// compile-time check to ensure MilvusIndex implements the VectorIndex interface
var _ interfaces.VectorIndex = (*MilvusIndex)(nil)
