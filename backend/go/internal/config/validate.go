package config

import (
	"fmt"
	"strings"
	"time"

	"DocQA/backend/go/internal/rag_service/rag/schema"
)

// maxBatchSize bounds a single upsert request.
const maxBatchSize = 1000

var (
	embeddingProviders = []string{"openai", "ollama", "gemini", "huggingface"}
	llmProviders       = []string{"openai", "ollama", "gemini", "huggingface"}
	vectorBackends     = []string{"milvus", "memory"}
	chunkerTypes       = []string{"recursive", "token"}
	rerankProviders    = []string{"cohere"}
	cacheBackends      = []string{"", "memory", "redis"}
)

// Validate 检查配置是否完整且自洽。第一个不合法的字段以 *schema.ConfigError 返回。
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Index.Name) == "" {
		return invalid("index.name", "must not be empty")
	}
	if c.Index.Dimension <= 0 {
		return invalid("index.dimension", "must be positive")
	}
	if _, err := schema.ParseMetric(c.Index.Metric); err != nil {
		return invalid("index.metric", err.Error())
	}
	if c.Index.ReadyPollInterval <= 0 {
		return invalid("index.readyPollInterval", "must be positive")
	}
	if c.Index.ReadyMaxAttempts <= 0 {
		return invalid("index.readyMaxAttempts", "must be positive")
	}
	if !oneOf(c.Vector.Backend, vectorBackends) {
		return invalid("vector.backend", fmt.Sprintf("must be one of %v", vectorBackends))
	}
	if c.Vector.Backend == "milvus" && strings.TrimSpace(c.Databases.Milvus.Address) == "" {
		return invalid("databases.milvus.address", "required for the milvus backend")
	}
	if strings.TrimSpace(c.Corpus.Directory) == "" {
		return invalid("corpus.directory", "must not be empty")
	}
	if c.Corpus.Bucket != "" && strings.TrimSpace(c.Databases.MinIO.Endpoint) == "" {
		return invalid("databases.minio.endpoint", "required when corpus.bucket is set")
	}
	if !oneOf(c.Chunker.Type, chunkerTypes) {
		return invalid("chunker.type", fmt.Sprintf("must be one of %v", chunkerTypes))
	}
	if c.Chunker.ChunkSize <= 0 {
		return invalid("chunker.chunkSize", "must be positive")
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return invalid("chunker.chunkOverlap", "must be in [0, chunkSize)")
	}
	if c.Ingest.BatchSize <= 0 || c.Ingest.BatchSize > maxBatchSize {
		return invalid("ingest.batchSize", fmt.Sprintf("must be in [1, %d]", maxBatchSize))
	}
	if c.Ingest.Concurrency <= 0 {
		return invalid("ingest.concurrency", "must be positive")
	}
	if c.Retrieval.TopK <= 0 {
		return invalid("retrieval.topK", "must be positive")
	}
	for field, d := range map[string]time.Duration{
		"index.timeout":     c.Index.Timeout,
		"embedding.timeout": c.Embedding.Timeout,
		"llm.timeout":       c.LLM.Timeout,
	} {
		if d <= 0 {
			return invalid(field, "must be positive")
		}
	}
	if err := validateProvider("embedding", c.Embedding.Provider, c.Embedding.Model, c.Embedding.APIKey, embeddingProviders); err != nil {
		return err
	}
	if c.Embedding.MaxBatch < 0 {
		return invalid("embedding.maxBatch", "must not be negative")
	}
	if c.Embedding.Cache.Capacity < 0 || c.Embedding.Cache.MaxBytes < 0 {
		return invalid("embedding.cache", "capacity and maxBytes must not be negative")
	}
	if !oneOf(c.Embedding.Cache.Backend, cacheBackends) {
		return invalid("embedding.cache.backend", fmt.Sprintf("must be one of %v", cacheBackends))
	}
	if strings.EqualFold(c.Embedding.Cache.Backend, "redis") && strings.TrimSpace(c.Databases.Redis.Address) == "" {
		return invalid("databases.redis.address", "required for the redis embedding cache")
	}
	if c.Events.Enabled {
		if len(c.Databases.Kafka.Brokers) == 0 {
			return invalid("databases.kafka.brokers", "required when events are enabled")
		}
		if strings.TrimSpace(c.Events.Topic) == "" {
			return invalid("events.topic", "must not be empty")
		}
	}
	if err := validateProvider("llm", c.LLM.Provider, c.LLM.Model, c.LLM.APIKey, llmProviders); err != nil {
		return err
	}
	return c.Retrieval.Rerank.validate()
}

func (r *RerankConfig) validate() error {
	if r.Provider == "" {
		return nil
	}
	if r.TopN < 0 {
		return invalid("retrieval.rerank.topN", "must not be negative")
	}
	if r.Timeout <= 0 {
		return invalid("retrieval.rerank.timeout", "must be positive")
	}
	return validateProvider("retrieval.rerank", r.Provider, r.Model, r.APIKey, rerankProviders)
}

func validateProvider(section, provider, model, apiKey string, allowed []string) error {
	if !oneOf(provider, allowed) {
		return invalid(section+".provider", fmt.Sprintf("must be one of %v", allowed))
	}
	if strings.TrimSpace(model) == "" {
		return invalid(section+".model", "must not be empty")
	}
	if apiKeyEnv(provider) != "" && strings.TrimSpace(apiKey) == "" {
		return invalid(section+".apiKey", fmt.Sprintf("required for %s (set %s)", provider, apiKeyEnv(provider)))
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

func invalid(field, reason string) error {
	return &schema.ConfigError{Field: field, Reason: reason}
}
