package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv 用环境变量覆盖配置。同一项有多个变量名时，靠前的优先。
func applyEnv(cfg *AppConfig) error {
	envString(&cfg.Logger.Level, "LOG_LEVEL")
	envString(&cfg.Index.Name, "INDEX_NAME", "PINECONE_INDEX_NAME")
	envString(&cfg.Index.Metric, "INDEX_METRIC")
	envString(&cfg.Vector.Backend, "VECTOR_BACKEND")
	envString(&cfg.Corpus.Directory, "ASSETS_DIRECTORY")
	envString(&cfg.Corpus.UnidocLicenseKey, "UNIDOC_LICENSE_API_KEY")
	envString(&cfg.Corpus.Bucket, "CORPUS_BUCKET")
	envString(&cfg.Corpus.Prefix, "CORPUS_PREFIX")
	envString(&cfg.Databases.MinIO.Endpoint, "MINIO_ENDPOINT")
	envString(&cfg.Databases.MinIO.AccessKey, "MINIO_ACCESS_KEY")
	envString(&cfg.Databases.MinIO.SecretKey, "MINIO_SECRET_KEY")

	m := &cfg.Databases.Milvus
	envString(&m.Address, "MILVUS_ADDRESS")
	envString(&m.Username, "MILVUS_USERNAME")
	envString(&m.Password, "MILVUS_PASSWORD")
	envString(&m.APIKey, "MILVUS_API_KEY", "PINECONE_API_KEY")
	envString(&m.DBName, "MILVUS_DB_NAME")

	envString(&cfg.Databases.Redis.Address, "REDIS_ADDRESS")
	envString(&cfg.Databases.Redis.Password, "REDIS_PASSWORD")
	envString(&cfg.Embedding.Cache.Backend, "EMBEDDING_CACHE")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Databases.Kafka.Brokers = splitList(v)
	}
	envString(&cfg.Events.Topic, "EVENTS_TOPIC")
	if err := envBool(&cfg.Events.Enabled, "EVENTS_ENABLED"); err != nil {
		return err
	}

	envString(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	envString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	envString(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	envString(&cfg.LLM.Provider, "LLM_PROVIDER")
	envString(&cfg.LLM.Model, "LLM_MODEL")
	envString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	envString(&cfg.Retrieval.Rerank.Provider, "RERANK_PROVIDER")
	envString(&cfg.Retrieval.Rerank.Model, "RERANK_MODEL")
	envString(&cfg.Server.Address, "SERVER_ADDRESS")

	// 提供商凭据只在配置文件未填写时从环境变量读取。
	for _, p := range []*struct{ provider, key, baseURL *string }{
		{&cfg.Embedding.Provider, &cfg.Embedding.APIKey, &cfg.Embedding.BaseURL},
		{&cfg.LLM.Provider, &cfg.LLM.APIKey, &cfg.LLM.BaseURL},
		{&cfg.Retrieval.Rerank.Provider, &cfg.Retrieval.Rerank.APIKey, &cfg.Retrieval.Rerank.BaseURL},
	} {
		if *p.key == "" {
			if name := apiKeyEnv(*p.provider); name != "" {
				*p.key = os.Getenv(name)
			}
		}
		if *p.baseURL == "" && strings.EqualFold(*p.provider, "ollama") {
			*p.baseURL = os.Getenv("OLLAMA_HOST")
		}
	}

	if err := envInt(&cfg.Index.Dimension, "INDEX_DIMENSION"); err != nil {
		return err
	}
	if err := envInt(&cfg.Ingest.BatchSize, "INGEST_BATCH_SIZE"); err != nil {
		return err
	}
	if err := envInt(&cfg.Ingest.Concurrency, "INGEST_CONCURRENCY"); err != nil {
		return err
	}
	if err := envInt(&cfg.Retrieval.TopK, "RETRIEVAL_TOP_K"); err != nil {
		return err
	}
	if err := envDuration(&cfg.Embedding.Timeout, "EMBEDDING_TIMEOUT"); err != nil {
		return err
	}
	if err := envDuration(&cfg.LLM.Timeout, "LLM_TIMEOUT"); err != nil {
		return err
	}
	return envDuration(&cfg.Index.Timeout, "INDEX_TIMEOUT")
}

func apiKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	case "huggingface":
		return "HUGGINGFACE_API_KEY"
	case "cohere":
		return "COHERE_API_KEY"
	default:
		return ""
	}
}

func envString(dst *string, keys ...string) {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			*dst = v
			return
		}
	}
}

func envBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("环境变量 %s 不是布尔值: %w", key, err)
	}
	*dst = b
	return nil
}

// splitList 按逗号切分并去掉空项。
func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("环境变量 %s 不是整数: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("环境变量 %s 不是合法的时长: %w", key, err)
	}
	*dst = d
	return nil
}
