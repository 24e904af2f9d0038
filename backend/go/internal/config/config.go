package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath 是默认的配置文件路径。
const DefaultPath = "config/config.yaml"

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level  string `yaml:"level"`  // 日志级别 (例如: "info", "debug", "warn", "error")
	Format string `yaml:"format"` // "json" 或 "text"
}

// IndexConfig 描述向量索引本身：名称、维度、度量以及就绪轮询。
type IndexConfig struct {
	Name              string        `yaml:"name"`              // 索引名称
	Dimension         int           `yaml:"dimension"`         // 向量维度，必须与 embedding 模型一致
	Metric            string        `yaml:"metric"`            // cosine | euclidean | dotproduct
	ReadyPollInterval time.Duration `yaml:"readyPollInterval"` // 新建索引后的就绪轮询间隔
	ReadyMaxAttempts  int           `yaml:"readyMaxAttempts"`  // 就绪轮询的最大次数
	Timeout           time.Duration `yaml:"timeout"`           // 单次索引调用的超时
}

// VectorConfig 选择向量存储后端。
type VectorConfig struct {
	Backend string `yaml:"backend"` // "milvus" 或 "memory"
}

// CorpusConfig 描述待导入的文档目录。
type CorpusConfig struct {
	Directory        string   `yaml:"directory"`        // 文档目录
	Extensions       []string `yaml:"extensions"`       // 允许的扩展名，为空表示全部内置加载器
	Exclude          []string `yaml:"exclude"`          // 排除的 glob 模式
	UnidocLicenseKey string   `yaml:"unidocLicenseKey"` // 可选的 unioffice metered key；为空时用 gooxml 读取 .docx
	Bucket           string   `yaml:"bucket"`           // 非空时先从 MinIO 同步到 Directory
	Prefix           string   `yaml:"prefix"`           // 同步的对象键前缀
}

// ChunkerConfig 定义了文本切分器的配置。
type ChunkerConfig struct {
	Type         string `yaml:"type"`         // "recursive" 或 "token"
	ChunkSize    int    `yaml:"chunkSize"`    // 每个块的最大长度
	ChunkOverlap int    `yaml:"chunkOverlap"` // 相邻块的重叠长度
}

// IngestConfig 定义了导入流水线的配置。
type IngestConfig struct {
	BatchSize   int `yaml:"batchSize"`   // 单次 upsert 的最大记录数
	Concurrency int `yaml:"concurrency"` // 并发处理的文档数
}

// RetrievalConfig 定义了检索流水线的配置。
type RetrievalConfig struct {
	TopK          int          `yaml:"topK"`          // 返回的最相似记录数
	IncludeValues bool         `yaml:"includeValues"` // 是否同时返回向量
	Rerank        RerankConfig `yaml:"rerank"`
}

// RerankConfig 定义了检索结果重排序的配置。Provider 为空时不重排。
type RerankConfig struct {
	Provider string        `yaml:"provider"` // "" | cohere
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"apiKey"`
	BaseURL  string        `yaml:"baseURL"`
	TopN     int           `yaml:"topN"` // 重排后保留的条数，0 表示全部保留
	Timeout  time.Duration `yaml:"timeout"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failureThreshold"`
	SuccessThreshold uint32        `yaml:"successThreshold"`
	Timeout          time.Duration `yaml:"timeout"` // 例如: "30s"
}

// EmbeddingConfig 包含了 Embedding 提供商的配置。
type EmbeddingConfig struct {
	Provider       string               `yaml:"provider"` // openai | ollama | gemini | huggingface
	Model          string               `yaml:"model"`
	APIKey         string               `yaml:"apiKey"`
	BaseURL        string               `yaml:"baseURL"`
	MaxBatch       int                  `yaml:"maxBatch"` // 单次请求的最大文本数，0 表示不限制
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	Cache          EmbeddingCacheConfig `yaml:"cache"`
}

// EmbeddingCacheConfig 定义了向量缓存的配置。
// memory 后端在 Capacity 与 MaxBytes 都为 0 时不缓存；redis 后端使用 databases.redis。
type EmbeddingCacheConfig struct {
	Backend  string        `yaml:"backend"`  // "" | memory | redis
	Capacity int           `yaml:"capacity"` // 最多缓存的文本数
	MaxBytes int           `yaml:"maxBytes"` // 缓存向量占用的字节上限
	TTL      time.Duration `yaml:"ttl"`
}

// LLMConfig 包含了 LLM 提供商的配置。
type LLMConfig struct {
	Provider       string               `yaml:"provider"` // openai | ollama | gemini | huggingface
	Model          string               `yaml:"model"`
	APIKey         string               `yaml:"apiKey"`
	BaseURL        string               `yaml:"baseURL"`
	Temperature    float32              `yaml:"temperature"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// MilvusConfig 定义了 Milvus 数据库的连接和索引配置。
type MilvusConfig struct {
	Address       string         `yaml:"address"`       // Milvus 服务地址
	Username      string         `yaml:"username"`      // 用户名
	Password      string         `yaml:"password"`      // 密码
	APIKey        string         `yaml:"apiKey"`        // Zilliz Cloud API key
	DBName        string         `yaml:"dbName"`        // 数据库名称
	IndexType     string         `yaml:"indexType"`     // AUTOINDEX | FLAT | IVF_FLAT | HNSW
	IndexParams   map[string]int `yaml:"indexParams"`   // 例如: {"nlist": 128}
	SearchParams  map[string]int `yaml:"searchParams"`  // 例如: {"nprobe": 16}
	ShardNum      int32          `yaml:"shardNum"`      // 分片数
	TextMaxLength int            `yaml:"textMaxLength"` // text 字段的最大字节数
}

// RedisConfig 定义了 Redis 连接的配置。
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"` // 所有键的前缀
}

// MinIOConfig 定义了 MinIO 连接的配置。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Secure    bool   `yaml:"secure"` // 是否使用 HTTPS
}

// KafkaConfig 定义了 Kafka 连接的配置。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Milvus MilvusConfig `yaml:"milvus"` // Milvus 数据库配置
	Redis  RedisConfig  `yaml:"redis"`  // Redis 配置，用于共享向量缓存
	Kafka  KafkaConfig  `yaml:"kafka"`  // Kafka 配置，用于发布导入事件
	MinIO  MinIOConfig  `yaml:"minio"`  // MinIO 配置，用于同步文档
}

// EventsConfig 定义了导入报告的发布配置。
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
}

// ServerConfig 定义了 HTTP 服务的配置。
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// MiddlewareConfig 包含所有 HTTP 中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Logger     LoggerConfig     `yaml:"logger"`
	Index      IndexConfig      `yaml:"index"`
	Vector     VectorConfig     `yaml:"vector"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Events     EventsConfig     `yaml:"events"`
	Server     ServerConfig     `yaml:"server"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// Default 返回带有全部默认值的配置。
func Default() *AppConfig {
	return &AppConfig{
		App:    AppInfo{Name: "DocQA", Version: "dev", Environment: "development"},
		Logger: LoggerConfig{Level: "info", Format: "json"},
		Index: IndexConfig{
			Name:              "default",
			Dimension:         1536,
			Metric:            "cosine",
			ReadyPollInterval: time.Second,
			ReadyMaxAttempts:  30,
			Timeout:           30 * time.Second,
		},
		Vector:    VectorConfig{Backend: "milvus"},
		Corpus:    CorpusConfig{Directory: "./assets"},
		Chunker:   ChunkerConfig{Type: "recursive", ChunkSize: 1000, ChunkOverlap: 200},
		Ingest:    IngestConfig{BatchSize: 100, Concurrency: 1},
		Retrieval: RetrievalConfig{
			TopK:          10,
			IncludeValues: true,
			Rerank:        RerankConfig{Model: "rerank-english-v3.0", Timeout: 30 * time.Second},
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-ada-002",
			Timeout:  30 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-3.5-turbo",
			Timeout:  60 * time.Second,
		},
		Databases: DatabaseConfigs{
			Milvus: MilvusConfig{
				Address:       "localhost:19530",
				IndexType:     "AUTOINDEX",
				ShardNum:      1,
				TextMaxLength: 65535,
			},
			Redis: RedisConfig{Address: "localhost:6379", KeyPrefix: "docqa:"},
			Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}},
			MinIO: MinIOConfig{Endpoint: "localhost:9000"},
		},
		Events: EventsConfig{Topic: "docqa.ingest_reports"},
		Server: ServerConfig{Address: ":8080", ShutdownTimeout: 10 * time.Second},
		Middleware: MiddlewareConfig{
			RateLimiter: RateLimiterConfig{Enabled: true, TokenBucket: TokenBucketConfig{Rate: 5, Capacity: 10}},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
		},
	}
}

// LoadConfig 函数从指定路径加载 YAML 配置文件，并用 .env 和环境变量覆盖。
//
// 参数:
//
//	path: YAML 配置文件的路径。为空或文件不存在于默认路径时仅使用默认值和环境变量。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体（尚未校验，见 Validate）。
//	error: 如果文件读取或解析失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	// .env 不存在时忽略；已存在的环境变量不会被覆盖。
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("无法读取 .env 文件: %w", err)
	}

	cfg := Default()
	if path != "" {
		yamlFile, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(yamlFile, cfg); err != nil {
				return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
		default:
			return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
