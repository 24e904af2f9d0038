package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/pkg/cache"

	"github.com/go-redis/redis/v8"
)

// VectorCache 按规范化后的文本保存向量。缓存是尽力而为的：读失败视为未命中，写失败被忽略。
type VectorCache interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Put(ctx context.Context, text string, vec []float32)
}

// MemoryCache 是进程内的 LRU 向量缓存，权重为向量占用的字节数。
type MemoryCache struct {
	lru *cache.LRU[string, []float32]
}

// NewMemoryCache 按配置创建 MemoryCache。
func NewMemoryCache(cfg config.EmbeddingCacheConfig) (*MemoryCache, error) {
	lru, err := cache.New[string, []float32](cache.Config{
		Capacity:  cfg.Capacity,
		MaxWeight: cfg.MaxBytes,
		TTL:       cfg.TTL,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{lru: lru}, nil
}

func (c *MemoryCache) Get(_ context.Context, text string) ([]float32, bool) {
	return c.lru.Get(text)
}

func (c *MemoryCache) Put(_ context.Context, text string, vec []float32) {
	c.lru.Put(text, vec, 4*len(vec))
}

// RedisCache 在多个实例之间共享向量。键包含模型名，换模型不会读到旧向量。
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache 创建 RedisCache。ttl 为 0 表示不过期。
func NewRedisCache(rdb *redis.Client, keyPrefix, model string, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: keyPrefix + "emb:" + model + ":", ttl: ttl}
}

func (c *RedisCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, text string) ([]float32, bool) {
	b, err := c.rdb.Get(ctx, c.key(text)).Bytes()
	if err != nil {
		return nil, false
	}
	return decodeVector(b)
}

func (c *RedisCache) Put(ctx context.Context, text string, vec []float32) {
	_ = c.rdb.Set(ctx, c.key(text), encodeVector(vec), c.ttl).Err()
}

func encodeVector(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, true
}

var (
	_ VectorCache = (*MemoryCache)(nil)
	_ VectorCache = (*RedisCache)(nil)
)
