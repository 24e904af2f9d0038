package embedding

import (
	"context"
	"fmt"
	"io"
	"strings"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/internal/rag_service/rag/interfaces"
)

// NewEmdModel 根据指定的提供商、模型、API 密钥和基础 URL 创建并返回一个新的 Embedding 模型实例。
//
// 参数:
//
//	provider: Embedding 模型的提供商 (例如: "gemini", "openai", "huggingface", "ollama")。
//	model: 要使用的模型名称。
//	apiKey: 模型的 API 密钥。
//	baseURL: 模型的服务基础 URL (可选，某些提供商可能不需要)。
//
// 返回值:
//
//	Embedding: 新创建的 Embedding 模型实例。
//	error: 如果提供商不支持或模型初始化失败，则返回错误。
func NewEmdModel(ctx context.Context, provider, model, apiKey, baseURL string) (Embedding, error) {
	switch ModelType(strings.ToLower(provider)) {
	case Google:
		return NewGoogleModel(ctx, apiKey, model)
	case OpenAI:
		return NewOpenAIModel(apiKey, model, baseURL)
	case HuggingFace:
		return NewHuggingFaceModel(apiKey, model, baseURL)
	case Ollama:
		return NewOllamaModel(model, baseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider) // 如果提供商不支持，返回错误。
	}
}

// Embedder 将 Embedding 模型适配为 interfaces.Embedder。
// 输入中的换行会被替换为空格；maxBatch > 0 时按该大小分批请求，结果按输入顺序拼接。
// 设置了缓存时，只有未命中的文本才会发往模型。
type Embedder struct {
	model    Embedding
	maxBatch int
	cache    VectorCache
}

// NewEmbedder 包装一个 Embedding 模型。
func NewEmbedder(model Embedding, maxBatch int) *Embedder {
	return &Embedder{model: model, maxBatch: maxBatch}
}

// WithCache 让 Embedder 按规范化后的文本缓存向量。
func (e *Embedder) WithCache(c VectorCache) *Embedder {
	e.cache = c
	return e
}

// New 按配置创建 Embedder。进程内缓存在这里创建；redis 缓存需要连接，由调用方通过 WithCache 设置。
func New(ctx context.Context, cfg config.EmbeddingConfig) (*Embedder, error) {
	m, err := NewEmdModel(ctx, cfg.Provider, cfg.Model, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	e := NewEmbedder(m, cfg.MaxBatch)
	memory := cfg.Cache.Backend == "" || strings.EqualFold(cfg.Cache.Backend, "memory")
	if memory && (cfg.Cache.Capacity > 0 || cfg.Cache.MaxBytes > 0) {
		c, err := NewMemoryCache(cfg.Cache)
		if err != nil {
			return nil, err
		}
		e.WithCache(c)
	}
	return e, nil
}

func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = normalize(t)
	}
	if e.cache == nil {
		return e.embedBatches(ctx, inputs)
	}

	out := make([][]float32, len(inputs))
	var misses []string
	pending := make(map[string][]int)
	for i, in := range inputs {
		if v, ok := e.cache.Get(ctx, in); ok {
			out[i] = v
			continue
		}
		if _, seen := pending[in]; !seen {
			misses = append(misses, in)
		}
		pending[in] = append(pending[in], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	vecs, err := e.embedBatches(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(misses) {
		return nil, fmt.Errorf("embedding model returned %d vectors for %d texts", len(vecs), len(misses))
	}
	for j, in := range misses {
		e.cache.Put(ctx, in, vecs[j])
		for _, i := range pending[in] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}

func (e *Embedder) embedBatches(ctx context.Context, inputs []string) ([][]float32, error) {
	size := e.maxBatch
	if size <= 0 || size > len(inputs) {
		size = len(inputs)
	}
	out := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += size {
		end := min(start+size, len(inputs))
		vecs, err := e.model.EmbedBatch(ctx, inputs[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding model returned %d vectors for %d texts", len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	in := normalize(text)
	if e.cache != nil {
		if v, ok := e.cache.Get(ctx, in); ok {
			return v, nil
		}
	}
	v, err := e.model.Embed(ctx, in)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Put(ctx, in, v)
	}
	return v, nil
}

// Close 释放底层客户端（如果有）。
func (e *Embedder) Close() error {
	if c, ok := e.model.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func normalize(text string) string {
	return strings.ReplaceAll(text, "\n", " ")
}

var _ interfaces.Embedder = (*Embedder)(nil)
