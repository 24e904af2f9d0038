package llm

import (
	"context"
	"fmt"
	"strings"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/internal/rag_service/rag/interfaces"
)

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个实现了 interfaces.LLM 的客户端。
// 返回的客户端如果实现了 io.Closer，调用方负责关闭。
func NewClient(ctx context.Context, cfg config.LLMConfig) (interfaces.LLM, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return NewGemini(ctx, cfg.Model, cfg.APIKey, cfg.Temperature)
	case "openai":
		return NewOpenAI(cfg.Model, cfg.APIKey, cfg.BaseURL, cfg.Temperature)
	case "ollama":
		return NewOllama(cfg.Model, cfg.BaseURL, cfg.Temperature)
	case "huggingface":
		return NewHuggingFace(cfg.Model, cfg.APIKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
