package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个用于 Gemini API 的 LLM 客户端。
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel // Gemini 生成模型实例。
}

// NewGemini 创建一个新的 Gemini 客户端。
//
// 参数:
//
//	ctx: 上下文，用于建立客户端。
//	model: 要使用的 Gemini 模型名称。
//	apiKey: Gemini API 密钥。
//	temperature: 采样温度。
//
// 返回值:
//
//	*Gemini: 新创建的 Gemini 客户端实例。
//	error: 如果无法创建 GenAI 客户端，则返回错误。
func NewGemini(ctx context.Context, model, apiKey string, temperature float32) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	generativeModel := client.GenerativeModel(model)
	generativeModel.SetTemperature(temperature)
	return &Gemini{client: client, model: generativeModel}, nil
}

// Generate 发送单轮提示词，拼接第一个候选回答中的全部文本部分。
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), nil
}

// Close 关闭底层 GenAI 客户端。
func (g *Gemini) Close() error {
	return g.client.Close()
}
