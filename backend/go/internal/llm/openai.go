package llm

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI 是一个用于 OpenAI API（或兼容接口）的 LLM 客户端。
type OpenAI struct {
	client      *openai.Client // OpenAI 客户端实例。
	model       string         // 要使用的模型名称。
	temperature float32
}

// NewOpenAI 创建一个新的 OpenAI 客户端。baseURL 为空时使用官方地址。
func NewOpenAI(model, apiKey, baseURL string, temperature float32) (*OpenAI, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		temperature: temperature,
	}, nil
}

// Generate 以单条用户消息发送提示词，返回第一个候选回答。
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	temperature := o.temperature
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: &temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
