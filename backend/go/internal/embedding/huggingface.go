package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HuggingFaceModel 是一个用于 Hugging Face Inference API 的 Embedding 模型客户端。
type HuggingFaceModel struct {
	client  *http.Client // HTTP 客户端实例。
	model   string       // 要使用的模型名称。
	apiKey  string       // Hugging Face API 密钥。
	baseURL string       // Hugging Face Inference API 的基准 URL。
}

// NewHuggingFaceModel 创建一个新的 HuggingFaceModel 客户端。
// baseURL 为空时默认为 "https://api-inference.huggingface.co/pipeline/feature-extraction/"。
func NewHuggingFaceModel(apiKey, modelName, baseURL string) (*HuggingFaceModel, error) {
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co/pipeline/feature-extraction/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &HuggingFaceModel{
		client:  &http.Client{},
		model:   modelName,
		apiKey:  apiKey,
		baseURL: baseURL,
	}, nil
}

// Embed 为单个文本生成嵌入向量。
func (m *HuggingFaceModel) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch 使用 Hugging Face Inference API 为一批文本生成嵌入向量。
func (m *HuggingFaceModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]interface{}{
		"inputs":  texts,
		"options": map[string]bool{"wait_for_model": true}, // 等待模型加载。
	}
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+m.model, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("hugging face returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings, nil
}
