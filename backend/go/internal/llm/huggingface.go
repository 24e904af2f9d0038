package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HuggingFace 是一个用于 Hugging Face Inference API 的 LLM 客户端。
type HuggingFace struct {
	client  *http.Client // HTTP 客户端实例。
	model   string       // 要使用的模型名称。
	apiKey  string       // Hugging Face API 密钥。
	baseURL string       // Hugging Face Inference API 的基准 URL。
}

// NewHuggingFace 创建一个新的 HuggingFace 客户端。
// baseURL 为空时默认为 "https://api-inference.huggingface.co/models/"。
func NewHuggingFace(model, apiKey, baseURL string) (*HuggingFace, error) {
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co/models/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &HuggingFace{
		client:  &http.Client{},
		model:   model,
		apiKey:  apiKey,
		baseURL: baseURL,
	}, nil
}

// Generate 使用 Hugging Face Inference API 生成内容，只返回新生成的文本。
func (h *HuggingFace) Generate(ctx context.Context, prompt string) (string, error) {
	jsonReq, err := json.Marshal(map[string]interface{}{
		"inputs":     prompt,
		"parameters": map[string]interface{}{"return_full_text": false},
		"options":    map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+h.model, bytes.NewReader(jsonReq))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("hugging face returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var hfResp []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hfResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(hfResp) == 0 {
		return "", fmt.Errorf("no generated text returned")
	}
	return hfResp[0].GeneratedText, nil
}
