package rerankers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	apphttp "DocQA/backend/go/pkg/http"
)

const defaultCohereBaseURL = "https://api.cohere.ai"

// CohereReranker implements the Reranker interface using the Cohere Rerank API.
type CohereReranker struct {
	client *apphttp.Client
	model  string
	topN   int
}

// cohereRerankRequest defines the request body for the Cohere Rerank API.
type cohereRerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n,omitempty"`
	ReturnDocuments bool     `json:"return_documents"`
}

type cohereRerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type cohereRerankResponse struct {
	Results []cohereRerankResult `json:"results"`
}

// New returns the reranker named by cfg.Provider, or nil when reranking is off.
func New(cfg config.RerankConfig) (interfaces.Reranker, error) {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "cohere":
		r, err := NewCohereReranker(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, &schema.ConfigError{Field: "retrieval.rerank.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
}

// NewCohereReranker creates a new CohereReranker. Timeouts and circuit
// breaking are left to the caller.
func NewCohereReranker(cfg config.RerankConfig) (*CohereReranker, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultCohereBaseURL
	}
	client, err := apphttp.NewClient(baseURL, 0, config.CircuitBreakerConfig{})
	if err != nil {
		return nil, err
	}
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	return &CohereReranker{client: client, model: cfg.Model, topN: cfg.TopN}, nil
}

// Rerank re-orders the matches by the relevance scores from the Cohere API.
// Each returned match carries its relevance score in place of the
// similarity score of the index.
func (r *CohereReranker) Rerank(ctx context.Context, query string, matches []schema.QueryMatch) ([]schema.QueryMatch, error) {
	if len(matches) == 0 {
		return matches, nil
	}

	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Metadata.Text
	}

	var resp cohereRerankResponse
	err := r.client.DoJSON(ctx, http.MethodPost, "/v1/rerank", cohereRerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: texts,
		TopN:      r.topN,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("cohere rerank: %w", err)
	}

	reranked := make([]schema.QueryMatch, 0, len(resp.Results))
	for _, result := range resp.Results {
		if result.Index < 0 || result.Index >= len(matches) {
			return nil, fmt.Errorf("cohere rerank: result index %d out of range [0, %d)", result.Index, len(matches))
		}
		m := matches[result.Index]
		m.Score = float32(result.RelevanceScore)
		reranked = append(reranked, m)
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked, nil
}

// compile-time check to ensure CohereReranker implements the Reranker interface
var _ interfaces.Reranker = (*CohereReranker)(nil)
