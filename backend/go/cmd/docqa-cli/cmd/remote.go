package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/internal/rag_service/api"
	"DocQA/backend/go/internal/rag_service/console"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	apphttp "DocQA/backend/go/pkg/http"
)

// remoteService drives a rag_service over its HTTP API.
type remoteService struct {
	client    *apphttp.Client
	indexName string
}

func newRemoteService(ctx context.Context, baseURL string, cfg *config.AppConfig) (*remoteService, error) {
	// Reindexing a large corpus takes a while; ctx bounds each request instead.
	client, err := apphttp.NewClient(baseURL, 0, cfg.Middleware.CircuitBreaker)
	if err != nil {
		return nil, err
	}
	var health struct {
		Status string `json:"status"`
		Index  string `json:"index"`
	}
	if err := client.DoJSON(ctx, http.MethodGet, "/healthz", nil, &health); err != nil {
		return nil, fmt.Errorf("rag_service at %s is not healthy: %w", baseURL, err)
	}
	return &remoteService{client: client, indexName: health.Index}, nil
}

func (r *remoteService) IndexName() string { return r.indexName }

func (r *remoteService) Ask(ctx context.Context, question string) (*schema.Answer, error) {
	var ans schema.Answer
	if err := r.client.DoJSON(ctx, http.MethodPost, "/api/v1/rag/ask", api.AskRequest{Question: question}, &ans); err != nil {
		return nil, remoteError(err)
	}
	return &ans, nil
}

func (r *remoteService) Describe(ctx context.Context) (schema.IndexStats, error) {
	var stats schema.IndexStats
	err := r.client.DoJSON(ctx, http.MethodGet, "/api/v1/rag/index", nil, &stats)
	return stats, remoteError(err)
}

func (r *remoteService) Delete(ctx context.Context) error {
	return remoteError(r.client.DoJSON(ctx, http.MethodDelete, "/api/v1/rag/index/records?confirm=true", nil, nil))
}

func (r *remoteService) Reindex(ctx context.Context, purge bool) (*schema.IngestReport, error) {
	var resp api.ReportResponse
	if err := r.client.DoJSON(ctx, http.MethodPost, "/api/v1/rag/reindex", api.ReindexRequest{Purge: purge}, &resp); err != nil {
		return nil, remoteError(err)
	}
	report := resp.IngestReport
	if report == nil {
		report = &schema.IngestReport{}
	}
	report.Failures = nil
	for _, f := range resp.Failures {
		report.Failures = append(report.Failures, schema.DocumentFailure{
			SourcePath: f.SourcePath,
			FirstChunk: f.FirstChunk,
			LastChunk:  f.LastChunk,
			Kind:       schema.FailureKind(f.Kind),
			Err:        errors.New(f.Error),
		})
	}
	return report, nil
}

// remoteError maps the server's status codes back onto the sentinel errors
// so the console reacts to them the same way as in local mode.
func remoteError(err error) error {
	var se *apphttp.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", schema.ErrEmptyQuestion, se.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", schema.ErrIndexNotFound, se.Message)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", schema.ErrProviderUnavailable, se.Message)
	default:
		return err
	}
}

var _ console.Service = (*remoteService)(nil)
