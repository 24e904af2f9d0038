package cmd

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/internal/rag_service/api"
	"DocQA/backend/go/internal/rag_service/rag/schema"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	purged  bool
	deleted bool
	askErr  error
}

func (s *stubService) IndexName() string { return "docs" }

func (s *stubService) Ask(_ context.Context, q string) (*schema.Answer, error) {
	if strings.TrimSpace(q) == "" {
		return nil, schema.ErrEmptyQuestion
	}
	if s.askErr != nil {
		return nil, s.askErr
	}
	return &schema.Answer{Text: "42", Sources: []schema.QueryMatch{{ID: "a.txt#0", Metadata: schema.RecordMetadata{SourcePath: "a.txt"}}}}, nil
}

func (s *stubService) Describe(context.Context) (schema.IndexStats, error) {
	return schema.IndexStats{Name: "docs", RecordCount: 3, Dimension: 4, Metric: schema.MetricCosine, Ready: true}, nil
}

func (s *stubService) Delete(context.Context) error {
	s.deleted = true
	return nil
}

func (s *stubService) Reindex(_ context.Context, purge bool) (*schema.IngestReport, error) {
	s.purged = purge
	return &schema.IngestReport{
		IndexName: "docs", RecordsUpserted: 2,
		Failures: []schema.DocumentFailure{{SourcePath: "b.pdf", LastChunk: 1, Kind: schema.FailureUpsert, Err: errors.New("rejected")}},
	}, nil
}

func newTestRemote(t *testing.T, stub *stubService) *remoteService {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api.NewHandler(stub, nil).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	remote, err := newRemoteService(context.Background(), srv.URL, config.Default())
	require.NoError(t, err)
	return remote
}

func TestRemoteServiceRoundTrip(t *testing.T) {
	stub := &stubService{}
	remote := newTestRemote(t, stub)
	ctx := context.Background()

	assert.Equal(t, "docs", remote.IndexName())

	ans, err := remote.Ask(ctx, "what?")
	require.NoError(t, err)
	assert.Equal(t, "42", ans.Text)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "a.txt", ans.Sources[0].Metadata.SourcePath)

	stats, err := remote.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.RecordCount)

	require.NoError(t, remote.Delete(ctx))
	assert.True(t, stub.deleted)

	report, err := remote.Reindex(ctx, true)
	require.NoError(t, err)
	assert.True(t, stub.purged)
	assert.Equal(t, 2, report.RecordsUpserted)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "b.pdf", report.Failures[0].SourcePath)
	assert.EqualError(t, report.Failures[0].Err, "rejected")
}

func TestRemoteServiceMapsStatusCodes(t *testing.T) {
	stub := &stubService{askErr: &schema.ProviderError{Op: "generate", Entity: "m", Err: errors.New("timeout")}}
	remote := newTestRemote(t, stub)

	_, err := remote.Ask(context.Background(), "what?")
	assert.ErrorIs(t, err, schema.ErrProviderUnavailable)

	_, err = remote.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, schema.ErrEmptyQuestion)
}

func TestConsoleURL(t *testing.T) {
	u, err := consoleURL("http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws/console", u)

	u, err = consoleURL("https://qa.example.com/base/")
	require.NoError(t, err)
	assert.Equal(t, "wss://qa.example.com/base/ws/console", u)
}
