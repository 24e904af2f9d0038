package mcp

import (
	"context"
	"errors"
	"testing"

	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/pkg/mcp_host"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	answer *schema.Answer
	err    error
}

func (f *fakeService) IndexName() string { return "docs" }

func (f *fakeService) Ask(_ context.Context, q string) (*schema.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeService) Describe(context.Context) (schema.IndexStats, error) {
	return schema.IndexStats{Name: "docs", RecordCount: 3, Ready: true}, nil
}

func callRequest(args map[string]any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := mcpgo.AsTextContent(res.Content[0])
	require.True(t, ok)
	return tc.Text
}

func TestHandleAsk(t *testing.T) {
	svc := &fakeService{answer: &schema.Answer{Text: "Paris", Sources: []schema.QueryMatch{
		{Metadata: schema.RecordMetadata{SourcePath: "france.txt"}},
	}}}
	tools := NewTools(svc, nil)

	res, err := tools.HandleAsk(context.Background(), callRequest(map[string]any{"question": "capital?"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Paris", text(t, res))

	res, err = tools.HandleAsk(context.Background(), callRequest(map[string]any{"question": "capital?", "with_sources": true}))
	require.NoError(t, err)
	assert.Equal(t, "Paris\n\nSources: france.txt", text(t, res))
}

func TestHandleAskNoMatchesAndErrors(t *testing.T) {
	tools := NewTools(&fakeService{answer: &schema.Answer{NoMatches: true}}, nil)
	res, err := tools.HandleAsk(context.Background(), callRequest(map[string]any{"question": "q"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "No relevant documents")

	res, err = tools.HandleAsk(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	tools = NewTools(&fakeService{err: &schema.ProviderError{Op: "embed", Entity: "m", Err: errors.New("down")}}, nil)
	res, err = tools.HandleAsk(context.Background(), callRequest(map[string]any{"question": "q"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "provider unavailable")
}

func TestServerInProcess(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{answer: &schema.Answer{Text: "Paris"}}

	host := mcp_host.NewHost("docqa-test", "test")
	require.NoError(t, host.Connect(ctx, mcp_host.ConnectOptions{
		ServerName:    "docqa",
		TransportType: "inprocess",
		Server:        NewServer(svc, "test", nil),
	}))
	defer host.CloseAll()

	tools, errs := host.GetAllTools(ctx)
	require.Empty(t, errs)
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	assert.ElementsMatch(t, []string{ToolAskDocuments, ToolDescribeIndex}, names)

	res, err := host.InvokeTool(ctx, ToolAskDocuments, map[string]any{"question": "capital?"})
	require.NoError(t, err)
	assert.Equal(t, "Paris", mcp_host.TextOf(res))

	res, err = host.InvokeTool(ctx, ToolDescribeIndex, nil)
	require.NoError(t, err)
	assert.Contains(t, mcp_host.TextOf(res), "Records:   3")

	_, err = host.InvokeTool(ctx, "missing_tool", nil)
	assert.Error(t, err)
}
