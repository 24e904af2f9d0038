// Package mcp exposes the document QA service as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"DocQA/backend/go/internal/rag_service/console"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/pkg/logger"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ToolAskDocuments  = "ask_documents"
	ToolDescribeIndex = "describe_index"
)

// Service is the part of the document QA service the tools call.
type Service interface {
	IndexName() string
	Ask(ctx context.Context, question string) (*schema.Answer, error)
	Describe(ctx context.Context) (schema.IndexStats, error)
}

// Tools holds the tool handlers.
type Tools struct {
	svc Service
	log *logger.Logger
}

func NewTools(svc Service, log *logger.Logger) *Tools {
	if log == nil {
		log = logger.Discard()
	}
	return &Tools{svc: svc, log: log}
}

// NewServer registers every tool on a new MCP server.
func NewServer(svc Service, version string, log *logger.Logger) *server.MCPServer {
	t := NewTools(svc, log)
	s := server.NewMCPServer("docqa", version, server.WithToolCapabilities(false))

	s.AddTool(mcpgo.NewTool(ToolAskDocuments,
		mcpgo.WithDescription(fmt.Sprintf("Answers a question from the documents indexed in %q. "+
			"Says so explicitly when no document is relevant.", svc.IndexName())),
		mcpgo.WithString("question", mcpgo.Required(), mcpgo.Description("The question, in natural language.")),
		mcpgo.WithBoolean("with_sources", mcpgo.Description("Append the source documents of the answer.")),
	), t.HandleAsk)

	s.AddTool(mcpgo.NewTool(ToolDescribeIndex,
		mcpgo.WithDescription("Reports the record count, dimension and metric of the document index."),
	), t.HandleDescribe)

	return s
}

func (t *Tools) HandleAsk(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	ans, err := t.svc.Ask(ctx, question)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		t.log.With("tool", ToolAskDocuments).WithError(err).Warn("Tool call failed")
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	if ans.NoMatches {
		return mcpgo.NewToolResultText(console.NoMatchesMessage), nil
	}

	text := ans.Text
	if req.GetBool("with_sources", false) {
		if srcs := console.Sources(ans); len(srcs) > 0 {
			text += "\n\nSources: " + strings.Join(srcs, ", ")
		}
	}
	return mcpgo.NewToolResultText(text), nil
}

func (t *Tools) HandleDescribe(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	stats, err := t.svc.Describe(ctx)
	if err != nil {
		t.log.With("tool", ToolDescribeIndex).WithError(err).Warn("Tool call failed")
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	var sb strings.Builder
	console.WriteStats(&sb, stats)
	return mcpgo.NewToolResultText(sb.String()), nil
}
