// Package mcp_host connects to MCP servers and calls their tools.
package mcp_host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Host 管理到多个 MCP 服务端的连接，聚合它们的工具，并提供统一的调用入口。
type Host struct {
	name    string
	version string
	servers map[string]client.MCPClient
	mu      sync.RWMutex
}

// ConnectOptions 定义了连接到 MCP 服务端的配置项
type ConnectOptions struct {
	ServerName    string
	TransportType string // "stdio", "http-sse" 或 "inprocess"
	Command       string
	Args          []string
	Env           []string
	URL           string
	// Server 仅用于 inprocess 传输。
	Server *server.MCPServer
}

// NewHost 创建一个新的 Host 实例，name 和 version 会在握手时发给服务端。
func NewHost(name, version string) *Host {
	return &Host{
		name:    name,
		version: version,
		servers: make(map[string]client.MCPClient),
	}
}

// Connect 根据提供的选项，连接并初始化一个 MCP 服务端。
func (h *Host) Connect(ctx context.Context, opts ConnectOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.servers[opts.ServerName]; exists {
		return fmt.Errorf("server with name '%s' already connected", opts.ServerName)
	}

	var (
		c   *client.Client
		err error
	)
	switch opts.TransportType {
	case "stdio":
		// stdio 客户端在创建时已经启动子进程。
		c, err = client.NewStdioMCPClient(opts.Command, opts.Env, opts.Args...)
		if err != nil {
			return fmt.Errorf("failed to create stdio client: %w", err)
		}
	case "http-sse":
		c, err = client.NewSSEMCPClient(opts.URL)
		if err != nil {
			return fmt.Errorf("failed to create sse client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sse client: %w", err)
		}
	case "inprocess":
		if opts.Server == nil {
			return errors.New("inprocess transport needs a server")
		}
		c, err = client.NewInProcessClient(opts.Server)
		if err != nil {
			return fmt.Errorf("failed to create in-process client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("failed to start in-process client: %w", err)
		}
	default:
		return fmt.Errorf("unsupported transport type: '%s'", opts.TransportType)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: h.name, Version: h.version}

	if _, err := c.Initialize(ctx, initRequest); err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to initialize client: %w", err)
	}

	h.servers[opts.ServerName] = c
	return nil
}

// GetAllTools 聚合所有已连接服务端的工具列表，按服务端名排序。
// 单个服务端失败不影响其他服务端，错误按服务端名返回。
func (h *Host) GetAllTools(ctx context.Context) ([]mcp.Tool, map[string]error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var allTools []mcp.Tool
	errs := make(map[string]error)
	for _, name := range h.serverNames() {
		res, err := h.servers[name].ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			errs[name] = err
			continue
		}
		allTools = append(allTools, res.Tools...)
	}
	return allTools, errs
}

// InvokeTool 在所有已连接的服务端中查找并调用指定的工具。
// 没有服务端提供该工具时返回错误。
func (h *Host) InvokeTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var errs []error
	for _, name := range h.serverNames() {
		c := h.servers[name]
		res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: failed to list tools: %w", name, err))
			continue
		}
		for _, tool := range res.Tools {
			if tool.Name != toolName {
				continue
			}
			req := mcp.CallToolRequest{}
			req.Params.Name = toolName
			req.Params.Arguments = args
			result, err := c.CallTool(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("%s: failed to call tool %s: %w", name, toolName, err)
			}
			return result, nil
		}
	}
	errs = append(errs, fmt.Errorf("tool '%s' not found", toolName))
	return nil, errors.Join(errs...)
}

// CloseAll 关闭所有到服务端的连接。
func (h *Host) CloseAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for _, c := range h.servers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.servers = make(map[string]client.MCPClient)
	return errors.Join(errs...)
}

func (h *Host) serverNames() []string {
	names := make([]string, 0, len(h.servers))
	for n := range h.servers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TextOf joins the text contents of a tool result.
func TextOf(res *mcp.CallToolResult) string {
	var out string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
