package cmd

import (
	"fmt"
	"os"
	"sort"

	"DocQA/backend/go/internal/mcp"
	"DocQA/backend/go/pkg/mcp_host"

	"github.com/spf13/cobra"
)

var serverBinary string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Talk to rag_service as an MCP tool server over stdio",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools rag_service exposes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		host, err := connectTools(cmd)
		if err != nil {
			return err
		}
		defer host.CloseAll()

		tools, errs := host.GetAllTools(cmd.Context())
		for name, err := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
		}
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
		for _, t := range tools {
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", t.Name, t.Description)
		}
		return nil
	},
}

var toolsAskCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Call the ask_documents tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := connectTools(cmd)
		if err != nil {
			return err
		}
		defer host.CloseAll()

		withSources, _ := cmd.Flags().GetBool("sources")
		res, err := host.InvokeTool(cmd.Context(), mcp.ToolAskDocuments, map[string]any{
			"question":     args[0],
			"with_sources": withSources,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), mcp_host.TextOf(res))
		return nil
	},
}

func init() {
	toolsCmd.PersistentFlags().StringVar(&serverBinary, "binary", "rag_service", "rag_service executable started as the MCP server")
	toolsAskCmd.Flags().Bool("sources", false, "list the source documents under the answer")

	toolsCmd.AddCommand(toolsListCmd, toolsAskCmd)
	rootCmd.AddCommand(toolsCmd)
}

// connectTools starts rag_service in stdio mode as a child process.
func connectTools(cmd *cobra.Command) (*mcp_host.Host, error) {
	host := mcp_host.NewHost("docqa-cli", "dev")
	err := host.Connect(cmd.Context(), mcp_host.ConnectOptions{
		ServerName:    "rag_service",
		TransportType: "stdio",
		Command:       serverBinary,
		Args:          []string{"--transport", "stdio", "--config", cfgFile},
		Env:           os.Environ(),
	})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", serverBinary, err)
	}
	return host, nil
}
