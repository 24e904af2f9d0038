package cmd

import (
	"errors"
	"fmt"
	"strings"

	"DocQA/backend/go/internal/rag_service/console"
	"DocQA/backend/go/internal/rag_service/service"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOne(cmd, true, console.Command{Kind: console.Ask, Text: strings.Join(args, " ")})
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show the index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOne(cmd, false, console.Command{Kind: console.Describe})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete every record of the index, keeping the index itself",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return errors.New("deleting every record cannot be undone; repeat with --yes")
		}
		return runOne(cmd, false, console.Command{Kind: console.Delete})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Ingest the configured corpus directory again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeFn, err := openService(cmd, false)
		if err != nil {
			return err
		}
		defer closeFn()

		purge, _ := cmd.Flags().GetBool("purge")
		fmt.Fprintln(cmd.OutOrStdout(), "Reindexing, this may take a while...")
		report, err := svc.Reindex(cmd.Context(), purge)
		if report != nil {
			console.WriteReport(cmd.OutOrStdout(), report)
		}
		return err
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Add the documents of another directory to the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if serverURL != "" {
			return errors.New("ingest reads a local directory and cannot be used with --server")
		}
		svc, closeFn, err := openService(cmd, false)
		if err != nil {
			return err
		}
		defer closeFn()

		report, err := svc.(*service.Service).Ingest(cmd.Context(), args[0])
		if report != nil {
			console.WriteReport(cmd.OutOrStdout(), report)
		}
		return err
	},
}

func init() {
	deleteCmd.Flags().BoolP("yes", "y", false, "confirm the deletion")
	reindexCmd.Flags().Bool("purge", false, "delete every record before ingesting, dropping records of removed files")

	rootCmd.AddCommand(askCmd, describeCmd, deleteCmd, reindexCmd, ingestCmd)
}

func runOne(cmd *cobra.Command, bootstrap bool, c console.Command) error {
	svc, closeFn, err := openService(cmd, bootstrap)
	if err != nil {
		return err
	}
	defer closeFn()
	return console.Execute(cmd.Context(), svc, c, cmd.OutOrStdout())
}
