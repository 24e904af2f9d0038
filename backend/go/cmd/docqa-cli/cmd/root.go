package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/internal/rag_service/console"
	"DocQA/backend/go/internal/rag_service/service"
	"DocQA/backend/go/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "docqa-cli",
	Short: "Ask questions about a directory of documents",
	Long: `docqa-cli indexes a directory of text, PDF and Word documents into a vector index
and answers questions about them with a language model.

Without a subcommand it starts the interactive console. With --server it talks to a
running rag_service instead of building the pipeline locally.`,
	SilenceUsage: true,
	RunE:         runConsole,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath, "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logger.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "base URL of a running rag_service, e.g. http://localhost:8080")
	rootCmd.Flags().BoolP("yes", "y", false, "delete without asking for confirmation")
}

// openService returns the remote service when --server is set, otherwise it
// builds the pipeline from the config file. With bootstrap, a missing local
// index is created and populated first.
func openService(cmd *cobra.Command, bootstrap bool) (console.Service, func(), error) {
	ctx := cmd.Context()
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Logger.Level
	if logLevel != "" {
		level = logLevel
	}
	logger.Init(level, "text", os.Stderr)
	log := logger.New("docqa-cli")

	if serverURL != "" {
		remote, err := newRemoteService(ctx, serverURL, cfg)
		if err != nil {
			return nil, nil, err
		}
		return remote, func() {}, nil
	}

	svc, err := service.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := svc.Close(); err != nil {
			log.WithError(err).Warn("Failed to close providers")
		}
	}
	if bootstrap {
		report, err := svc.Bootstrap(ctx)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		if report != nil {
			console.WriteReport(cmd.ErrOrStderr(), report)
		}
	}
	return svc, closeFn, nil
}

func runConsole(cmd *cobra.Command, _ []string) error {
	svc, closeFn, err := openService(cmd, true)
	if err != nil {
		return err
	}
	defer closeFn()

	yes, _ := cmd.Flags().GetBool("yes")
	err = console.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), svc, console.Options{
		Prompt:    console.DefaultPrompt,
		AssumeYes: yes,
		Log:       logger.New("docqa-cli"),
	})
	if err == context.Canceled {
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	}
	return err
}
