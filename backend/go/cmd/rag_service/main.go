package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/internal/mcp"
	"DocQA/backend/go/internal/rag_service/api"
	"DocQA/backend/go/internal/rag_service/service"
	apphttp "DocQA/backend/go/pkg/http"
	"DocQA/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var (
	configPath string
	transport  string
	bootstrap  bool
)

var rootCmd = &cobra.Command{
	Use:           "rag_service",
	Short:         "Serve questions about a document corpus over HTTP or MCP stdio",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	rootCmd.Flags().StringVar(&transport, "transport", "http", "http or stdio (MCP)")
	rootCmd.Flags().BoolVar(&bootstrap, "bootstrap", true, "create and populate the index on startup if it does not exist")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rag_service: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// 1. 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// 2. 初始化日志。stdout 在 stdio 模式下承载 MCP 协议，日志一律写 stderr。
	logger.Init(cfg.Logger.Level, cfg.Logger.Format, os.Stderr)
	appLogger := logger.New("rag_service").With("index", cfg.Index.Name)
	appLogger.Info(fmt.Sprintf("Starting %s %s (%s)", cfg.App.Name, cfg.App.Version, cfg.App.Environment))

	// 3. 初始化依赖
	svc, err := service.New(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			appLogger.WithError(err).Warn("Failed to close providers")
		}
	}()

	if bootstrap {
		report, err := svc.Bootstrap(ctx)
		if err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
		if report != nil && report.Failed() {
			appLogger.With("failures", len(report.Failures)).Warn("Initial ingestion finished with failures")
		}
	}

	// 4. 启动服务
	switch transport {
	case "stdio":
		appLogger.Info("Serving MCP tools over stdio")
		return server.ServeStdio(mcp.NewServer(svc, cfg.App.Version, appLogger))
	case "http":
		return serveHTTP(ctx, cfg, svc, appLogger)
	default:
		return fmt.Errorf("unknown transport %q", transport)
	}
}

func serveHTTP(ctx context.Context, cfg *config.AppConfig, svc *service.Service, log *logger.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	srv, err := apphttp.NewServer(cfg, log)
	if err != nil {
		return err
	}
	api.NewHandler(svc, log).Register(srv.Engine())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// 5. 优雅关闭
	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Server gracefully stopped")
	return nil
}
