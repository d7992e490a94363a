// File: cmd/serve.go
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quietops/linkhawk/internal/observability"
	"github.com/quietops/linkhawk/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service exposing enhancement and execution endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		llm, err := buildLLM(cfg, logger)
		if err != nil {
			return err
		}
		orchestrator, manager := buildHarvester(cfg, llm, logger)
		enhancers := newEnhancerFactory(cfg.Transform, llm, logger)
		srv := service.NewServer(cfg.Server, enhancers, orchestrator, manager, logger)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger.Info("Shutting down", zap.String("signal", sig.String()))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown did not complete cleanly", zap.Error(err))
		}
		if err := manager.Close(shutdownCtx); err != nil {
			logger.Warn("Error closing session", zap.Error(err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
