// File: cmd/launch_chrome.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quietops/linkhawk/internal/executor"
	"github.com/quietops/linkhawk/internal/observability"
)

var launchChromeCmd = &cobra.Command{
	Use:   "launch-chrome",
	Short: "Launch a debuggable Chrome for the persistent session",
	Long: "Starts Chrome with remote debugging enabled and a persistent profile. " +
		"Log in to LinkedIn once in the launched browser; later runs attach to it " +
		"and reuse the authenticated session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		launcher, err := executor.NewLauncher(cfg.Executor, logger)
		if err != nil {
			return err
		}
		if err := launcher.Start(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"Chrome running with remote debugging on port %d. Press Ctrl+C to stop.\n",
			cfg.Executor.DebugPort)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		exited := make(chan error, 1)
		go func() { exited <- launcher.Wait() }()

		select {
		case err := <-exited:
			// The operator closed the browser themselves.
			return err
		case sig := <-sigCh:
			logger.Info("Stopping Chrome", zap.String("signal", sig.String()))
			return launcher.Stop(5 * time.Second)
		}
	},
}

func init() {
	rootCmd.AddCommand(launchChromeCmd)
}
