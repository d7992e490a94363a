// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quietops/linkhawk/api/schemas"
	"github.com/quietops/linkhawk/internal/observability"
	"github.com/quietops/linkhawk/internal/prompt"
)

var runSkipEnhance bool

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Transform a request and execute it against the platform",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		llm, err := buildLLM(cfg, logger)
		if err != nil {
			return err
		}
		orchestrator, manager := buildHarvester(cfg, llm, logger)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := manager.Close(closeCtx); err != nil {
				logger.Warn("Error closing session", zap.Error(err))
			}
		}()

		instruction := strings.Join(args, " ")
		if !runSkipEnhance {
			transformer := prompt.NewTransformer(cfg.Transform, llm, logger)
			instruction, err = transformer.Enhance(cmd.Context(), instruction)
			if err != nil {
				return err
			}
		}

		result, err := orchestrator.Harvest(cmd.Context(), instruction)
		if err != nil {
			return err
		}
		return printResult(cmd, result)
	},
}

func printResult(cmd *cobra.Command, result schemas.HarvestResult) error {
	out := cmd.OutOrStdout()
	if result.Kind == schemas.ResultConfirmation {
		fmt.Fprintln(out, result.Confirmation)
		return nil
	}

	encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result.Posts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode posts: %w", err)
	}
	fmt.Fprintln(out, string(encoded))
	if result.Dropped > 0 {
		fmt.Fprintf(out, "(%d invalid record(s) dropped)\n", result.Dropped)
	}
	return nil
}

func init() {
	runCmd.Flags().BoolVar(&runSkipEnhance, "raw", false, "dispatch the prompt as-is without enhancement")
	rootCmd.AddCommand(runCmd)
}
