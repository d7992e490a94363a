// File: cmd/enhance.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quietops/linkhawk/internal/observability"
	"github.com/quietops/linkhawk/internal/prompt"
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance <prompt>",
	Short: "Transform a plain-language request into a detailed automation plan",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		llm, err := buildLLM(cfg, logger)
		if err != nil {
			return err
		}
		transformer := prompt.NewTransformer(cfg.Transform, llm, logger)

		enhanced, err := transformer.Enhance(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), enhanced)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enhanceCmd)
}
