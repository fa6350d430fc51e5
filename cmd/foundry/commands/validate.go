package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/foundrycore/foundry/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate project configuration",
		Long: `Validate project configuration (CUE) against its schema.

This command checks:
  - CUE syntax validity
  - Schema conformance (default_database, backend, clusters, ...)
  - Struct-tag validation on the decoded ProjectConfig`,
		Example: `  # Validate config in current directory
  foundry validate

  # Validate a specific directory or file
  foundry validate ./config`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			log.Info().Str("path", path).Msg("Validating project configuration")

			result, err := config.NewLoader().Parse(ctx, []string{path})
			if err != nil {
				return fmt.Errorf("parse configuration at %s: %w", path, err)
			}

			if result.OK() {
				fmt.Printf("Configuration is valid (%d source file(s))\n", len(result.SourceFiles))
				return nil
			}

			fmt.Printf("Configuration has %d error(s):\n", len(result.Errors))
			for _, verr := range result.Errors {
				if verr.File != "" {
					fmt.Printf("  [%s] %s:%d:%d %s\n", verr.Severity, verr.File, verr.Line, verr.Column, verr.Message)
				} else {
					fmt.Printf("  [%s] %s\n", verr.Severity, verr.Message)
				}
			}

			return fmt.Errorf("configuration validation failed with %d error(s)", len(result.Errors))
		},
	}

	return cmd
}
