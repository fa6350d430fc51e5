package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRestoreCommand() *cobra.Command {
	var (
		backupFile string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore the local run ledger and project configuration from backup",
		Long: `Restore a local workspace from a backup archive created by 'foundry backup'.

WARNING: This will replace the current run ledger and configuration.

The restore process:
  - Validates backup integrity
  - Extracts the backup archive
  - Restores the run ledger and configuration file(s)
  - Verifies the restored ledger opens cleanly`,
		Example: `  # Restore from backup
  foundry restore --from backup.tar.gz

  # Force restore without confirmation
  foundry restore --from backup.tar.gz --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().
				Str("from", backupFile).
				Bool("force", force).
				Msg("Restoring from backup")

			// TODO: Implement restore
			// - Validate backup file exists and is readable
			// - Prompt for confirmation unless --force
			// - Extract backup archive
			// - Restore the run ledger file
			// - Restore the project configuration file(s)
			// - Verify the restored ledger opens cleanly

			fmt.Println("Not implemented yet: restore from backup")
			fmt.Printf("Would restore from backup: file=%s, force=%v\n", backupFile, force)

			return nil
		},
	}

	cmd.Flags().StringVar(&backupFile, "from", "", "backup file to restore from")
	cmd.Flags().BoolVar(&force, "force", false, "skip confirmation prompt")
	cmd.MarkFlagRequired("from")

	return cmd
}
