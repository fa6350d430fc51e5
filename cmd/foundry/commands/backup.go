package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newBackupCommand() *cobra.Command {
	var (
		outFile  string
		compress bool
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Backup the local run ledger and project configuration",
		Long: `Create a backup of the local workspace: the run ledger (migration/
execution history) and project configuration. This does not back up the
authoritative infrastructure state, which lives in whichever StateStorage
backend the project configures (coordination or OLAP-native) and should be
backed up through that backend's own tooling.`,
		Example: `  # Create compressed backup
  foundry backup --out backup.tar.gz --compress

  # Simple backup
  foundry backup --out backup.tar`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().
				Str("out", outFile).
				Bool("compress", compress).
				Msg("Creating backup")

			// TODO: Implement backup
			// - Hot-copy the run ledger (VACUUM INTO)
			// - Archive the project configuration file(s)
			// - Create tar/tar.gz archive
			// - Verify backup integrity

			fmt.Println("Not implemented yet: backup creation")
			fmt.Printf("Would create backup: out=%s, compress=%v\n", outFile, compress)

			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "foundry-backup.tar.gz", "backup output file")
	cmd.Flags().BoolVar(&compress, "compress", true, "compress backup with gzip")

	return cmd
}
