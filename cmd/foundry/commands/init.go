package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/foundrycore/foundry/pkg/statestore"
)

func newInitCommand() *cobra.Command {
	var (
		solo bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a foundry project workspace",
		Long: `Initialize a new foundry project workspace with a starter configuration
and local data directory.

The --solo flag initializes a standalone workspace backed by the local
run ledger only, suitable for single-machine development before a
coordination or OLAP-native backend is configured.`,
		Example: `  # Initialize a standalone workspace
  foundry init --solo

  # Initialize with a custom config path
  foundry init --solo --config ./config/foundry.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().
				Bool("solo", solo).
				Str("config", configPath).
				Msg("Initializing workspace")

			ctx := context.Background()

			dataDir := "./data"
			if configPath != "" {
				dataDir = filepath.Join(filepath.Dir(configPath), "data")
			}

			fmt.Printf("Initializing foundry workspace in %s\n\n", dataDir)

			if err := os.MkdirAll(dataDir, 0700); err != nil {
				return fmt.Errorf("create data directory %s: %w", dataDir, err)
			}
			fmt.Printf("created directory: %s\n", dataDir)

			ledgerPath := filepath.Join(dataDir, "ledger.db")
			ledger, err := statestore.NewLedger(ctx, ledgerPath)
			if err != nil {
				return fmt.Errorf("initialize run ledger: %w", err)
			}
			defer ledger.Close()
			fmt.Printf("initialized run ledger: %s\n", ledgerPath)

			if configPath == "" {
				configPath = "./foundry.cue"
			}

			if _, err := os.Stat(configPath); err == nil {
				fmt.Printf("config file already exists: %s\n", configPath)
			} else {
				if err := os.WriteFile(configPath, []byte(starterConfig), 0644); err != nil {
					return fmt.Errorf("write config file %s: %w", configPath, err)
				}
				fmt.Printf("created config file: %s\n", configPath)
			}

			fmt.Printf("\nWorkspace initialized successfully.\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Edit %s with your databases, clusters, and backend settings\n", configPath)
			fmt.Printf("  2. foundry validate\n")
			fmt.Printf("  3. foundry plan --out plan.json\n")

			return nil
		},
	}

	cmd.Flags().BoolVar(&solo, "solo", false, "initialize a standalone workspace (local ledger only)")
	cmd.MarkFlagRequired("solo")

	return cmd
}

const starterConfig = `// foundry project configuration
project: {
	default_database: "analytics"
	is_production:     false
	olap_enabled:       true
	databases: ["analytics"]
	clusters: []

	backend: {
		type:            "olap_native"
		clickhouse_dsn:  "clickhouse://default:@localhost:9000/analytics"
		map_table:       "foundry_infra_map"
		lock_table:      "foundry_migration_lock"
	}
}
`
