package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/foundrycore/foundry/pkg/executor"
	"github.com/foundrycore/foundry/pkg/infra"
)

func newApplyCommand() *cobra.Command {
	var (
		planFile string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute a previously computed plan",
		Long: `Execute a plan file generated by 'foundry plan' against the live database,
via the live-executor mode of §4.5(a): drop dependent streaming processes,
drop orphaned materialized views, apply table changes in dependency order,
create materialized views, then recreate streaming processes.

The applied plan's target map is persisted as the new current state on
success.`,
		Example: `  # Apply a previously generated plan
  foundry apply --plan plan.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			raw, err := os.ReadFile(planFile)
			if err != nil {
				return fmt.Errorf("read plan file %s: %w", planFile, err)
			}
			var plan infra.InfraPlan
			if err := json.Unmarshal(raw, &plan); err != nil {
				return fmt.Errorf("decode plan file %s: %w", planFile, err)
			}

			cfg, err := loadProjectConfig(ctx, configPath)
			if err != nil {
				return err
			}

			storage, closeStorage, err := openStateStorage(cfg)
			if err != nil {
				return fmt.Errorf("open state storage: %w", err)
			}
			defer closeStorage()

			db, err := openClickHouseDB(cfg)
			if err != nil {
				return fmt.Errorf("open clickhouse connection: %w", err)
			}
			defer db.Close()

			log.Info().
				Str("plan", planFile).
				Int("table_changes", len(plan.Changes.Tables)).
				Msg("Applying plan")

			if plan.Changes.Empty() {
				fmt.Println("Plan is empty. Nothing to apply.")
				return nil
			}

			exec := executor.NewLiveExecutor(db, storage)
			if err := exec.Apply(ctx, &plan); err != nil {
				return fmt.Errorf("apply plan: %w", err)
			}

			fmt.Printf("Applied %d table change(s), %d materialized view change(s), %d view change(s), %d SQL resource change(s)\n",
				len(plan.Changes.Tables), len(plan.Changes.MaterializedViews), len(plan.Changes.Views), len(plan.Changes.SqlResources))

			return nil
		},
	}

	cmd.Flags().StringVarP(&planFile, "plan", "p", "plan.json", "plan file to execute")
	cmd.MarkFlagRequired("plan")

	return cmd
}
