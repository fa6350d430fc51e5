package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/foundrycore/foundry/pkg/executor"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/reality"
)

func newPlanCommand() *cobra.Command {
	var (
		outFile string
		server  string
		token   string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the pending infrastructure changes",
		Long: `Compute the diff between the current infrastructure map and the target
the running project describes, per the client-side planning mode of §4.5(c).

With --server, the target map is fetched from a running admin HTTP surface
(/admin/inframap, falling back to the legacy /admin/plan protocol). Without
it, the target is reconciled directly against the live database and any
persisted state (serverless mode).`,
		Example: `  # Plan against a running dev server
  foundry plan --server http://localhost:4000 --out plan.json

  # Plan directly against the database (serverless)
  foundry plan --out plan.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadProjectConfig(ctx, configPath)
			if err != nil {
				return err
			}

			storage, closeStorage, err := openStateStorage(cfg)
			if err != nil {
				return fmt.Errorf("open state storage: %w", err)
			}
			defer closeStorage()

			chClient, err := openOlapClient(cfg)
			if err != nil {
				return fmt.Errorf("open olap client: %w", err)
			}
			var olap reality.OlapClient
			if chClient != nil {
				olap = chClient
				defer chClient.Close()
			}

			source := executor.NewRemotePlanner(http.DefaultClient, server, token, olap, storage)

			project := infra.Project{DefaultDatabase: cfg.DefaultDatabase, IsProduction: cfg.IsProduction}
			target, err := source.LoadTarget(ctx, project, cfg.Databases)
			if err != nil {
				return fmt.Errorf("load target infrastructure map: %w", err)
			}

			current, err := storage.LoadMap(ctx)
			if err != nil {
				return fmt.Errorf("load current infrastructure map: %w", err)
			}
			if current == nil {
				current = infra.EmptyFromProject(project)
			}

			changes := executor.DiffLocally(current, target, cfg)

			plan := infra.InfraPlan{TargetInfraMap: target, Changes: changes}
			encoded, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return fmt.Errorf("encode plan: %w", err)
			}
			if err := os.WriteFile(outFile, encoded, 0644); err != nil {
				return fmt.Errorf("write plan file %s: %w", outFile, err)
			}

			log.Info().
				Bool("empty", changes.Empty()).
				Int("table_changes", len(changes.Tables)).
				Int("materialized_view_changes", len(changes.MaterializedViews)).
				Int("view_changes", len(changes.Views)).
				Int("sql_resource_changes", len(changes.SqlResources)).
				Str("out", outFile).
				Msg("Plan computed")

			if changes.Empty() {
				fmt.Println("No changes. Infrastructure is up to date.")
			} else {
				fmt.Printf("Plan written to %s: %d table change(s), %d materialized view change(s), %d view change(s), %d SQL resource change(s)\n",
					outFile, len(changes.Tables), len(changes.MaterializedViews), len(changes.Views), len(changes.SqlResources))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "plan.json", "output plan file path")
	cmd.Flags().StringVar(&server, "server", "", "admin HTTP surface base URL (empty selects serverless mode)")
	cmd.Flags().StringVar(&token, "token", "", "admin bearer token (full-server mode only)")

	return cmd
}
