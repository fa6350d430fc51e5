package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/reality"
)

func newDriftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Reality-check management",
		Long: `Compare persisted state against what the live OLAP database actually
holds, per the Reality Reconciler (§4.3).

Drift occurs when a table recorded in the current infrastructure map no
longer matches (or no longer exists in) the live database, or when the
live database holds a table the map doesn't know about.`,
	}

	cmd.AddCommand(newDriftDetectCommand())
	cmd.AddCommand(newDriftReconcileCommand())

	return cmd
}

func newDriftDetectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Report discrepancies between persisted state and live reality",
		Long: `Detect reality-check discrepancies by comparing the persisted
infrastructure map with the live database's system.tables/system.columns.

Reports missing tables (recorded but absent live), unmapped tables (live
but unrecorded), and mismatched tables (recorded and live disagree on
columns, order-by, engine, or TTL). Partition-by is not compared.`,
		Example: `  # Detect drift against the configured project
  foundry drift detect`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadProjectConfig(ctx, configPath)
			if err != nil {
				return err
			}

			client, err := openOlapClient(cfg)
			if err != nil {
				return fmt.Errorf("open olap client: %w", err)
			}
			if client == nil {
				return fmt.Errorf("olap is disabled for this project; nothing to reality-check")
			}
			defer client.Close()

			storage, closeStorage, err := openStateStorage(cfg)
			if err != nil {
				return fmt.Errorf("open state storage: %w", err)
			}
			defer closeStorage()

			project := infra.Project{DefaultDatabase: cfg.DefaultDatabase, IsProduction: cfg.IsProduction}
			candidate, err := storage.LoadMap(ctx)
			if err != nil {
				return fmt.Errorf("load current infrastructure map: %w", err)
			}
			if candidate == nil {
				candidate = infra.EmptyFromProject(project)
			}

			discrepancies, err := reality.Discrepancies(ctx, candidate, client, cfg.Databases)
			if err != nil {
				return fmt.Errorf("compute discrepancies: %w", err)
			}

			log.Info().
				Int("missing", len(discrepancies.MissingTables)).
				Int("unmapped", len(discrepancies.UnmappedTables)).
				Int("mismatched", len(discrepancies.MismatchedTables)).
				Msg("Reality check complete")

			if len(discrepancies.MissingTables) == 0 && len(discrepancies.UnmappedTables) == 0 && len(discrepancies.MismatchedTables) == 0 {
				fmt.Println("No drift detected. Recorded state matches live reality.")
				return nil
			}

			for _, id := range discrepancies.MissingTables {
				fmt.Printf("missing (recorded, not live):   %s\n", id)
			}
			for _, id := range discrepancies.UnmappedTables {
				fmt.Printf("unmapped (live, not recorded):   %s\n", id)
			}
			for _, id := range discrepancies.MismatchedTables {
				fmt.Printf("mismatched (recorded != live):   %s\n", id)
			}

			return nil
		},
	}

	return cmd
}

func newDriftReconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Align persisted state with live reality",
		Long: `Reconcile the persisted infrastructure map against the live database,
per §4.3: missing tables are dropped from the map and mismatched tables
are replaced by the live definition while preserving non-structural
candidate fields. Unmapped live tables are not added: the adoption
whitelist passed to the reconciler is the map's own table ids. The reconciled map is persisted as the new current
state.`,
		Example: `  # Reconcile recorded state with live reality
  foundry drift reconcile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadProjectConfig(ctx, configPath)
			if err != nil {
				return err
			}

			client, err := openOlapClient(cfg)
			if err != nil {
				return fmt.Errorf("open olap client: %w", err)
			}
			if client == nil {
				return fmt.Errorf("olap is disabled for this project; nothing to reconcile")
			}
			defer client.Close()

			storage, closeStorage, err := openStateStorage(cfg)
			if err != nil {
				return fmt.Errorf("open state storage: %w", err)
			}
			defer closeStorage()

			project := infra.Project{DefaultDatabase: cfg.DefaultDatabase, IsProduction: cfg.IsProduction}
			candidate, err := storage.LoadMap(ctx)
			if err != nil {
				return fmt.Errorf("load current infrastructure map: %w", err)
			}
			if candidate == nil {
				candidate = infra.EmptyFromProject(project)
			}

			reconciled, err := reality.Reconcile(ctx, candidate, project, client, cfg.Databases, candidate.AllTableIDs())
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}

			if err := storage.SaveMap(ctx, reconciled); err != nil {
				return fmt.Errorf("persist reconciled map: %w", err)
			}

			log.Info().Int("tables", len(reconciled.Tables)).Msg("Reconciled current state with live reality")
			fmt.Printf("Reconciled. Current state now has %d table(s).\n", len(reconciled.Tables))

			return nil
		},
	}

	return cmd
}
