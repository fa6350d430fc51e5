package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/foundrycore/foundry/pkg/executor"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/reality"
)

func newCheckCommand() *cobra.Command {
	var (
		writeInfraMap bool
		server        string
		token         string
		dotFile       string
	)

	cmd := &cobra.Command{
		Use:   "check [path]",
		Short: "Load and validate the target infrastructure map",
		Long: `Load the project's target infrastructure map, validate it, and report
what it contains.

With --write-infra-map, also writes it to .moose/infrastructure_map.json
(the interchange artifact 'foundry dev' reads as its target map). With --dot, writes a Graphviz DOT rendering of the
pending changes' dependency order to the given file, for inspecting
plan ordering.`,
		Example: `  # Validate target and write the infrastructure map artifact
  foundry check --write-infra-map

  # Also emit a DOT graph of the pending change order
  foundry check --write-infra-map --dot changes.dot`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			cfg, err := loadProjectConfig(ctx, path)
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

			if err := target.Validate(); err != nil {
				return fmt.Errorf("target infrastructure map is invalid: %w", err)
			}

			fmt.Printf("Target infrastructure map is valid: %d table(s), %d materialized view(s), %d sql resource(s)\n",
				len(target.Tables), len(target.MaterializedViews), len(target.SqlResources))

			if writeInfraMap {
				outPath := filepath.Join(path, prebuiltMapPath)
				if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
					return fmt.Errorf("create %s: %w", filepath.Dir(outPath), err)
				}
				encoded, err := json.MarshalIndent(target, "", "  ")
				if err != nil {
					return fmt.Errorf("encode infrastructure map: %w", err)
				}
				if err := os.WriteFile(outPath, encoded, 0644); err != nil {
					return fmt.Errorf("write %s: %w", outPath, err)
				}
				log.Info().Str("path", outPath).Msg("Wrote infrastructure map")
				fmt.Printf("Wrote %s\n", outPath)
			}

			if dotFile != "" {
				current, err := storage.LoadMap(ctx)
				if err != nil {
					return fmt.Errorf("load current infrastructure map: %w", err)
				}
				if current == nil {
					current = infra.EmptyFromProject(project)
				}
				changes := executor.DiffLocally(current, target, cfg)
				dot := infra.ChangesToDOT(&changes, target)
				if err := os.WriteFile(dotFile, []byte(dot), 0644); err != nil {
					return fmt.Errorf("write %s: %w", dotFile, err)
				}
				fmt.Printf("Wrote dependency graph to %s\n", dotFile)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&writeInfraMap, "write-infra-map", false, "write .moose/infrastructure_map.json")
	cmd.Flags().StringVar(&server, "server", "", "admin HTTP surface base URL (empty selects serverless mode)")
	cmd.Flags().StringVar(&token, "token", "", "admin bearer token (full-server mode only)")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write a Graphviz DOT graph of pending change ordering to this file")

	return cmd
}
