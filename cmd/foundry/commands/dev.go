package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/foundrycore/foundry/pkg/admin"
	"github.com/foundrycore/foundry/pkg/devloop"
	"github.com/foundrycore/foundry/pkg/executor"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/planner"
	"github.com/foundrycore/foundry/pkg/reality"
)

func newDevCommand() *cobra.Command {
	var (
		addr    string
		watch   string
		token   string
	)

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Run the dev loop against a watched project directory",
		Long: `Run the Dev Loop & Watcher (§4.6): watch the project directory for
changes, debounce bursts into a single reload, re-plan and apply against
the live database, reconcile the process registry, and serve the admin
HTTP surface off the reconciled map.

This command uses the prebuilt infrastructure-map artifact a project's
build step writes at .moose/infrastructure_map.json as its target, since
parsing a user's typed codebase directly is outside this module's scope.`,
		Example: `  # Watch the current directory and serve the admin surface on :4000
  foundry dev --watch . --addr :4000`,
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
			if chClient != nil {
				defer chClient.Close()
			}

			db, err := openClickHouseDB(cfg)
			if err != nil {
				return fmt.Errorf("open clickhouse connection: %w", err)
			}
			defer db.Close()

			var olap reality.OlapClient
			if chClient != nil {
				olap = chClient
			}

			p := planner.New(prebuiltLoader{projectRoot: watch}, storage, olap, nil, watch)
			exec := executor.NewLiveExecutor(db, storage)
			registry := devloop.NewRegistry(noopProcessManager{})
			coordinator := &devloop.Coordinator{}

			current, _, err := p.PlanChanges(ctx, cfg)
			if err != nil || current == nil {
				if err != nil {
					log.Warn().Err(err).Msg("initial plan failed; serving with an empty map until the first successful reload")
				}
				current = infra.EmptyFromProject(infra.Project{DefaultDatabase: cfg.DefaultDatabase, IsProduction: cfg.IsProduction})
			}
			shared := devloop.NewSharedMap(current)

			reloader := devloop.NewReloader(p, exec, registry, coordinator, shared)

			watcher, err := devloop.NewWatcher(watch, devloop.DebounceInterval)
			if err != nil {
				return fmt.Errorf("start watcher on %s: %w", watch, err)
			}
			defer watcher.Close()

			go watcher.Run(ctx)
			go reloader.Run(ctx, watcher.Changed(), cfg)

			auth := admin.NewTokenAuth(cfg, token)
			server := admin.NewServer(auth, shared, storage, olap, cfg)

			log.Info().Str("addr", addr).Str("watch", watch).Msg("Dev loop serving admin surface")
			fmt.Printf("Watching %s, serving admin surface on %s\n", watch, addr)

			httpServer := &http.Server{Addr: addr, Handler: server.Handler()}
			go func() {
				<-ctx.Done()
				_ = httpServer.Close()
			}()

			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("admin server: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":4000", "admin HTTP surface listen address")
	cmd.Flags().StringVar(&watch, "watch", ".", "project directory to watch")
	cmd.Flags().StringVar(&token, "token", os.Getenv("MOOSE_ADMIN_TOKEN"), "admin bearer token override")

	return cmd
}

// noopProcessManager is the ProcessManager the standalone CLI uses
// when it has no generated project process to start/stop: spawning
// and supervising user-code worker processes is outside this
// module's scope (the same boundary infra.UserCodeLoader draws for
// loading the target map), so the registry tracks view changes
// without actually running anything.
type noopProcessManager struct{}

func (noopProcessManager) Start(ctx context.Context, spec devloop.ProcessSpec) error { return nil }
func (noopProcessManager) Stop(ctx context.Context, spec devloop.ProcessSpec) error  { return nil }
