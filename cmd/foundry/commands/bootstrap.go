package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-redis/redis/v8"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/reality"
	"github.com/foundrycore/foundry/pkg/statestore"
)

// prebuiltMapPath is the interchange artifact a generated project's
// build step writes and the planner prefers in production (§4.4 step
// 1); the standalone CLI's dev loop reads the same file regardless of
// is_production, since it has no other way to obtain a target map
// without embedding the user's own codebase as a Go import.
const prebuiltMapPath = ".moose/infrastructure_map.json"

// prebuiltLoader is the infra.UserCodeLoader the standalone CLI
// supplies to pkg/planner: it always reads the prebuilt map rather
// than invoking a typed codebase (out of scope for this module; see
// infra.UserCodeLoader's doc comment).
type prebuiltLoader struct {
	projectRoot string
}

func (l prebuiltLoader) Load(project infra.Project, resolveCredentials bool) (*infra.Map, error) {
	path := filepath.Join(l.projectRoot, prebuiltMapPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prebuilt infrastructure map %s: %w", path, err)
	}
	var m infra.Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse prebuilt infrastructure map %s: %w", path, err)
	}
	return &m, nil
}

// loadProjectConfig parses project configuration from the --config
// path (or the current directory when unset), returning the first
// validation error as a plain error for CLI reporting.
func loadProjectConfig(ctx context.Context, path string) (*config.ProjectConfig, error) {
	sources := []string{"."}
	if path != "" {
		sources = []string{path}
	}

	result, err := config.NewLoader().Parse(ctx, sources)
	if err != nil {
		return nil, fmt.Errorf("parse project config: %w", err)
	}
	if !result.OK() {
		return nil, fmt.Errorf("project config is invalid: %s", result.Errors[0].Message)
	}
	return result.Config, nil
}

// openStateStorage builds the StateStorage backend cfg.Backend
// selects. The returned closer releases the underlying connection
// (Redis client or ClickHouse pool); callers should defer it.
func openStateStorage(cfg *config.ProjectConfig) (statestore.StateStorage, func() error, error) {
	switch cfg.Backend.Type {
	case config.BackendCoordination:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Backend.RedisAddr,
			Password: cfg.Backend.RedisPassword,
		})
		mapKey := cfg.Backend.RedisMapKey
		if mapKey == "" {
			mapKey = "foundry:infra_map"
		}
		return statestore.NewRedisStore(client, mapKey), client.Close, nil

	case config.BackendOlapNative:
		opts, err := clickhouse.ParseDSN(cfg.Backend.ClickHouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse clickhouse dsn: %w", err)
		}
		db := clickhouse.OpenDB(opts)
		mapTable := cfg.Backend.MapTable
		if mapTable == "" {
			mapTable = "foundry_infra_map"
		}
		lockTable := cfg.Backend.LockTable
		if lockTable == "" {
			lockTable = "foundry_migration_lock"
		}
		store := statestore.NewOlapStore(db, mapTable, lockTable)
		return store, db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}
}

// openOlapClient opens the ClickHouse reality-check connection, or
// returns a nil client when the project has OLAP disabled.
func openOlapClient(cfg *config.ProjectConfig) (*reality.ClickHouseClient, error) {
	if !cfg.OlapEnabled {
		return nil, nil
	}
	dsn := cfg.Backend.ClickHouseDSN
	if dsn == "" {
		return nil, fmt.Errorf("olap is enabled but no clickhouse dsn is configured")
	}
	return reality.NewClickHouseClient(dsn)
}

// openClickHouseDB opens a raw ClickHouse connection for the
// executor's live-DDL surface, distinct from the reality client and
// the OLAP-native storage backend even though all three may point at
// the same cluster.
func openClickHouseDB(cfg *config.ProjectConfig) (*sql.DB, error) {
	if cfg.Backend.ClickHouseDSN == "" {
		return nil, fmt.Errorf("no clickhouse dsn configured")
	}
	opts, err := clickhouse.ParseDSN(cfg.Backend.ClickHouseDSN)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	return clickhouse.OpenDB(opts), nil
}
