package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/ferr"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/reality"
)

// adminInfraMapPath is the full-server source shape of §4.5(c).
const adminInfraMapPath = "/admin/inframap"

// legacyAdminPlanPath is the fallback protocol when inframap is 404,
// for servers predating the protobuf wire format.
const legacyAdminPlanPath = "/admin/plan"

// RemoteSource fetches the target map either from a full Moose server
// (HTTP) or directly from the live database plus optional state
// store (serverless), per §4.5(c).
type RemoteSource struct {
	HTTPClient *http.Client
	BaseURL    string // full-server mode; empty selects serverless mode
	Token      string

	Olap    reality.OlapClient // serverless mode
	Storage interface {
		LoadMap(ctx context.Context) (*infra.Map, error)
	}
}

// NewRemotePlanner constructs a RemoteSource for client-side `moose
// plan` / `moose generate migration`.
func NewRemotePlanner(httpClient *http.Client, baseURL, token string, olap reality.OlapClient, storage interface {
	LoadMap(ctx context.Context) (*infra.Map, error)
}) *RemoteSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RemoteSource{HTTPClient: httpClient, BaseURL: baseURL, Token: token, Olap: olap, Storage: storage}
}

// LoadTarget fetches the target map, preferring the full-server
// protobuf endpoint when BaseURL is set, falling back to the legacy
// plan endpoint on 404, or connecting directly to the live database
// otherwise.
func (r *RemoteSource) LoadTarget(ctx context.Context, project infra.Project, databases []string) (*infra.Map, error) {
	if r.BaseURL != "" {
		return r.loadFromServer(ctx)
	}
	return r.loadServerless(ctx, project, databases)
}

func (r *RemoteSource) loadFromServer(ctx context.Context) (*infra.Map, error) {
	m, err := r.getInfraMap(ctx)
	if err == nil {
		return m, nil
	}
	var notFound *httpStatusError
	if asHTTPStatusError(err, &notFound) && notFound.Status == http.StatusNotFound {
		return r.getLegacyPlan(ctx)
	}
	return nil, err
}

type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("admin server returned %d: %s", e.Status, e.Body)
}

func asHTTPStatusError(err error, target **httpStatusError) bool {
	he, ok := err.(*httpStatusError)
	if ok {
		*target = he
	}
	return ok
}

func (r *RemoteSource) getInfraMap(ctx context.Context) (*infra.Map, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+adminInfraMapPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/protobuf")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindTimeout, "fetch_inframap", "request to admin server failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var m infra.Map
	if err := m.UnmarshalBinary(body); err != nil {
		return nil, ferr.Wrap(ferr.KindWire, "decode_inframap", "failed to decode protobuf infrastructure map", err)
	}
	return &m, nil
}

// getLegacyPlan implements the "legacy-server detection" fallback:
// servers predating the protobuf wire format expose /admin/plan
// instead, returning a JSON-encoded map.
func (r *RemoteSource) getLegacyPlan(ctx context.Context) (*infra.Map, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+legacyAdminPlanPath, nil)
	if err != nil {
		return nil, err
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindTimeout, "fetch_legacy_plan", "request to legacy admin endpoint failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &httpStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var m infra.Map
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, ferr.Wrap(ferr.KindWire, "decode_legacy_plan", "failed to decode legacy admin plan response", err)
	}
	return &m, nil
}

func (r *RemoteSource) loadServerless(ctx context.Context, project infra.Project, databases []string) (*infra.Map, error) {
	persisted, err := r.Storage.LoadMap(ctx)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindDB, "load_persisted_map", "serverless mode: failed to load persisted state", err)
	}
	if persisted == nil {
		persisted = infra.EmptyFromProject(project)
	}
	if r.Olap == nil {
		return persisted, nil
	}
	reconciled, err := reality.Reconcile(ctx, persisted, project, r.Olap, databases, persisted.AllTableIDs())
	if err != nil {
		return nil, ferr.Wrap(ferr.KindRealityCheck, "reconcile", "serverless mode: reality reconciliation failed", err)
	}
	return reconciled, nil
}

// DiffLocally produces the client-side plan of §4.5(c): diff the
// loaded target against current, ready to display or write to YAML.
func DiffLocally(current, target *infra.Map, cfg *config.ProjectConfig) infra.InfraChanges {
	ignoreOps := infra.IgnoreOps{
		TableTTL:       cfg.IgnoreOperations.TableTTL,
		ColumnTTL:      cfg.IgnoreOperations.ColumnTTL,
		PartitionBy:    cfg.IgnoreOperations.PartitionBy,
		ColumnComments: cfg.IgnoreOperations.ColumnComments,
	}
	return infra.DiffWithTableStrategy(current, target, true, cfg.IsProduction, ignoreOps)
}
