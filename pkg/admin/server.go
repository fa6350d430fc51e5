package admin

import (
	"net/http"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/reality"
	"github.com/foundrycore/foundry/pkg/statestore"
)

// MapSource supplies the current target infrastructure map. In dev
// this is a *devloop.SharedMap (which satisfies this interface without
// either package importing the other); in prod boot without a watcher
// it can be a trivial fixed-value implementation.
type MapSource interface {
	Get() *infra.Map
}

// staticMap is the fixed-value MapSource prod boot without a dev
// loop uses.
type staticMap struct{ m *infra.Map }

func (s staticMap) Get() *infra.Map { return s.m }

// StaticMap wraps a fixed map as a MapSource.
func StaticMap(m *infra.Map) MapSource { return staticMap{m} }

// Server implements the four endpoints of §4.8 on the management port.
type Server struct {
	Auth      *TokenAuth
	Current   MapSource
	Storage   statestore.StateStorage
	Olap      reality.OlapClient // nil when the project has OLAP disabled
	Config    *config.ProjectConfig
	Databases []string
}

// NewServer constructs a Server; cfg.Databases is used when Databases
// isn't separately overridden.
func NewServer(auth *TokenAuth, current MapSource, storage statestore.StateStorage, olap reality.OlapClient, cfg *config.ProjectConfig) *Server {
	return &Server{Auth: auth, Current: current, Storage: storage, Olap: olap, Config: cfg, Databases: cfg.Databases}
}

// Handler builds the routed, authenticated http.Handler for the
// management port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/inframap", s.handleInfraMap)
	mux.HandleFunc("/admin/reality-check", s.handleRealityCheck)
	mux.HandleFunc("/admin/integrate-changes", s.handleIntegrateChanges)
	mux.HandleFunc("/admin/plan", s.handlePlan)
	return s.Auth.Middleware(mux)
}
