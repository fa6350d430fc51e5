package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/reality"
)

// handleInfraMap implements GET /admin/inframap: content-negotiated
// protobuf (preferred) or JSON, per §4.8.
func (s *Server) handleInfraMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	m := s.Current.Get()
	if strings.Contains(r.Header.Get("Accept"), "application/protobuf") {
		body, err := m.MarshalBinary()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/protobuf")
		w.Write(body)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m)
}

// handleRealityCheck implements GET /admin/reality-check, per §4.3/§4.8.
func (s *Server) handleRealityCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Olap == nil {
		http.Error(w, "olap is disabled for this project", http.StatusConflict)
		return
	}
	report, err := reality.Discrepancies(r.Context(), s.Current.Get(), s.Olap, s.Databases)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

type integrateRequest struct {
	Tables []string `json:"tables"`
}

type integrateResult struct {
	Adopted []string `json:"adopted"`
	Skipped []string `json:"skipped"`
}

// handleIntegrateChanges implements POST /admin/integrate-changes, per
// §4.8: for each requested table id, if the live table structurally
// matches the target map's same-named table, adopt it into persisted
// state as FullyManaged; otherwise skip it.
func (s *Server) handleIntegrateChanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Olap == nil {
		http.Error(w, "olap is disabled for this project", http.StatusConflict)
		return
	}

	var req integrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	target := s.Current.Get()

	live, err := s.Olap.ListTables(ctx, s.Databases)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	liveByID := make(map[string]reality.LiveTable, len(live))
	for _, lt := range live {
		liveByID[reality.LiveTableID(lt, target.DefaultDatabase)] = lt
	}

	current, err := s.Storage.LoadMap(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if current == nil {
		current = infra.EmptyFromProject(infra.Project{DefaultDatabase: target.DefaultDatabase, IsProduction: s.Config.IsProduction})
	}

	result := integrateResult{}
	for _, id := range req.Tables {
		targetTbl, inTarget := target.Tables[id]
		lt, inLive := liveByID[id]
		if !inTarget || !inLive || !reality.TableMatches(targetTbl, lt) {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		adopted := *targetTbl
		adopted.LifeCycle = infra.FullyManaged
		current.Tables[id] = &adopted
		result.Adopted = append(result.Adopted, id)
	}

	if len(result.Adopted) > 0 {
		if err := s.Storage.SaveMap(ctx, current); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// handlePlan implements §4.8's legacy GET fallback (returns the target
// map as JSON, the pre-protobuf shape /admin/inframap superseded) and
// the POST mode (body is a target map; response is the computed
// change list against persisted current state).
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Current.Get())

	case http.MethodPost:
		var target infra.Map
		if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		current, err := s.Storage.LoadMap(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if current == nil {
			current = infra.EmptyFromProject(infra.Project{DefaultDatabase: target.DefaultDatabase, IsProduction: s.Config.IsProduction})
		}
		ignoreOps := infra.IgnoreOps{
			TableTTL:       s.Config.IgnoreOperations.TableTTL,
			ColumnTTL:      s.Config.IgnoreOperations.ColumnTTL,
			PartitionBy:    s.Config.IgnoreOperations.PartitionBy,
			ColumnComments: s.Config.IgnoreOperations.ColumnComments,
		}
		changes := infra.DiffWithTableStrategy(current, &target, true, s.Config.IsProduction, ignoreOps)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(changes)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
