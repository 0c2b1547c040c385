package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hivedhq/hived/internal/agent"
	"github.com/hivedhq/hived/internal/hive"
	"github.com/hivedhq/hived/internal/topology"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Specifications
	mux.HandleFunc("POST /api/specifications", s.createSpecification)
	mux.HandleFunc("GET /api/specifications", s.listSpecifications)
	mux.HandleFunc("GET /api/specifications/{id}", s.getSpecification)
	mux.HandleFunc("GET /api/specifications/{id}/result", s.getSpecificationResult)
	mux.HandleFunc("POST /api/specifications/{id}/cancel", s.cancelSpecification)

	// Agents
	mux.HandleFunc("GET /api/agents", s.listAgents)
	mux.HandleFunc("POST /api/agents", s.spawnAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", s.terminateAgent)
	mux.HandleFunc("GET /api/agents/{id}/context", s.getAgentContext)

	// Topology
	mux.HandleFunc("GET /api/topology", s.getTopology)
	mux.HandleFunc("GET /api/topology/path", s.getTopologyPath)
	mux.HandleFunc("POST /api/topology/switch", s.switchTopology)
	mux.HandleFunc("POST /api/topology/optimize", s.optimizeTopology)

	// Load balancing
	mux.HandleFunc("POST /api/assignments/predict", s.predictAssignment)

	// Memory
	mux.HandleFunc("GET /api/memory/search", s.searchMemory)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
	mux.HandleFunc("GET /api/health", s.getHealth)
}

func (s *Server) createSpecification(w http.ResponseWriter, r *http.Request) {
	var spec agent.Specification
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	accepted, err := s.orch.OrchestrateSpecification(&spec)
	if err != nil {
		if errors.Is(err, hive.ErrNotInitialized) {
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(accepted)
}

func (s *Server) listSpecifications(w http.ResponseWriter, r *http.Request) {
	specs, err := s.bank.ListSpecifications()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, specs)
}

func (s *Server) getSpecification(w http.ResponseWriter, r *http.Request) {
	spec, err := s.bank.GetSpecification(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if spec == nil {
		jsonError(w, "specification not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, spec)
}

func (s *Server) getSpecificationResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.bank.GetExecutionResult(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if result == nil {
		jsonError(w, "no result yet", http.StatusNotFound)
		return
	}
	jsonResponse(w, result)
}

func (s *Server) cancelSpecification(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Cancel(r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]string{"status": "cancelled"})
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.orch.Agents()
	loads := s.orch.Balancer().Loads()

	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		entry := map[string]any{
			"id":           a.ID,
			"type":         a.Type,
			"status":       a.Status,
			"capabilities": a.Capabilities,
			"performance":  a.Performance,
			"last_active":  a.LastActive,
		}
		if l, ok := loads[a.ID]; ok {
			entry["current_load"] = l.CurrentLoad
			entry["max_capacity"] = l.MaxCapacity
			entry["utilization"] = l.Utilization
		}
		out = append(out, entry)
	}
	jsonResponse(w, out)
}

func (s *Server) spawnAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type         string   `json:"type"`
		Capabilities []string `json:"capabilities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	t, err := agent.ParseType(body.Type)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	a, err := s.orch.SpawnSpecializedAgent(t, body.Capabilities)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(a)
}

func (s *Server) terminateAgent(w http.ResponseWriter, r *http.Request) {
	err := s.orch.TerminateAgent(r.PathValue("id"))
	switch {
	case errors.Is(err, hive.ErrQueenImmortal):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, hive.ErrAgentNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	default:
		jsonResponse(w, map[string]string{"status": "terminated"})
	}
}

func (s *Server) getAgentContext(w http.ResponseWriter, r *http.Request) {
	ctx, err := s.bank.GetAgentContext(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ctx == nil {
		jsonError(w, "agent not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, ctx)
}

func (s *Server) getTopology(w http.ResponseWriter, r *http.Request) {
	topo := s.orch.Topology()
	jsonResponse(w, map[string]any{
		"kind":    topo.Kind(),
		"nodes":   topo.Nodes(),
		"edges":   topo.EdgeCount(),
		"metrics": topo.Metrics(),
	})
}

func (s *Server) getTopologyPath(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		jsonError(w, "from and to are required", http.StatusBadRequest)
		return
	}

	path, err := s.orch.Topology().Path(from, to)
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]any{"path": path, "hops": len(path) - 1})
}

func (s *Server) switchTopology(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Topology string `json:"topology"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	kind, err := topology.ParseKind(body.Topology)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := s.orch.SwitchTopology(kind)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]any{
		"topology": s.orch.Topology().Kind(),
		"metrics":  m,
	})
}

func (s *Server) optimizeTopology(w http.ResponseWriter, r *http.Request) {
	opt := s.orch.Optimize()
	jsonResponse(w, opt)
}

func (s *Server) predictAssignment(w http.ResponseWriter, r *http.Request) {
	var task agent.TaskDefinition
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	jsonResponse(w, map[string]any{
		"task_id":    task.ID,
		"candidates": s.orch.Balancer().Predict(task),
	})
}

func (s *Server) searchMemory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		jsonError(w, "q is required", http.StatusBadRequest)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	results, err := s.bank.Query(q, limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, results)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.orch.HiveStatus()
	if err != nil {
		if errors.Is(err, hive.ErrNotInitialized) {
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]any{
		"status":    "ok",
		"hive":      status,
		"version":   s.version,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	system := s.orch.Faults().SystemHealth()
	bank := s.bank.Health()

	w.Header().Set("Content-Type", "application/json")
	if !bank.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"system": system,
		"memory": bank,
	})
}
