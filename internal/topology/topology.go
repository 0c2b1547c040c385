// Package topology maintains the logical coordination graph between
// agents: which nodes exist, how they are wired for the active
// topology kind, routing paths, and the structural metrics the
// optimizer scores candidate layouts with.
package topology

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hivedhq/hived/internal/agent"
)

type Kind string

const (
	Mesh         Kind = "mesh"
	Hierarchical Kind = "hierarchical"
	Ring         Kind = "ring"
	Star         Kind = "star"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Mesh, Hierarchical, Ring, Star:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown topology %q", s)
}

type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleWorker      Role = "worker"
	RoleBridge      Role = "bridge"
)

// Node is one agent's entry in the graph. Nodes are rebuilt wholesale
// on any membership change; nothing patches them incrementally.
type Node struct {
	AgentID     string          `json:"agent_id"`
	Role        Role            `json:"role"`
	Connections map[string]bool `json:"connections"`
	Load        float64         `json:"load"`
	Status      agent.Status    `json:"status"`
}

func (n *Node) Degree() int {
	return len(n.Connections)
}

// Manager owns the graph. Members are kept in insertion order, which
// fixes ring neighbourhoods.
type Manager struct {
	mu       sync.RWMutex
	kind     Kind
	max      int
	auto     bool
	members  []agent.Agent
	nodes    map[string]*Node
	isolated map[string]bool
	promoted string
	pending  *switchWatch
}

// switchWatch remembers the pre-switch state so the next optimization
// pass can revert a switch whose efficiency did not hold up.
type switchWatch struct {
	previous Kind
	baseline float64
}

func NewManager(kind Kind, maxAgents int, autoOptimize bool) (*Manager, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if maxAgents < 2 {
		return nil, fmt.Errorf("topology needs max agents of at least 2, got %d", maxAgents)
	}
	return &Manager{
		kind:     kind,
		max:      maxAgents,
		auto:     autoOptimize,
		nodes:    make(map[string]*Node),
		isolated: make(map[string]bool),
	}, nil
}

func (m *Manager) Kind() Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kind
}

// Initialize clears the graph and rebuilds it for the given agents.
func (m *Manager) Initialize(agents []agent.Agent) error {
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent %q", a.ID)
		}
		seen[a.ID] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.members = append([]agent.Agent(nil), agents...)
	m.isolated = make(map[string]bool)
	m.promoted = ""
	m.pending = nil
	m.rebuild()

	slog.Info("topology initialized", "kind", m.kind, "nodes", len(m.nodes))
	return nil
}

// Switch rebuilds under a new kind. If efficiency drops more than 20%
// against the pre-switch baseline and auto-optimization is enabled,
// the switch rolls back to the previous kind, either immediately or on
// the next optimization pass once mirrored loads have moved.
func (m *Manager) Switch(kind Kind) (Metrics, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Metrics{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.kind
	baseline := computeMetrics(m.kind, m.nodes, m.max)

	m.kind = kind
	m.rebuild()
	after := computeMetrics(m.kind, m.nodes, m.max)

	if m.auto && baseline.Efficiency > 0 && after.Efficiency < baseline.Efficiency*0.8 {
		slog.Warn("topology switch rolled back",
			"from", previous, "to", kind,
			"efficiency_before", baseline.Efficiency,
			"efficiency_after", after.Efficiency)
		m.kind = previous
		m.pending = nil
		m.rebuild()
		return computeMetrics(m.kind, m.nodes, m.max), nil
	}

	if m.auto {
		m.pending = &switchWatch{previous: previous, baseline: baseline.Efficiency}
	} else {
		m.pending = nil
	}

	slog.Info("topology switched", "from", previous, "to", kind)
	return after, nil
}

// AddAgent inserts the agent and rebuilds the whole graph.
func (m *Manager) AddAgent(a agent.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.members {
		if m.members[i].ID == a.ID {
			m.members[i] = a
			m.rebuild()
			return
		}
	}
	m.members = append(m.members, a)
	m.rebuild()
}

// RemoveAgent deletes the node and rebuilds. The node disappears from
// every other node's connection set in the same rebuild, so no
// dangling references survive.
func (m *Manager) RemoveAgent(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.members[:0]
	for _, a := range m.members {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	m.members = kept
	delete(m.isolated, id)
	if m.promoted == id {
		m.promoted = ""
	}
	m.rebuild()
}

// Isolate keeps the agent as a member but strips all of its edges, for
// the last resort of the recovery pipeline.
func (m *Manager) Isolate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[id]; !ok {
		return fmt.Errorf("agent %q not in topology", id)
	}
	m.isolated[id] = true
	m.rebuild()
	return nil
}

// Reconnect undoes Isolate.
func (m *Manager) Reconnect(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[id]; !ok {
		return fmt.Errorf("agent %q not in topology", id)
	}
	delete(m.isolated, id)
	m.rebuild()
	return nil
}

// UpdateLoad mirrors an agent's utilization onto its node.
func (m *Manager) UpdateLoad(id string, utilization float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		n.Load = utilization
	}
}

// UpdateStatus mirrors an agent's status onto its node.
func (m *Manager) UpdateStatus(id string, status agent.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		n.Status = status
	}
	for i := range m.members {
		if m.members[i].ID == id {
			m.members[i].Status = status
		}
	}
}

// Nodes returns a deep copy of the graph for callers that render or
// inspect it.
func (m *Manager) Nodes() map[string]*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*Node, len(m.nodes))
	for id, n := range m.nodes {
		conns := make(map[string]bool, len(n.Connections))
		for c := range n.Connections {
			conns[c] = true
		}
		out[id] = &Node{
			AgentID:     n.AgentID,
			Role:        n.Role,
			Connections: conns,
			Load:        n.Load,
			Status:      n.Status,
		}
	}
	return out
}

func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// EdgeCount returns the number of undirected edges.
func (m *Manager) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, n := range m.nodes {
		total += len(n.Connections)
	}
	return total / 2
}
