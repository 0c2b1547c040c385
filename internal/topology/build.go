package topology

import "github.com/hivedhq/hived/internal/agent"

// rebuild reconstructs every node and edge from the member list. Loads
// and statuses carry over for agents that were already present; the
// structure itself is never patched in place. Callers hold m.mu.
func (m *Manager) rebuild() {
	previous := m.nodes
	m.nodes = make(map[string]*Node, len(m.members))

	for _, a := range m.members {
		n := &Node{
			AgentID:     a.ID,
			Role:        m.roleFor(a),
			Connections: make(map[string]bool),
			Status:      a.Status,
		}
		if old, ok := previous[a.ID]; ok {
			n.Load = old.Load
			n.Status = old.Status
		}
		m.nodes[a.ID] = n
	}

	switch m.kind {
	case Mesh:
		m.buildMesh()
	case Hierarchical, Star:
		m.buildHub()
	case Ring:
		m.buildRing()
	}
}

func (m *Manager) roleFor(a agent.Agent) Role {
	switch {
	case a.Type == agent.TypeCoordinator, a.ID == m.promoted && m.promoted != "":
		return RoleCoordinator
	case a.Type == agent.TypeArchitect && len(m.members) > 5:
		return RoleBridge
	default:
		return RoleWorker
	}
}

// coordinatorID returns the first coordinator in member order, or the
// first member when none carries the role. The fallback keeps hub
// topologies connected while a coordinator is being recovered.
func (m *Manager) coordinatorID() string {
	for _, a := range m.members {
		if n, ok := m.nodes[a.ID]; ok && n.Role == RoleCoordinator {
			return a.ID
		}
	}
	if len(m.members) > 0 {
		return m.members[0].ID
	}
	return ""
}

func (m *Manager) connect(a, b string) {
	if a == b || m.isolated[a] || m.isolated[b] {
		return
	}
	m.nodes[a].Connections[b] = true
	m.nodes[b].Connections[a] = true
}

// buildMesh links every pair of nodes.
func (m *Manager) buildMesh() {
	for i := 0; i < len(m.members); i++ {
		for j := i + 1; j < len(m.members); j++ {
			m.connect(m.members[i].ID, m.members[j].ID)
		}
	}
}

// buildHub links every node to the coordinator. Hierarchical and star
// graphs share this shape; they differ in how paths are routed.
func (m *Manager) buildHub() {
	hub := m.coordinatorID()
	if hub == "" {
		return
	}
	for _, a := range m.members {
		m.connect(hub, a.ID)
	}
}

// buildRing links each node to its two neighbours in member order.
func (m *Manager) buildRing() {
	n := len(m.members)
	if n < 2 {
		return
	}
	for i := 0; i < n; i++ {
		m.connect(m.members[i].ID, m.members[(i+1)%n].ID)
	}
}
