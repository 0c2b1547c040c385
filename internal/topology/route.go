package topology

import (
	"fmt"
	"sort"
)

// Path returns the coordination route between two agents for the
// active topology. Mesh pairs talk directly, hub shapes relay through
// the coordinator unless an endpoint is the hub, and rings take the
// shorter arc.
func (m *Manager) Path(from, to string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.nodes[from]; !ok {
		return nil, fmt.Errorf("agent %q not in topology", from)
	}
	if _, ok := m.nodes[to]; !ok {
		return nil, fmt.Errorf("agent %q not in topology", to)
	}
	if from == to {
		return []string{from}, nil
	}

	switch m.kind {
	case Mesh:
		return []string{from, to}, nil
	case Hierarchical, Star:
		return m.hubPath(from, to), nil
	case Ring:
		path := m.shortestPath(from, to)
		if path == nil {
			return nil, fmt.Errorf("no path between %q and %q", from, to)
		}
		return path, nil
	}
	return nil, fmt.Errorf("unknown topology %q", m.kind)
}

func (m *Manager) hubPath(from, to string) []string {
	hub := m.coordinatorID()
	if from == hub || to == hub {
		return []string{from, to}
	}
	return []string{from, hub, to}
}

// shortestPath runs breadth-first search with neighbours visited in
// sorted order, so ties between equal arcs resolve deterministically.
func (m *Manager) shortestPath(from, to string) []string {
	parent := map[string]string{from: ""}
	queue := []string{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			break
		}

		neighbours := make([]string, 0, len(m.nodes[cur].Connections))
		for id := range m.nodes[cur].Connections {
			neighbours = append(neighbours, id)
		}
		sort.Strings(neighbours)

		for _, id := range neighbours {
			if _, seen := parent[id]; seen {
				continue
			}
			parent[id] = cur
			queue = append(queue, id)
		}
	}

	if _, ok := parent[to]; !ok {
		return nil
	}

	path := []string{to}
	for cur := to; cur != from; {
		cur = parent[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
