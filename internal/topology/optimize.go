package topology

import (
	"log/slog"
	"sort"

	"github.com/hivedhq/hived/internal/agent"
)

const (
	ActionRebalance = "rebalance_load"
	ActionCollapse  = "collapse_to_hierarchical"
	ActionPromote   = "promote_coordinator"
	ActionRollback  = "rollback_switch"
)

// rebalanceSpread is the load standard deviation above which spreading
// work becomes a candidate optimization.
const rebalanceSpread = 0.3

// Optimization reports what Optimize decided. After holds the
// simulated metrics for a load rebalance, which the caller carries out
// through the load balancer, and the recomputed metrics otherwise.
type Optimization struct {
	Action  string  `json:"action,omitempty"`
	Applied bool    `json:"applied"`
	Before  Metrics `json:"before"`
	After   Metrics `json:"after"`
}

type candidate struct {
	action string
	sim    Metrics
	onTie  bool
	apply  func()
}

// Optimize generates candidate layouts, scores each simulation against
// the current graph, and applies the best candidate that improves the
// score. Coordinator promotion is metric-neutral in this model, so it
// also applies on a tie.
func (m *Manager) Optimize() Optimization {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := computeMetrics(m.kind, m.nodes, m.max)
	opt := Optimization{Before: current, After: current}

	if m.pending != nil {
		watch := *m.pending
		m.pending = nil
		if watch.baseline > 0 && current.Efficiency < watch.baseline*0.8 {
			m.kind = watch.previous
			m.rebuild()
			opt.Action = ActionRollback
			opt.Applied = true
			opt.After = computeMetrics(m.kind, m.nodes, m.max)
			slog.Warn("topology switch rolled back",
				"to", watch.previous,
				"efficiency_baseline", watch.baseline,
				"efficiency_now", current.Efficiency)
			return opt
		}
	}

	cands := m.candidates()
	bestIdx := -1
	for i, c := range cands {
		accepts := c.sim.Score() > current.Score() || (c.onTie && c.sim.Score() >= current.Score())
		if !accepts {
			continue
		}
		if bestIdx < 0 || c.sim.Score() > cands[bestIdx].sim.Score() {
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return opt
	}

	best := cands[bestIdx]
	best.apply()
	opt.Action = best.action
	opt.Applied = true
	if best.action == ActionRebalance {
		opt.After = best.sim
	} else {
		opt.After = computeMetrics(m.kind, m.nodes, m.max)
	}

	slog.Info("topology optimized",
		"action", opt.Action,
		"score_before", current.Score(),
		"score_after", opt.After.Score())
	return opt
}

func (m *Manager) candidates() []candidate {
	var out []candidate

	loads := make([]float64, 0, len(m.nodes))
	for _, n := range m.nodes {
		loads = append(loads, n.Load)
	}

	if stddev(loads) > rebalanceSpread {
		avg := mean(loads)
		sim := m.simulate(func() {
			m.rebuild()
			for _, n := range m.nodes {
				n.Load = avg
			}
		})
		out = append(out, candidate{
			action: ActionRebalance,
			sim:    sim,
			apply:  func() {},
		})
	}

	if m.kind == Mesh && len(m.nodes) > 6 {
		sim := m.simulate(func() {
			m.kind = Hierarchical
			m.rebuild()
		})
		out = append(out, candidate{
			action: ActionCollapse,
			sim:    sim,
			apply: func() {
				m.kind = Hierarchical
				m.rebuild()
			},
		})
	}

	if !m.hasCoordinator() && len(m.nodes) > 3 {
		id := m.promotionPick()
		sim := m.simulate(func() {
			m.promoted = id
			m.rebuild()
		})
		out = append(out, candidate{
			action: ActionPromote,
			sim:    sim,
			onTie:  true,
			apply: func() {
				m.promoted = id
				m.rebuild()
			},
		})
	}

	return out
}

// simulate applies a hypothetical mutation, reads the metrics, and
// restores the prior state. rebuild always allocates fresh nodes, so
// restoring the old map pointer is an exact rollback.
func (m *Manager) simulate(mutate func()) Metrics {
	prevKind, prevPromoted, prevNodes := m.kind, m.promoted, m.nodes
	mutate()
	sim := computeMetrics(m.kind, m.nodes, m.max)
	m.kind, m.promoted, m.nodes = prevKind, prevPromoted, prevNodes
	return sim
}

func (m *Manager) hasCoordinator() bool {
	for _, n := range m.nodes {
		if n.Role == RoleCoordinator {
			return true
		}
	}
	return false
}

// promotionPick prefers the lexicographically lowest architect id, or
// the lowest member id when no architect exists.
func (m *Manager) promotionPick() string {
	var architects, all []string
	for _, a := range m.members {
		all = append(all, a.ID)
		if a.Type == agent.TypeArchitect {
			architects = append(architects, a.ID)
		}
	}
	sort.Strings(architects)
	sort.Strings(all)
	if len(architects) > 0 {
		return architects[0]
	}
	if len(all) > 0 {
		return all[0]
	}
	return ""
}
