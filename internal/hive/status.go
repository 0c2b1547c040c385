package hive

import (
	"time"

	"github.com/hivedhq/hived/internal/agent"
	"github.com/hivedhq/hived/internal/fault"
	"github.com/hivedhq/hived/internal/memory"
	"github.com/hivedhq/hived/internal/topology"
)

// Status is the aggregate operator view of the hive.
type Status struct {
	Name            string                   `json:"name"`
	Topology        topology.Kind            `json:"topology"`
	TopologyMetrics topology.Metrics         `json:"topology_metrics"`
	ActiveAgents    int                      `json:"active_agents"`
	DormantAgents   int                      `json:"dormant_agents"`
	TotalAgents     int                      `json:"total_agents"`
	AvgPerformance  float64                  `json:"avg_performance"`
	Specifications  map[agent.SpecStatus]int `json:"specifications"`
	ActiveSpecs     []string                 `json:"active_specs,omitempty"`
	Health          fault.Snapshot           `json:"health"`
	Memory          *memory.HealthReport     `json:"memory"`
	UptimeSeconds   int64                    `json:"uptime_seconds"`
}

// HiveStatus aggregates pool counts, averaged performance over active
// agents, specification counts and bank health from memory, and the
// fault manager's health snapshot.
func (o *Orchestrator) HiveStatus() (*Status, error) {
	if err := o.requireInit(); err != nil {
		return nil, err
	}

	counts, err := o.bank.CountSpecifications()
	if err != nil {
		return nil, err
	}

	o.mu.RLock()
	active, dormant := 0, 0
	perfSum := 0.0
	for _, a := range o.agents {
		if a.Status == agent.StatusDormant {
			dormant++
			continue
		}
		active++
		perfSum += a.Performance.Score()
	}
	name := o.cfg.Hive.Name
	started := o.startedAt
	o.mu.RUnlock()

	avg := 0.0
	if active > 0 {
		avg = perfSum / float64(active)
	}

	return &Status{
		Name:            name,
		Topology:        o.topo.Kind(),
		TopologyMetrics: o.topo.Metrics(),
		ActiveAgents:    active,
		DormantAgents:   dormant,
		TotalAgents:     active + dormant,
		AvgPerformance:  avg,
		Specifications:  counts,
		ActiveSpecs:     o.ActiveSpecifications(),
		Health:          o.faults.SystemHealth(),
		Memory:          o.bank.Health(),
		UptimeSeconds:   int64(time.Since(started).Seconds()),
	}, nil
}
