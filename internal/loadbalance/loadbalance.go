// Package loadbalance keeps the per-agent load ledger: capacity,
// utilization, specialization and the rolling performance profile. It
// scores agents for assignment, feeds task outcomes back into the
// profile, and periodically evens utilization across the pool.
package loadbalance

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hivedhq/hived/internal/agent"
)

// ErrCapacityExceeded is returned when no agent has spare capacity for
// an assignment.
var ErrCapacityExceeded = errors.New("no agent has spare capacity")

// emaAlpha is the smoothing factor for all rolling performance fields.
const emaAlpha = 0.1

// AgentLoad is one agent's row in the ledger.
type AgentLoad struct {
	AgentID        string             `json:"agent_id"`
	Type           agent.Type         `json:"type"`
	CurrentLoad    float64            `json:"current_load"`
	MaxCapacity    float64            `json:"max_capacity"`
	Utilization    float64            `json:"utilization"`
	Capabilities   []string           `json:"capabilities"`
	Specialization map[string]float64 `json:"specialization"`
	Performance    agent.Performance  `json:"performance"`
}

func (e *AgentLoad) recalc() {
	if e.MaxCapacity <= 0 {
		e.Utilization = 0
		return
	}
	e.Utilization = e.CurrentLoad / e.MaxCapacity
}

// Balancer owns the ledger. The onChange hook mirrors utilization
// moves to interested parties; it runs under the balancer lock, so
// keep it cheap and never call back into the balancer from it.
type Balancer struct {
	mu       sync.RWMutex
	agents   map[string]*AgentLoad
	spread   float64
	onChange func(agentID string, utilization float64)
}

func NewBalancer(spreadThreshold float64, onChange func(string, float64)) *Balancer {
	if spreadThreshold <= 0 {
		spreadThreshold = 0.3
	}
	return &Balancer{
		agents:   make(map[string]*AgentLoad),
		spread:   spreadThreshold,
		onChange: onChange,
	}
}

// InitializeAgents resets the ledger and registers the given agents.
func (b *Balancer) InitializeAgents(agents []agent.Agent) error {
	b.mu.Lock()
	b.agents = make(map[string]*AgentLoad, len(agents))
	b.mu.Unlock()

	for _, a := range agents {
		if err := b.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// Register adds one agent. Capacity scales with the agent's success
// rate: a fully trusted agent carries its whole type baseline, a
// failing one only half.
func (b *Balancer) Register(a agent.Agent) error {
	p, ok := agent.ProfileFor(a.Type)
	if !ok {
		return fmt.Errorf("register agent %s: unknown type %q", a.ID, a.Type)
	}

	spec := make(map[string]float64, len(p.Specialization))
	for k, v := range p.Specialization {
		spec[k] = v
	}

	e := &AgentLoad{
		AgentID:        a.ID,
		Type:           a.Type,
		MaxCapacity:    p.BaseCapacity * (0.5 + 0.5*a.Performance.SuccessRate),
		Capabilities:   append([]string(nil), a.Capabilities...),
		Specialization: spec,
		Performance:    a.Performance,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.agents[a.ID] = e
	b.notify(a.ID, e.Utilization)
	return nil
}

// Remove drops an agent from the ledger. Unknown ids are ignored.
func (b *Balancer) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.agents, id)
}

// Get returns a copy of one ledger row.
func (b *Balancer) Get(id string) (AgentLoad, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.agents[id]
	if !ok {
		return AgentLoad{}, false
	}
	return copyEntry(e), true
}

// Loads returns a copy of the whole ledger.
func (b *Balancer) Loads() map[string]AgentLoad {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]AgentLoad, len(b.agents))
	for id, e := range b.agents {
		out[id] = copyEntry(e)
	}
	return out
}

// Performance returns the current rolling profile for an agent.
func (b *Balancer) Performance(id string) (agent.Performance, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.agents[id]
	if !ok {
		return agent.Performance{}, false
	}
	return e.Performance, true
}

func (b *Balancer) notify(id string, utilization float64) {
	if b.onChange != nil {
		b.onChange(id, utilization)
	}
}

func copyEntry(e *AgentLoad) AgentLoad {
	out := *e
	out.Capabilities = append([]string(nil), e.Capabilities...)
	out.Specialization = make(map[string]float64, len(e.Specialization))
	for k, v := range e.Specialization {
		out.Specialization[k] = v
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
