// Package hive is the orchestration core: it owns the agent pool,
// wires topology, load balancing and fault tolerance together, and
// runs specifications through the executor.
package hive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hivedhq/hived/internal/agent"
	"github.com/hivedhq/hived/internal/config"
	"github.com/hivedhq/hived/internal/eventbus"
	"github.com/hivedhq/hived/internal/executor"
	"github.com/hivedhq/hived/internal/fault"
	"github.com/hivedhq/hived/internal/loadbalance"
	"github.com/hivedhq/hived/internal/memory"
	"github.com/hivedhq/hived/internal/metrics"
	"github.com/hivedhq/hived/internal/topology"
)

var (
	ErrNotInitialized = errors.New("hive not initialized")
	ErrAgentNotFound  = errors.New("agent not found")
	ErrQueenImmortal  = errors.New("queen coordinator cannot be terminated")
)

// Orchestrator owns the in-memory hive state. The agents map holds
// active and dormant agents; all mutation goes through o.mu, and the
// component managers enforce their own exclusion below that.
type Orchestrator struct {
	cfg       *config.Config
	bank      *memory.Bank
	client    *eventbus.Client
	exec      executor.Executor
	collector *metrics.Collector

	topo     *topology.Manager
	balancer *loadbalance.Balancer
	faults   *fault.Manager

	// autoRecover arms the recovery pipeline on health transitions.
	// It stays off until the background monitors run, so wiring and
	// manual probes never trigger recovery on their own.
	autoRecover atomic.Bool

	mu          sync.RWMutex
	initialized bool
	queenID     string
	agents      map[string]*agent.Agent
	active      map[string]context.CancelFunc
	startedAt   time.Time
}

// New wires the orchestrator and its component managers. client and
// collector may be nil; events and metrics are then skipped. The
// executor is required.
func New(cfg *config.Config, bank *memory.Bank, client *eventbus.Client, exec executor.Executor, collector *metrics.Collector) (*Orchestrator, error) {
	if exec == nil {
		return nil, fmt.Errorf("hive: executor is required")
	}

	kind, err := topology.ParseKind(cfg.Hive.Topology)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:       cfg,
		bank:      bank,
		client:    client,
		exec:      exec,
		collector: collector,
		agents:    make(map[string]*agent.Agent),
		active:    make(map[string]context.CancelFunc),
	}

	o.topo, err = topology.NewManager(kind, cfg.Hive.MaxAgents, cfg.Topology.AutoOptimize)
	if err != nil {
		return nil, err
	}

	o.balancer = loadbalance.NewBalancer(cfg.LoadBalance.SpreadThreshold, o.onLoadChange)
	o.faults = fault.NewManager(fault.Config{
		BreakerThreshold: cfg.Fault.BreakerThreshold,
		BreakerCooldown:  cfg.Fault.BreakerCooldown,
		ProbeInterval:    cfg.Fault.HealthInterval,
		MaxRetries:       cfg.Fault.MaxRetries,
		RetryDelay:       cfg.Fault.RetryDelay,
		BackupRatio:      cfg.Fault.BackupRatio,
	}, o.onHealthTransition)

	return o, nil
}

// Initialize spawns the queen coordinator and the seed worker pool,
// builds the topology and registers everything with the balancer and
// fault manager. Initialization failures are fatal to the caller.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	total, err := o.seedPool()
	if err != nil {
		return err
	}

	o.publishEvent(eventbus.EventHiveInitialized, map[string]any{
		"name":     o.cfg.Hive.Name,
		"topology": string(o.topo.Kind()),
		"agents":   total,
	})
	o.recordPoolMetrics()

	slog.Info("hive initialized",
		"name", o.cfg.Hive.Name,
		"topology", o.topo.Kind(),
		"agents", total)
	return nil
}

// seedPool creates and registers the initial agents under the write
// lock. Events and metrics happen in Initialize once the lock is
// released; recordPoolMetrics takes this lock itself.
func (o *Orchestrator) seedPool() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		return 0, fmt.Errorf("hive %q already initialized", o.cfg.Hive.Name)
	}

	queen := newAgent(agent.TypeCoordinator, nil)
	o.queenID = queen.ID
	pool := []*agent.Agent{queen}
	for _, t := range agent.SeedPool() {
		pool = append(pool, newAgent(t, nil))
	}

	snapshot := make([]agent.Agent, 0, len(pool))
	for _, a := range pool {
		o.agents[a.ID] = a
		snapshot = append(snapshot, *a)
	}

	if err := o.topo.Initialize(snapshot); err != nil {
		return 0, fmt.Errorf("initialize topology: %w", err)
	}
	if err := o.balancer.InitializeAgents(snapshot); err != nil {
		return 0, fmt.Errorf("initialize balancer: %w", err)
	}
	for _, a := range pool {
		o.faults.Watch(a.ID)
		if err := o.bank.SaveAgent(a); err != nil {
			return 0, fmt.Errorf("persist agent %s: %w", a.ID, err)
		}
	}

	o.initialized = true
	o.startedAt = time.Now().UTC()
	return len(o.agents), nil
}

// StartBackground runs the periodic loops until ctx is cancelled:
// health probing, load rebalancing, memory retention and, when
// enabled, topology optimization.
func (o *Orchestrator) StartBackground(ctx context.Context) {
	o.autoRecover.Store(true)
	go o.faults.StartMonitor(ctx)
	go o.balancer.StartRebalancer(ctx, o.cfg.LoadBalance.RebalanceInterval)
	go o.bank.StartRetention(ctx)
	if o.cfg.Topology.AutoOptimize {
		go o.optimizeLoop(ctx)
	}
}

// Shutdown cancels every running specification. Component teardown
// (memory bank, event bus) belongs to the composition root.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(o.active))
	for _, cancel := range o.active {
		cancels = append(cancels, cancel)
	}
	o.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	slog.Info("hive shut down", "cancelled", len(cancels))
}

func (o *Orchestrator) optimizeLoop(ctx context.Context) {
	interval := o.cfg.Topology.OptimizeInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("topology optimizer started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("topology optimizer stopped")
			return
		case <-ticker.C:
			o.Optimize()
		}
	}
}

// Optimize runs one optimization round and, when the rebalance
// candidate wins, carries the migration out through the balancer.
func (o *Orchestrator) Optimize() topology.Optimization {
	opt := o.topo.Optimize()
	if !opt.Applied {
		return opt
	}

	if opt.Action == topology.ActionRebalance {
		moved := o.balancer.Rebalance()
		slog.Info("optimization rebalanced load", "moved", moved)
	}

	o.publishEvent(eventbus.EventTopologyOptim, map[string]any{
		"action": opt.Action,
		"before": opt.Before.Score(),
		"after":  opt.After.Score(),
	})
	o.recordPoolMetrics()
	return opt
}

// onLoadChange mirrors balancer utilization into the topology graph
// and the metrics. Called by the balancer with its lock held, so it
// must not call back into it.
func (o *Orchestrator) onLoadChange(agentID string, utilization float64) {
	o.topo.UpdateLoad(agentID, utilization)
	o.collector.SetAgentUtilization(agentID, utilization)
}

// onHealthTransition runs under the fault manager lock; everything it
// triggers happens on a fresh goroutine to keep lock order simple.
func (o *Orchestrator) onHealthTransition(agentID string, from, to fault.HealthState) {
	go func() {
		o.publishEvent(eventbus.EventHealthChanged, map[string]any{
			"agent": agentID,
			"from":  string(from),
			"to":    string(to),
		})
		slog.Warn("agent health changed", "agent", agentID, "from", from, "to", to)

		if !o.autoRecover.Load() {
			return
		}
		if to == fault.Critical || to == fault.Offline {
			action, err := o.faults.Recover(context.Background(), o, agentID, "health "+string(to))
			if err != nil {
				slog.Error("recovery pipeline exhausted", "agent", agentID, "error", err)
				return
			}
			o.collector.ObserveRecovery(string(action.Type))
			o.publishEvent(eventbus.EventRecovery, map[string]any{
				"agent":  agentID,
				"action": string(action.Type),
				"reason": action.Reason,
			})
		}
	}()
}

func (o *Orchestrator) publishEvent(t eventbus.EventType, data map[string]any) {
	if o.client == nil {
		return
	}
	if err := o.client.PublishEvent(t, data); err != nil {
		slog.Warn("event publish failed", "type", t, "error", err)
	}
}

// recordPoolMetrics refreshes the gauge families derived from pool and
// topology state. Callers hold no locks that the managers need.
func (o *Orchestrator) recordPoolMetrics() {
	active, dormant := o.poolCounts()
	o.collector.SetAgentCounts(active, dormant)

	m := o.topo.Metrics()
	o.collector.SetTopology(string(o.topo.Kind()), map[string]float64{
		"efficiency":      m.Efficiency,
		"latency":         m.Latency,
		"throughput":      m.Throughput,
		"fault_tolerance": m.FaultTolerance,
		"scalability":     m.Scalability,
	})
	for id, st := range o.faults.BreakerStates() {
		o.collector.SetBreakerState(id, breakerValue(st))
	}
}

func breakerValue(st fault.BreakerState) float64 {
	switch st {
	case fault.BreakerOpen:
		return metrics.BreakerOpenValue
	case fault.BreakerHalfOpen:
		return metrics.BreakerHalfOpenValue
	default:
		return metrics.BreakerClosedValue
	}
}

func (o *Orchestrator) poolCounts() (active, dormant int) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, a := range o.agents {
		if a.Status == agent.StatusDormant {
			dormant++
		} else {
			active++
		}
	}
	return active, dormant
}

func (o *Orchestrator) requireInit() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.initialized {
		return ErrNotInitialized
	}
	return nil
}

// QueenID is the coordinator spawned at initialization.
func (o *Orchestrator) QueenID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.queenID
}

// Agent returns a copy of the agent record.
func (o *Orchestrator) Agent(id string) (agent.Agent, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.agents[id]
	if !ok {
		return agent.Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return *a, nil
}

// Agents returns copies of every agent, active and dormant.
func (o *Orchestrator) Agents() []agent.Agent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]agent.Agent, 0, len(o.agents))
	for _, a := range o.agents {
		out = append(out, *a)
	}
	return out
}

// Topology exposes the graph manager for the read-only web surface.
func (o *Orchestrator) Topology() *topology.Manager {
	return o.topo
}

// Balancer exposes the load ledger for the read-only web surface.
func (o *Orchestrator) Balancer() *loadbalance.Balancer {
	return o.balancer
}

// Faults exposes the fault manager for the read-only web surface.
func (o *Orchestrator) Faults() *fault.Manager {
	return o.faults
}

// SwitchTopology rebuilds the graph in the new kind and reports the
// resulting metrics. The switch is rolled back by the manager when
// efficiency drops too far.
func (o *Orchestrator) SwitchTopology(kind topology.Kind) (topology.Metrics, error) {
	if err := o.requireInit(); err != nil {
		return topology.Metrics{}, err
	}

	from := o.topo.Kind()
	m, err := o.topo.Switch(kind)
	if err != nil {
		return m, err
	}

	o.publishEvent(eventbus.EventTopologySwitch, map[string]any{
		"from": string(from),
		"to":   string(kind),
	})
	o.recordPoolMetrics()
	slog.Info("topology switched", "from", from, "to", kind)
	return m, nil
}
