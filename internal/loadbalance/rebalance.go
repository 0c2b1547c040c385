package loadbalance

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

const (
	donorUtilization     = 0.8
	recipientUtilization = 0.5
)

// Rebalance moves load units from agents above 80% utilization to
// agents below 50%, preferring recipients with the best capability
// overlap, until the utilization spread falls under the threshold or
// either side runs out. Returns the number of units moved.
func (b *Balancer) Rebalance() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	moved := 0
	for {
		if stddev(b.utilizations()) < b.spread {
			break
		}

		donor := b.pickDonor()
		if donor == nil {
			break
		}
		recipient := b.pickRecipient(donor)
		if recipient == nil {
			break
		}

		donor.CurrentLoad--
		donor.recalc()
		recipient.CurrentLoad++
		recipient.recalc()
		b.notify(donor.AgentID, donor.Utilization)
		b.notify(recipient.AgentID, recipient.Utilization)
		moved++
	}

	if moved > 0 {
		slog.Info("load rebalanced", "moved", moved)
	}
	return moved
}

// StartRebalancer runs Rebalance on a fixed interval until the context
// is cancelled. Run it in its own goroutine.
func (b *Balancer) StartRebalancer(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("load rebalancer started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("load rebalancer stopped")
			return
		case <-ticker.C:
			b.Rebalance()
		}
	}
}

func (b *Balancer) utilizations() []float64 {
	utils := make([]float64, 0, len(b.agents))
	for _, e := range b.agents {
		utils = append(utils, e.Utilization)
	}
	return utils
}

// pickDonor returns the most loaded agent above the donor threshold
// that still has a whole unit to give, lowest id on ties.
func (b *Balancer) pickDonor() *AgentLoad {
	var donor *AgentLoad
	for _, e := range b.agents {
		if e.Utilization <= donorUtilization || e.CurrentLoad < 1 {
			continue
		}
		if donor == nil ||
			e.Utilization > donor.Utilization ||
			(e.Utilization == donor.Utilization && e.AgentID < donor.AgentID) {
			donor = e
		}
	}
	return donor
}

// pickRecipient returns the under-utilized agent with the best
// capability overlap against the donor, lowest id on ties.
func (b *Balancer) pickRecipient(donor *AgentLoad) *AgentLoad {
	type scored struct {
		entry   *AgentLoad
		overlap float64
	}
	var candidates []scored
	for _, e := range b.agents {
		if e.AgentID == donor.AgentID || e.Utilization >= recipientUtilization {
			continue
		}
		if e.CurrentLoad >= e.MaxCapacity {
			continue
		}
		candidates = append(candidates, scored{entry: e, overlap: capabilityMatch(donor.Capabilities, e.Capabilities)})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].entry.AgentID < candidates[j].entry.AgentID
	})
	return candidates[0].entry
}
