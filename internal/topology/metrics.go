package topology

import "math"

// Metrics are derived from the graph structure and mirrored loads on
// every read; nothing stores them.
type Metrics struct {
	Efficiency     float64 `json:"efficiency"`
	Latency        float64 `json:"latency"`
	Throughput     float64 `json:"throughput"`
	FaultTolerance float64 `json:"fault_tolerance"`
	Scalability    float64 `json:"scalability"`
}

// Score collapses the metrics into the single value the optimizer
// compares candidates with.
func (mt Metrics) Score() float64 {
	return mt.Efficiency*0.3 +
		mt.Latency*0.2 +
		mt.Throughput*0.25 +
		mt.FaultTolerance*0.15 +
		mt.Scalability*0.1
}

func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return computeMetrics(m.kind, m.nodes, m.max)
}

func computeMetrics(kind Kind, nodes map[string]*Node, max int) Metrics {
	n := len(nodes)
	if n == 0 {
		return Metrics{}
	}

	loads := make([]float64, 0, n)
	degreeSum := 0
	for _, node := range nodes {
		loads = append(loads, node.Load)
		degreeSum += len(node.Connections)
	}

	avgDegree := float64(degreeSum) / float64(n)

	return Metrics{
		Efficiency:     clamp01(1 - stddev(loads)),
		Latency:        latencyMetric(nodes),
		Throughput:     parallelCapacity(kind, n) / float64(n),
		FaultTolerance: math.Min(1, avgDegree/2),
		Scalability:    scalabilityMetric(kind, n, max),
	}
}

// latencyMetric maps the average shortest-path length onto [0,1]: a
// fully direct graph scores 1, longer average hops score lower.
func latencyMetric(nodes map[string]*Node) float64 {
	n := len(nodes)
	if n < 2 {
		return 1
	}

	total, pairs := 0, 0
	for id := range nodes {
		dist := bfs(nodes, id)
		for other, d := range dist {
			if other == id {
				continue
			}
			total += d
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}

	avg := float64(total) / float64(pairs)
	return clamp01(1 - (avg-1)/float64(n))
}

// bfs returns hop distances from start to every reachable node.
func bfs(nodes map[string]*Node, start string) map[string]int {
	dist := map[string]int{start: 0}
	queue := []string{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range nodes[cur].Connections {
			if _, seen := dist[next]; seen {
				continue
			}
			dist[next] = dist[cur] + 1
			queue = append(queue, next)
		}
	}
	return dist
}

// parallelCapacity is how many agents a topology can drive at once:
// mesh saturates everyone, hub shapes saturate all but the hub, a ring
// alternates around the cycle.
func parallelCapacity(kind Kind, n int) float64 {
	switch kind {
	case Mesh:
		return float64(n)
	case Hierarchical, Star:
		return float64(n - 1)
	case Ring:
		return math.Ceil(float64(n) / 2)
	}
	return 0
}

// scalabilityMetric penalizes node count against the configured cap.
// Mesh pays quadratically for its edge growth, the rest linearly.
func scalabilityMetric(kind Kind, n, max int) float64 {
	if max <= 0 {
		return 0
	}
	ratio := float64(n) / float64(max)
	if kind == Mesh {
		return clamp01(1 - ratio*ratio)
	}
	return clamp01(1 - ratio/2)
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

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
