package hive

import (
	"errors"
	"fmt"

	"github.com/hivedhq/hived/internal/agent"
)

// stages groups a specification's tasks into dependency tiers: every
// task only depends on tasks in earlier tiers. Within a tier the
// original declaration order is kept, so execution is deterministic.
func stages(spec *agent.Specification) ([][]*agent.TaskDefinition, error) {
	index := make(map[string]*agent.TaskDefinition, len(spec.Tasks))
	inDegree := make(map[string]int, len(spec.Tasks))
	dependents := make(map[string][]string)

	for _, t := range spec.Tasks {
		index[t.ID] = t
		inDegree[t.ID] = 0
	}
	for _, t := range spec.Tasks {
		for _, dep := range t.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
			}
			dependents[dep] = append(dependents[dep], t.ID)
			inDegree[t.ID]++
		}
	}

	// Kahn's algorithm, tracking the longest path to each task as its
	// tier depth.
	depth := make(map[string]int, len(spec.Tasks))
	queue := make([]string, 0, len(spec.Tasks))
	for _, t := range spec.Tasks {
		if inDegree[t.ID] == 0 {
			queue = append(queue, t.ID)
			depth[t.ID] = 0
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++

		for _, next := range dependents[id] {
			if d := depth[id] + 1; d > depth[next] {
				depth[next] = d
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed != len(spec.Tasks) {
		return nil, errors.New("task dependencies contain a cycle")
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	tiers := make([][]*agent.TaskDefinition, maxDepth+1)
	for _, t := range spec.Tasks {
		tiers[depth[t.ID]] = append(tiers[depth[t.ID]], t)
	}
	return tiers, nil
}

// independent reports whether no task depends on another, the parallel
// execution fast path.
func independent(spec *agent.Specification) bool {
	for _, t := range spec.Tasks {
		if len(t.DependsOn) > 0 {
			return false
		}
	}
	return true
}
