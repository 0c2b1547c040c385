package memory

import (
	"fmt"
	"time"

	"github.com/hivedhq/hived/internal/agent"
)

// Snapshot is a complete export of the bank, one slice per category.
// It round-trips through ImportSnapshot including timestamps.
type Snapshot struct {
	Version        int                   `json:"version"`
	CreatedAt      time.Time             `json:"created_at"`
	Specifications []agent.Specification `json:"specifications"`
	Results        []ExecutionResult     `json:"execution_results"`
	Agents         []agent.Agent         `json:"agents"`
	Interactions   []Interaction         `json:"agent_interactions"`
	TaskExecutions []TaskExecution       `json:"task_executions"`
	Decisions      []Decision            `json:"decisions"`
	Patterns       []Pattern             `json:"patterns"`
}

const snapshotVersion = 1

func (b *Bank) ExportSnapshot() (*Snapshot, error) {
	snap := &Snapshot{
		Version:   snapshotVersion,
		CreatedAt: time.Now().UTC(),
	}

	var err error
	if snap.Specifications, err = b.ListSpecifications(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.Results, err = b.listAllResults(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.Agents, err = b.ListAgents(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.Interactions, err = b.listAllInteractions(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.TaskExecutions, err = b.listAllTaskExecutions(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	// LIMIT -1 is unbounded in sqlite.
	if snap.Decisions, err = b.ListDecisions(-1); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.Patterns, err = b.ListPatterns(-1); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	return snap, nil
}

// ImportSnapshot loads a snapshot into the bank. Parents go first so
// the referential checks on results, interactions and executions pass.
func (b *Bank) ImportSnapshot(snap *Snapshot) error {
	if snap.Version != snapshotVersion {
		return fmt.Errorf("import: unsupported snapshot version %d", snap.Version)
	}

	for i := range snap.Specifications {
		if err := b.SaveSpecification(&snap.Specifications[i]); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}
	for i := range snap.Agents {
		if err := b.SaveAgent(&snap.Agents[i]); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}
	for i := range snap.Results {
		if err := b.SaveExecutionResult(&snap.Results[i]); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}
	for _, in := range snap.Interactions {
		_, err := b.db.Exec(`
			INSERT INTO agent_interactions (agent_id, role, content, created_at)
			VALUES (?, ?, ?, ?)`, in.AgentID, in.Role, in.Content, in.CreatedAt)
		if err != nil {
			return fmt.Errorf("import interaction: %w", err)
		}
	}
	for i := range snap.TaskExecutions {
		if err := b.SaveTaskExecution(&snap.TaskExecutions[i]); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}
	for i := range snap.Decisions {
		if err := b.SaveDecision(&snap.Decisions[i]); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}
	for i := range snap.Patterns {
		if err := b.SavePattern(&snap.Patterns[i]); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}

	return nil
}

func (b *Bank) listAllResults() ([]ExecutionResult, error) {
	return b.ListExecutionResults(-1)
}

func (b *Bank) listAllTaskExecutions() ([]TaskExecution, error) {
	rows, err := b.db.Query(`SELECT payload FROM task_executions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list task executions: %w", err)
	}
	defer rows.Close()

	var out []TaskExecution
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan task execution: %w", err)
		}
		e, err := decodeTaskExecution(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (b *Bank) listAllInteractions() ([]Interaction, error) {
	rows, err := b.db.Query(`
		SELECT id, agent_id, role, content, created_at
		FROM agent_interactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(&in.ID, &in.AgentID, &in.Role, &in.Content, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
