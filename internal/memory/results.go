package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// TaskResult is the per-task outcome embedded in an execution result.
type TaskResult struct {
	TaskID     string `json:"task_id"`
	AgentID    string `json:"agent_id"`
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	TokenUsage int    `json:"token_usage,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// ExecutionResult is the aggregate outcome of one orchestrated
// specification.
type ExecutionResult struct {
	ID         string       `json:"id"`
	SpecID     string       `json:"spec_id"`
	Success    bool         `json:"success"`
	Summary    string       `json:"summary"`
	Tasks      []TaskResult `json:"tasks"`
	DurationMs int64        `json:"duration_ms"`
	CreatedAt  time.Time    `json:"created_at"`
}

// SaveExecutionResult refuses results for specifications the bank has
// never seen, so results can always be joined back to their spec.
func (b *Bank) SaveExecutionResult(r *ExecutionResult) error {
	var exists bool
	err := b.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM specifications WHERE id = ?)`, r.SpecID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check specification: %w", err)
	}
	if !exists {
		return fmt.Errorf("save execution result: unknown specification %q", r.SpecID)
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal execution result: %w", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO execution_results (id, spec_id, success, summary, payload, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			success = excluded.success,
			summary = excluded.summary,
			payload = excluded.payload,
			duration_ms = excluded.duration_ms`,
		r.ID, r.SpecID, r.Success, r.Summary, string(payload), r.DurationMs, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("save execution result: %w", err)
	}
	return nil
}

func (b *Bank) GetExecutionResult(specID string) (*ExecutionResult, error) {
	var payload string
	err := b.db.QueryRow(`
		SELECT payload FROM execution_results
		WHERE spec_id = ?
		ORDER BY created_at DESC LIMIT 1`, specID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution result: %w", err)
	}
	var r ExecutionResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode execution result: %w", err)
	}
	return &r, nil
}

func (b *Bank) ListExecutionResults(limit int) ([]ExecutionResult, error) {
	rows, err := b.db.Query(`
		SELECT payload FROM execution_results
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list execution results: %w", err)
	}
	defer rows.Close()

	var results []ExecutionResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan execution result: %w", err)
		}
		var r ExecutionResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decode execution result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
