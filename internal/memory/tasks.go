package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskExecution records a single dispatched task outcome against the
// agent that ran it.
type TaskExecution struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	SpecID     string    `json:"spec_id,omitempty"`
	AgentID    string    `json:"agent_id"`
	TaskType   string    `json:"task_type,omitempty"`
	Success    bool      `json:"success"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	TokenUsage int       `json:"token_usage,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveTaskExecution refuses executions for agents the bank has never
// seen.
func (b *Bank) SaveTaskExecution(e *TaskExecution) error {
	var exists bool
	err := b.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM agents WHERE id = ?)`, e.AgentID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check agent: %w", err)
	}
	if !exists {
		return fmt.Errorf("save task execution: unknown agent %q", e.AgentID)
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal task execution: %w", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO task_executions (id, task_id, spec_id, agent_id, task_type, success, output, error, token_usage, duration_ms, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			success = excluded.success,
			output = excluded.output,
			error = excluded.error,
			payload = excluded.payload`,
		e.ID, e.TaskID, e.SpecID, e.AgentID, e.TaskType, e.Success, e.Output, e.Error, e.TokenUsage, e.DurationMs, string(payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("save task execution: %w", err)
	}
	return nil
}

func (b *Bank) ListTaskExecutions(agentID string, limit int) ([]TaskExecution, error) {
	rows, err := b.db.Query(`
		SELECT payload FROM task_executions
		WHERE agent_id = ?
		ORDER BY created_at DESC LIMIT ?`, agentID, limit)
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

func decodeTaskExecution(payload string) (*TaskExecution, error) {
	var e TaskExecution
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, fmt.Errorf("decode task execution: %w", err)
	}
	return &e, nil
}

// AgentStats aggregates the recorded executions of one agent.
type AgentStats struct {
	Total         int     `json:"total"`
	Succeeded     int     `json:"succeeded"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

func (b *Bank) GetAgentStats(agentID string) (*AgentStats, error) {
	var st AgentStats
	var avg *float64
	err := b.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
		       AVG(duration_ms)
		FROM task_executions WHERE agent_id = ?`, agentID).
		Scan(&st.Total, &st.Succeeded, &avg)
	if err != nil {
		return nil, fmt.Errorf("agent stats: %w", err)
	}
	if avg != nil {
		st.AvgDurationMs = *avg
	}
	if st.Total > 0 {
		st.SuccessRate = float64(st.Succeeded) / float64(st.Total)
	}
	return &st, nil
}
