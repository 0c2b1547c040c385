package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hivedhq/hived/internal/agent"
)

func (b *Bank) SaveAgent(a *agent.Agent) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.LastActive.IsZero() {
		a.LastActive = a.CreatedAt
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal agent: %w", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO agents (id, type, status, payload, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			payload = excluded.payload,
			last_active = excluded.last_active`,
		a.ID, a.Type, a.Status, string(payload), a.CreatedAt, a.LastActive)
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (b *Bank) GetAgent(id string) (*agent.Agent, error) {
	var payload string
	err := b.db.QueryRow(`SELECT payload FROM agents WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	var a agent.Agent
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("decode agent: %w", err)
	}
	return &a, nil
}

func (b *Bank) ListAgents() ([]agent.Agent, error) {
	rows, err := b.db.Query(`SELECT payload FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		var a agent.Agent
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("decode agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (b *Bank) DeleteAgent(id string) error {
	_, err := b.db.Exec(`DELETE FROM agents WHERE id = ?`, id)
	return err
}

// Interaction is one logged exchange with an agent.
type Interaction struct {
	ID        int64     `json:"id"`
	AgentID   string    `json:"agent_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveInteraction refuses interactions for agents the bank has never
// seen.
func (b *Bank) SaveInteraction(agentID, role, content string) error {
	var exists bool
	err := b.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM agents WHERE id = ?)`, agentID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check agent: %w", err)
	}
	if !exists {
		return fmt.Errorf("save interaction: unknown agent %q", agentID)
	}

	_, err = b.db.Exec(`
		INSERT INTO agent_interactions (agent_id, role, content, created_at)
		VALUES (?, ?, ?, ?)`, agentID, role, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save interaction: %w", err)
	}
	return nil
}

func (b *Bank) GetInteractions(agentID string, limit int) ([]Interaction, error) {
	rows, err := b.db.Query(`
		SELECT id, agent_id, role, content, created_at
		FROM agent_interactions
		WHERE agent_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("get interactions: %w", err)
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
