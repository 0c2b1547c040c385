package memory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Decision records a coordination choice and why it was made, e.g. a
// topology switch or a recovery escalation.
type Decision struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Decision  string    `json:"decision"`
	Rationale string    `json:"rationale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (b *Bank) SaveDecision(d *Decision) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO decisions (id, topic, decision, rationale, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			decision = excluded.decision,
			rationale = excluded.rationale,
			payload = excluded.payload`,
		d.ID, d.Topic, d.Decision, d.Rationale, string(payload), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

func (b *Bank) ListDecisions(limit int) ([]Decision, error) {
	rows, err := b.db.Query(`
		SELECT payload FROM decisions
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		var d Decision
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Pattern is a reusable observation about how work tends to go:
// recurring failure modes, effective agent mixes, estimation drift.
type Pattern struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind,omitempty"`
	Score     float64         `json:"score"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (b *Bank) SavePattern(p *Pattern) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pattern: %w", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO patterns (id, name, kind, score, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			score = excluded.score,
			payload = excluded.payload`,
		p.ID, p.Name, p.Kind, p.Score, string(payload), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("save pattern: %w", err)
	}
	return nil
}

func (b *Bank) ListPatterns(limit int) ([]Pattern, error) {
	rows, err := b.db.Query(`
		SELECT payload FROM patterns
		ORDER BY score DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		var p Pattern
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
