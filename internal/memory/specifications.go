package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hivedhq/hived/internal/agent"
)

func (b *Bank) SaveSpecification(spec *agent.Specification) error {
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal specification: %w", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO specifications (id, name, status, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP`,
		spec.ID, spec.Name, spec.Status, string(payload), spec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save specification: %w", err)
	}
	return nil
}

func (b *Bank) GetSpecification(id string) (*agent.Specification, error) {
	var payload string
	err := b.db.QueryRow(`SELECT payload FROM specifications WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get specification: %w", err)
	}
	var spec agent.Specification
	if err := json.Unmarshal([]byte(payload), &spec); err != nil {
		return nil, fmt.Errorf("decode specification: %w", err)
	}
	return &spec, nil
}

func (b *Bank) ListSpecifications() ([]agent.Specification, error) {
	rows, err := b.db.Query(`SELECT payload FROM specifications ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list specifications: %w", err)
	}
	defer rows.Close()

	var specs []agent.Specification
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan specification: %w", err)
		}
		var spec agent.Specification
		if err := json.Unmarshal([]byte(payload), &spec); err != nil {
			return nil, fmt.Errorf("decode specification: %w", err)
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// CountSpecifications returns specification counts keyed by status.
func (b *Bank) CountSpecifications() (map[agent.SpecStatus]int, error) {
	rows, err := b.db.Query(`SELECT status, COUNT(*) FROM specifications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count specifications: %w", err)
	}
	defer rows.Close()

	counts := make(map[agent.SpecStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[agent.SpecStatus(status)] = n
	}
	return counts, rows.Err()
}
