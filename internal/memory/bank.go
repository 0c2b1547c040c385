// Package memory is the hive's durable knowledge store: submitted
// specifications, execution results, agent records and interactions,
// task executions, decisions and patterns, all in a single sqlite
// database with keyword search and retention cleanup on top.
package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hivedhq/hived/internal/config"
	_ "modernc.org/sqlite"
)

type Bank struct {
	db  *sql.DB
	cfg config.MemoryConfig
}

func New(cfg config.MemoryConfig) (*Bank, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	b := &Bank{db: db, cfg: cfg}
	if err := b.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return b, nil
}

func (b *Bank) Close() error {
	return b.db.Close()
}

func (b *Bank) DB() *sql.DB {
	return b.db
}

func (b *Bank) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS specifications (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			status      TEXT DEFAULT 'pending',
			payload     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS execution_results (
			id          TEXT PRIMARY KEY,
			spec_id     TEXT NOT NULL REFERENCES specifications(id),
			success     BOOLEAN NOT NULL,
			summary     TEXT,
			payload     TEXT NOT NULL,
			duration_ms INTEGER DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_spec ON execution_results(spec_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_created ON execution_results(created_at)`,
		`CREATE TABLE IF NOT EXISTS agents (
			id          TEXT PRIMARY KEY,
			type        TEXT NOT NULL,
			status      TEXT NOT NULL,
			payload     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_active DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS agent_interactions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id    TEXT NOT NULL REFERENCES agents(id),
			role        TEXT NOT NULL,
			content     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_agent ON agent_interactions(agent_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS task_executions (
			id          TEXT PRIMARY KEY,
			task_id     TEXT NOT NULL,
			spec_id     TEXT,
			agent_id    TEXT NOT NULL REFERENCES agents(id),
			task_type   TEXT,
			success     BOOLEAN NOT NULL,
			output      TEXT,
			error       TEXT,
			token_usage INTEGER DEFAULT 0,
			duration_ms INTEGER DEFAULT 0,
			payload     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_exec_agent ON task_executions(agent_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_task_exec_created ON task_executions(created_at)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id          TEXT PRIMARY KEY,
			topic       TEXT NOT NULL,
			decision    TEXT NOT NULL,
			rationale   TEXT,
			payload     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS patterns (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			kind        TEXT,
			score       REAL DEFAULT 0,
			payload     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := b.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}

// Categories lists the record categories in storage order. Snapshot,
// search and health iterate over this.
func Categories() []string {
	return []string{
		"specifications",
		"execution_results",
		"agents",
		"agent_interactions",
		"task_executions",
		"decisions",
		"patterns",
	}
}
