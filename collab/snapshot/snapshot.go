// Package snapshot persists collaboration-core state to SQLite on the
// caller's behalf. The core itself is strictly in-memory (spec non-goal);
// this package is an external collaborator, grounded on the teacher's
// storage/adapters/sqlite adapter shape.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/atlasmesh/collabcore/collab/bus"
	"github.com/atlasmesh/collabcore/collab/coordination"
	"github.com/atlasmesh/collabcore/collab/workflow"
)

// Store persists collaboration-core snapshots to a SQLite file.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database at path (use ":memory:" for an ephemeral
// store, as in the teacher's adapter tests).
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates every table this store writes to.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS blackboard_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT,
			author TEXT,
			version INTEGER NOT NULL,
			written_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS message_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL,
			sender TEXT,
			receiver TEXT,
			type TEXT NOT NULL,
			priority TEXT NOT NULL,
			content TEXT,
			logged_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow_id TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			node_results TEXT,
			failed_nodes TEXT,
			duration_ms INTEGER NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blackboard_history_key ON blackboard_history(namespace, key)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_results_workflow ON workflow_results(workflow_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveBlackboardHistory persists every entry in entries, in order.
func (s *Store) SaveBlackboardHistory(ctx context.Context, entries []coordination.HistoryEntry) error {
	for _, e := range entries {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("marshal blackboard value: %w", err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO blackboard_history (namespace, key, value, author, version, written_at) VALUES (?, ?, ?, ?, ?, ?)`,
			e.Namespace, e.Key, string(value), e.Author, e.Version, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("save blackboard history: %w", err)
		}
	}
	return nil
}

// SaveMessageLog persists every message in log.
func (s *Store) SaveMessageLog(ctx context.Context, log []bus.AgentMessage) error {
	for _, m := range log {
		content, err := json.Marshal(m.Content)
		if err != nil {
			return fmt.Errorf("marshal message content: %w", err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO message_log (message_id, sender, receiver, type, priority, content, logged_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Sender, m.Receiver, string(m.Type), string(m.Priority), string(content), time.Now(),
		)
		if err != nil {
			return fmt.Errorf("save message log: %w", err)
		}
	}
	return nil
}

// SaveWorkflowResult persists a single workflow execution outcome.
func (s *Store) SaveWorkflowResult(ctx context.Context, result workflow.Result) error {
	nodeResults, err := json.Marshal(result.NodeResults)
	if err != nil {
		return fmt.Errorf("marshal node results: %w", err)
	}
	failedNodes, err := json.Marshal(result.FailedNodes)
	if err != nil {
		return fmt.Errorf("marshal failed nodes: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_results (workflow_id, success, node_results, failed_nodes, duration_ms, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		result.WorkflowID, result.Success, string(nodeResults), string(failedNodes), result.TotalDuration.Milliseconds(), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save workflow result: %w", err)
	}
	return nil
}

// WorkflowResultRow is a persisted workflow outcome as read back from the
// store.
type WorkflowResultRow struct {
	WorkflowID string
	Success    bool
	DurationMS int64
	RecordedAt time.Time
}

// ListWorkflowResults returns every persisted result for workflowID, most
// recent first.
func (s *Store) ListWorkflowResults(ctx context.Context, workflowID string) ([]WorkflowResultRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id, success, duration_ms, recorded_at FROM workflow_results WHERE workflow_id = ? ORDER BY recorded_at DESC`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("list workflow results: %w", err)
	}
	defer rows.Close()

	var out []WorkflowResultRow
	for rows.Next() {
		var r WorkflowResultRow
		if err := rows.Scan(&r.WorkflowID, &r.Success, &r.DurationMS, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan workflow result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
