// Package audit records one row per reconciliation run in SQLite, plus its
// diagnostic lines, so a deployment can answer "what did the last run for
// this rule do" without re-parsing log files.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lldhost/reconciler/internal/core"
)

// Manager records reconciliation runs against the engine's audit tables.
type Manager struct {
	engine *core.Engine
	runID  string
}

// Run is one completed (or in-flight) invocation of the engine.
type Run struct {
	ID           string
	LLDRuleID    uint64
	StartedAt    time.Time
	FinishedAt   *time.Time
	HostsCreated int
	HostsUpdated int
	HostsDeleted int
	ErrorCount   int
	Metadata     map[string]string
}

// NewManager wraps an already-open engine.
func NewManager(engine *core.Engine) *Manager {
	return &Manager{engine: engine}
}

// Begin records the start of a run and returns its run id.
func (m *Manager) Begin(lldRuleID uint64) (string, error) {
	runID := uuid.New().String()

	_, err := m.engine.Exec(
		`INSERT INTO runs (run_id, lld_ruleid) VALUES (?, ?)`, runID, lldRuleID)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}

	m.runID = runID
	return runID, nil
}

// Finish closes out a run with its final counts and any metadata.
func (m *Manager) Finish(runID string, created, updated, deleted, errorCount int, metadata map[string]string) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}

	_, err = m.engine.Exec(`
		UPDATE runs SET finished_at = strftime('%s', 'now'), hosts_created = ?,
		       hosts_updated = ?, hosts_deleted = ?, error_count = ?, metadata = ?
		WHERE run_id = ?
	`, created, updated, deleted, errorCount, string(metaJSON), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// LogDiagnostics persists the validator's "\n"-joined diagnostic string as
// individual run_diagnostics rows, one per line.
func (m *Manager) LogDiagnostics(runID, diagnostics string) error {
	if diagnostics == "" {
		return nil
	}
	for _, line := range strings.Split(diagnostics, "\n") {
		if line == "" {
			continue
		}
		diagID := uuid.New().String()
		if _, err := m.engine.Exec(
			`INSERT INTO run_diagnostics (diag_id, run_id, line) VALUES (?, ?, ?)`,
			diagID, runID, line,
		); err != nil {
			return fmt.Errorf("log diagnostic: %w", err)
		}
	}
	return nil
}

// Get retrieves one run by id.
func (m *Manager) Get(runID string) (*Run, error) {
	var r Run
	var startedAt int64
	var finishedAt sql.NullInt64
	var metaJSON string

	err := m.engine.QueryRow(`
		SELECT run_id, lld_ruleid, started_at, finished_at, hosts_created,
		       hosts_updated, hosts_deleted, error_count, metadata
		FROM runs WHERE run_id = ?
	`, runID).Scan(&r.ID, &r.LLDRuleID, &startedAt, &finishedAt, &r.HostsCreated,
		&r.HostsUpdated, &r.HostsDeleted, &r.ErrorCount, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, err
	}

	r.StartedAt = time.Unix(startedAt, 0)
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0)
		r.FinishedAt = &t
	}
	json.Unmarshal([]byte(metaJSON), &r.Metadata)
	return &r, nil
}

// ListForRule returns the most recent runs for one LLD rule.
func (m *Manager) ListForRule(lldRuleID uint64, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := m.engine.Query(`
		SELECT run_id, lld_ruleid, started_at, finished_at, hosts_created,
		       hosts_updated, hosts_deleted, error_count, metadata
		FROM runs WHERE lld_ruleid = ? ORDER BY started_at DESC LIMIT ?
	`, lldRuleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt int64
		var finishedAt sql.NullInt64
		var metaJSON string

		if err := rows.Scan(&r.ID, &r.LLDRuleID, &startedAt, &finishedAt, &r.HostsCreated,
			&r.HostsUpdated, &r.HostsDeleted, &r.ErrorCount, &metaJSON); err != nil {
			continue
		}
		r.StartedAt = time.Unix(startedAt, 0)
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0)
			r.FinishedAt = &t
		}
		json.Unmarshal([]byte(metaJSON), &r.Metadata)
		runs = append(runs, r)
	}
	return runs, nil
}

// Diagnostics returns every diagnostic line recorded for a run, in order.
func (m *Manager) Diagnostics(runID string) ([]string, error) {
	rows, err := m.engine.Query(
		`SELECT line FROM run_diagnostics WHERE run_id = ? ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}
