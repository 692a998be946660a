// Package index implements the optional, non-authoritative Index
// Accelerator (C10): a pure-Go SQLite index over a trace's events and
// artifact references, rebuildable at any time from events.jsonl. Neither
// the ledger nor the verifier ever reads from it — it exists solely to
// make per-trace event queries by type and role cheap without a full JSONL
// scan. Claim and artifact rows are stored but no query reads them.
//
// Grounded on the teacher's pkg/store/receipt_store_sqlite.go: a
// database/sql handle over modernc.org/sqlite, a migrate() that issues
// CREATE TABLE IF NOT EXISTS, and parameterized query helpers.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/Adjoshi06/chainofCommand/pkg/ledger"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
)

// Index wraps a SQLite database rooted at <coc_home>/index/events.db.
type Index struct {
	db *sql.DB
}

// Open opens (creating if absent) the index database at path and ensures
// its schema exists.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return idx, nil
}

// Close closes the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func (idx *Index) migrate() error {
	_, err := idx.db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS events (
			trace_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (trace_id, event_id)
		);
		CREATE INDEX IF NOT EXISTS idx_events_trace_type ON events(trace_id, event_type);
		CREATE INDEX IF NOT EXISTS idx_events_trace_role ON events(trace_id, role);
		CREATE TABLE IF NOT EXISTS artifacts (
			trace_id TEXT NOT NULL,
			artifact_hash TEXT NOT NULL,
			producer_event_id TEXT NOT NULL,
			PRIMARY KEY (trace_id, artifact_hash, producer_event_id)
		);
		CREATE TABLE IF NOT EXISTS claims (
			trace_id TEXT NOT NULL,
			claim_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			PRIMARY KEY (trace_id, claim_id, event_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("index: migrate: %w", err)
	}
	return nil
}

// Rebuild truncates and repopulates traceID's rows by replaying
// events.jsonl through led. The index is deliberately disposable: its one
// consumer, `coc trace-events`, rebuilds it before every query and exits
// with an error if the rebuild fails; there is no fallback scan path.
func (idx *Index) Rebuild(traceID string, led *ledger.Ledger) error {
	events, err := led.ReadEvents(traceID, true)
	if err != nil {
		return fmt.Errorf("index: read events for rebuild: %w", err)
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM events WHERE trace_id = ?`, traceID); err != nil {
		return fmt.Errorf("index: clear events: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM artifacts WHERE trace_id = ?`, traceID); err != nil {
		return fmt.Errorf("index: clear artifacts: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM claims WHERE trace_id = ?`, traceID); err != nil {
		return fmt.Errorf("index: clear claims: %w", err)
	}

	for seq, e := range events {
		if _, err := tx.Exec(
			`INSERT INTO events (trace_id, event_id, seq, event_type, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			traceID, e.EventID, seq, string(e.EventType), string(e.Actor.Role), e.CreatedAt,
		); err != nil {
			return fmt.Errorf("index: insert event: %w", err)
		}
		for _, a := range e.Artifacts {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO artifacts (trace_id, artifact_hash, producer_event_id) VALUES (?, ?, ?)`,
				traceID, a.ArtifactHash, e.EventID,
			); err != nil {
				return fmt.Errorf("index: insert artifact ref: %w", err)
			}
		}
		for _, claimID := range e.Claims {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO claims (trace_id, claim_id, event_id) VALUES (?, ?, ?)`,
				traceID, claimID, e.EventID,
			); err != nil {
				return fmt.Errorf("index: insert claim ref: %w", err)
			}
		}
	}

	return tx.Commit()
}

// QueryEvents returns event_ids for traceID filtered by optional type/role,
// ordered by seq ascending. Either filter may be empty to mean "any".
func (idx *Index) QueryEvents(traceID string, eventType model.EventType, role model.Role) ([]string, error) {
	query := `SELECT event_id FROM events WHERE trace_id = ?`
	args := []interface{}{traceID}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	if role != "" {
		query += ` AND role = ?`
		args = append(args, string(role))
	}
	query += ` ORDER BY seq ASC`

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query events: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("index: scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
