// Package tracestore implements the per-trace metadata store (spec.md
// §4.6): <coc_home>/traces/<trace_id>/trace.meta.json plus the directory
// scaffolding (events.jsonl, reports/, verification.latest.json) every
// other core component writes into.
//
// Grounded on the teacher's pkg/store/ledger/file_ledger.go for the
// load/mutate/write-temp-then-rename persistence shape, generalized from a
// single flat JSON map to one metadata file per trace directory.
package tracestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adjoshi06/chainofCommand/internal/hexid"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
)

// ErrNotFound is returned when a trace directory or metadata file is absent.
var ErrNotFound = errors.New("tracestore: trace not found")

// Store manages TraceSession metadata rooted at <coc_home>/traces.
type Store struct {
	root string
}

// New opens (creating if absent) the trace store rooted at root.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil { //nolint:gosec // shared store root
		return nil, fmt.Errorf("tracestore: mkdir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Dir returns the directory for traceID.
func (s *Store) Dir(traceID string) string {
	return filepath.Join(s.root, traceID)
}

func (s *Store) metaPath(traceID string) string {
	return filepath.Join(s.Dir(traceID), "trace.meta.json")
}

// EventsPath returns the events.jsonl path for traceID.
func (s *Store) EventsPath(traceID string) string {
	return filepath.Join(s.Dir(traceID), "events.jsonl")
}

// ReportsDir returns the reports/ directory for traceID.
func (s *Store) ReportsDir(traceID string) string {
	return filepath.Join(s.Dir(traceID), "reports")
}

// LatestReportPath returns the verification.latest.json path for traceID.
func (s *Store) LatestReportPath(traceID string) string {
	return filepath.Join(s.Dir(traceID), "verification.latest.json")
}

// CreateTrace initializes a new trace directory, an empty events.jsonl, and
// a fresh TraceSession with head_event_hash = GENESIS_PREV_HASH and status
// = running, per spec.md §4.6.
func (s *Store) CreateTrace(traceID, taskID string, participants []model.Role, policy model.PolicyProfile) (model.TraceSession, error) {
	dir := s.Dir(traceID)
	if err := os.MkdirAll(filepath.Join(dir, "reports"), 0o755); err != nil { //nolint:gosec // trace dir, not secret
		return model.TraceSession{}, fmt.Errorf("tracestore: mkdir trace dir: %w", err)
	}

	eventsPath := s.EventsPath(traceID)
	if _, err := os.Stat(eventsPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(eventsPath, nil, 0o644); err != nil { //nolint:gosec // append-only ledger file
			return model.TraceSession{}, fmt.Errorf("tracestore: create events.jsonl: %w", err)
		}
	}

	session := model.TraceSession{
		SchemaVersion: model.SchemaVersion,
		TraceID:       traceID,
		TaskID:        taskID,
		StartedAt:     model.NowISO(),
		Status:        model.TraceRunning,
		Participants:  participants,
		HeadEventHash: hexid.GenesisPrevHash,
		EventCount:    0,
		ArtifactCount: 0,
		PolicyProfile: policy,
	}
	if err := s.SaveTrace(session); err != nil {
		return model.TraceSession{}, err
	}
	return session, nil
}

// LoadTrace reads the TraceSession metadata for traceID.
func (s *Store) LoadTrace(traceID string) (model.TraceSession, error) {
	data, err := os.ReadFile(s.metaPath(traceID)) //nolint:gosec // fixed path under coc_home
	if errors.Is(err, os.ErrNotExist) {
		return model.TraceSession{}, ErrNotFound
	}
	if err != nil {
		return model.TraceSession{}, fmt.Errorf("tracestore: read metadata: %w", err)
	}
	var session model.TraceSession
	if err := json.Unmarshal(data, &session); err != nil {
		return model.TraceSession{}, fmt.Errorf("tracestore: parse metadata: %w", err)
	}
	return session, nil
}

// SaveTrace atomically writes session's metadata (temp file + rename).
func (s *Store) SaveTrace(session model.TraceSession) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("tracestore: marshal metadata: %w", err)
	}
	path := s.metaPath(session.TraceID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // trace metadata, not secret
		return fmt.Errorf("tracestore: write metadata: %w", err)
	}
	return os.Rename(tmp, path)
}

// UpdateStatus transitions session to status, stamping endedAt whenever it
// is non-empty (whatever the new status), and persists the change.
func (s *Store) UpdateStatus(traceID string, status model.TraceStatus, endedAt string) (model.TraceSession, error) {
	session, err := s.LoadTrace(traceID)
	if err != nil {
		return model.TraceSession{}, err
	}
	session.Status = status
	if endedAt != "" {
		session.EndedAt = endedAt
	}
	if err := s.SaveTrace(session); err != nil {
		return model.TraceSession{}, err
	}
	return session, nil
}

// ListTraceIDs returns every trace directory name under root, sorted
// lexicographically (ULID trace IDs sort chronologically).
func (s *Store) ListTraceIDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tracestore: list traces: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListTraces returns every TraceSession under root, sorted by started_at
// descending (most recent first).
func (s *Store) ListTraces() ([]model.TraceSession, error) {
	ids, err := s.ListTraceIDs()
	if err != nil {
		return nil, err
	}
	sessions := make([]model.TraceSession, 0, len(ids))
	for _, id := range ids {
		session, err := s.LoadTrace(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt > sessions[j].StartedAt
	})
	return sessions, nil
}

// ResolveTraceID implements spec.md §4.6's resolution rule: a path ending
// in events.jsonl resolves to its containing directory's basename; an
// existing directory resolves to its own basename; otherwise input is
// taken verbatim as the trace ID.
func (s *Store) ResolveTraceID(input string) string {
	if strings.HasSuffix(input, "events.jsonl") {
		return filepath.Base(filepath.Dir(input))
	}
	if info, err := os.Stat(input); err == nil && info.IsDir() {
		return filepath.Base(input)
	}
	return input
}
