// Package ledger implements the append-only, hash-chained event log
// (spec.md §4.7): per-trace exclusive lockfile, duplicate-event-id
// rejection, prev_event_hash chain precondition, and malformed-tail
// recovery on read.
//
// Grounded on the teacher's pkg/ledger/ledger.go (in-memory hash-chained
// Append/Verify shape: compute content hash from the previous head,
// reject on chain mismatch) generalized to a durable, lock-guarded JSON
// Lines file per spec.md §4.6/§4.7. The one legal mutation this package
// performs, truncating a malformed tail, is an in-place os.File.Truncate.
package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Adjoshi06/chainofCommand/pkg/model"
	"github.com/Adjoshi06/chainofCommand/pkg/obs"
	"github.com/Adjoshi06/chainofCommand/pkg/tracestore"
)

// Sentinel errors per spec.md §7's integrity-precondition and
// lock-contention error taxonomy; callers match with errors.Is.
var (
	ErrPrevHashMismatch = errors.New("ledger: prev_event_hash does not match current head")
	ErrDuplicateEventID = errors.New("ledger: event_id already present in trace")
	ErrTraceIDMismatch  = errors.New("ledger: event.trace_id does not match target trace")
	ErrLockTimeout      = errors.New("ledger: timed out acquiring trace lock")
)

const (
	lockPollInterval = 20 * time.Millisecond
	lockTimeout      = 5 * time.Second
)

// Ledger appends and reads ProtocolEvents for traces rooted at a
// tracestore.Store.
type Ledger struct {
	traces *tracestore.Store
	obs    *obs.Provider
}

// Option configures optional Ledger behavior.
type Option func(*Ledger)

// WithObserver attaches an obs.Provider so every AppendEvent call is
// wrapped in a tracked operation (spec.md §9's ambient observability
// stack, carried regardless of the spec's Non-goals around metrics
// surfaces). Omitting it leaves append untracked — the default for every
// existing caller and for tests.
func WithObserver(p *obs.Provider) Option {
	return func(l *Ledger) { l.obs = p }
}

// New returns a Ledger backed by traces.
func New(traces *tracestore.Store, opts ...Option) *Ledger {
	l := &Ledger{traces: traces}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// track wraps fn in the attached observer's TrackOperation when one is
// present, otherwise runs fn untracked.
func (l *Ledger) track(name string, attrs []attribute.KeyValue, fn func() error) error {
	if l.obs == nil {
		return fn()
	}
	_, done := l.obs.TrackOperation(context.Background(), name, attrs...)
	err := fn()
	done(err)
	return err
}

// AppendEvent performs the full spec.md §4.7 append sequence: acquire the
// trace-level exclusive lock, validate preconditions against the current
// head and existing event IDs, append exactly one JSON line, update and
// save the TraceSession, then release the lock.
func (l *Ledger) AppendEvent(traceID string, event model.ProtocolEvent) (model.TraceSession, error) {
	var session model.TraceSession
	err := l.track("ledger.append_event", []attribute.KeyValue{
		attribute.String("trace_id", traceID),
		attribute.String("event_type", string(event.EventType)),
	}, func() error {
		var appendErr error
		session, appendErr = l.appendEventLocked(traceID, event)
		return appendErr
	})
	return session, err
}

func (l *Ledger) appendEventLocked(traceID string, event model.ProtocolEvent) (model.TraceSession, error) {
	lockPath := l.traces.Dir(traceID) + "/.append.lock"
	release, err := acquireLock(lockPath)
	if err != nil {
		return model.TraceSession{}, err
	}
	defer release()

	session, err := l.traces.LoadTrace(traceID)
	if err != nil {
		return model.TraceSession{}, err
	}

	if event.TraceID != traceID {
		return model.TraceSession{}, fmt.Errorf("%w: event trace_id %q, target %q", ErrTraceIDMismatch, event.TraceID, traceID)
	}
	if event.PrevEventHash != session.HeadEventHash {
		return model.TraceSession{}, fmt.Errorf("%w: event prev_event_hash %q, head %q", ErrPrevHashMismatch, event.PrevEventHash, session.HeadEventHash)
	}

	existing, err := l.ReadEvents(traceID, true)
	if err != nil {
		return model.TraceSession{}, err
	}
	for _, e := range existing {
		if e.EventID == event.EventID {
			return model.TraceSession{}, fmt.Errorf("%w: %s", ErrDuplicateEventID, event.EventID)
		}
	}

	line, err := json.Marshal(event)
	if err != nil {
		return model.TraceSession{}, fmt.Errorf("ledger: marshal event: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.traces.EventsPath(traceID), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644) //nolint:gosec // append-only ledger file
	if err != nil {
		return model.TraceSession{}, fmt.Errorf("ledger: open events.jsonl: %w", err)
	}
	_, writeErr := f.Write(line)
	closeErr := f.Close()
	if writeErr != nil {
		return model.TraceSession{}, fmt.Errorf("ledger: append event: %w", writeErr)
	}
	if closeErr != nil {
		return model.TraceSession{}, fmt.Errorf("ledger: close events.jsonl: %w", closeErr)
	}

	session.HeadEventHash = event.EventHash
	session.EventCount++
	session.ArtifactCount += len(event.Artifacts)
	if err := l.traces.SaveTrace(session); err != nil {
		return model.TraceSession{}, err
	}
	return session, nil
}

// ReadEvents returns the events in traceID's ledger in append order,
// stopping at the first malformed line. If recoverMalformedTail is true and
// a malformed line is found, the file is truncated to the last byte offset
// ending a valid line, discarding the malformed line and every line after
// it (spec.md §4.7). With recoverMalformedTail false the file is left as-is.
func (l *Ledger) ReadEvents(traceID string, recoverMalformedTail bool) ([]model.ProtocolEvent, error) {
	path := l.traces.EventsPath(traceID)
	data, err := os.ReadFile(path) //nolint:gosec // fixed path under coc_home
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: read events.jsonl: %w", err)
	}

	events, validLength, malformed := parseLines(data)
	if malformed && recoverMalformedTail {
		if err := truncateFile(path, validLength); err != nil {
			return nil, fmt.Errorf("ledger: truncate malformed tail: %w", err)
		}
	}
	return events, nil
}

// parseLines parses newline-terminated JSON events from data, stopping at
// the first malformed line. It returns the parsed events, the byte offset
// immediately after the last successfully parsed line, and whether a
// malformed line was encountered.
func parseLines(data []byte) ([]model.ProtocolEvent, int64, bool) {
	var events []model.ProtocolEvent
	var offset int64
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var consumed int64
	for scanner.Scan() {
		line := scanner.Bytes()
		lineLen := int64(len(line)) + 1 // +1 for the newline the scanner stripped
		if len(bytes.TrimSpace(line)) == 0 {
			consumed += lineLen
			offset = consumed
			continue
		}
		var event model.ProtocolEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return events, offset, true
		}
		events = append(events, event)
		consumed += lineLen
		offset = consumed
	}
	return events, offset, false
}

func truncateFile(path string, validLength int64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644) //nolint:gosec // append-only ledger file being repaired
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	if err := f.Truncate(validLength); err != nil {
		return err
	}
	return nil
}

func acquireLock(path string) (release func(), err error) {
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //nolint:gosec // lockfile, not secret
		if err == nil {
			_ = f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("ledger: create lockfile: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		time.Sleep(lockPollInterval)
	}
}
