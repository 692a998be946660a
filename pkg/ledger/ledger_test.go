package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adjoshi06/chainofCommand/internal/hexid"
	"github.com/Adjoshi06/chainofCommand/pkg/hashing"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
	"github.com/Adjoshi06/chainofCommand/pkg/tracestore"
)

func newTestLedger(t *testing.T) (*Ledger, *tracestore.Store, string) {
	t.Helper()
	traces, err := tracestore.New(t.TempDir())
	require.NoError(t, err)
	traceID := "trace_ledger_01"
	_, err = traces.CreateTrace(traceID, "task_01", []model.Role{model.RolePlanner, model.RoleExecutor, model.RoleCritic}, model.PolicyDefault)
	require.NoError(t, err)
	return New(traces), traces, traceID
}

func sampleLedgerEvent(traceID, eventID, prevHash string) model.ProtocolEvent {
	e := model.ProtocolEvent{
		SchemaVersion: model.SchemaVersion,
		TraceID:       traceID,
		EventID:       eventID,
		EventType:     model.EventSessionInitialized,
		CreatedAt:     model.NowISO(),
		Actor:         model.Actor{AgentID: "planner-01", Role: model.RolePlanner, KeyID: "key_x"},
		PayloadHash:   hashing.SHA256Hex([]byte("{}")),
		PayloadType:   "session.v1",
		Payload:       map[string]interface{}{},
		PrevEventHash: prevHash,
	}
	hash, err := hashing.HashCanonical(e.EventWithoutHash())
	if err != nil {
		panic(err)
	}
	e.EventHash = hash
	return e
}

func TestAppendEvent_UpdatesHeadCountAndPersistsLine(t *testing.T) {
	l, traces, traceID := newTestLedger(t)

	event := sampleLedgerEvent(traceID, "evt_01", hexid.GenesisPrevHash)
	session, err := l.AppendEvent(traceID, event)
	require.NoError(t, err)

	require.Equal(t, event.EventHash, session.HeadEventHash)
	require.Equal(t, 1, session.EventCount)

	reloaded, err := traces.LoadTrace(traceID)
	require.NoError(t, err)
	require.Equal(t, session.HeadEventHash, reloaded.HeadEventHash)
	require.Equal(t, 1, reloaded.EventCount)

	events, err := l.ReadEvents(traceID, true)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "evt_01", events[0].EventID)
}

func TestAppendEvent_RejectsPrevHashMismatch(t *testing.T) {
	l, _, traceID := newTestLedger(t)

	event := sampleLedgerEvent(traceID, "evt_01", "ff"+strings.Repeat("00", 31))
	_, err := l.AppendEvent(traceID, event)
	require.True(t, errors.Is(err, ErrPrevHashMismatch))
}

func TestAppendEvent_RejectsTraceIDMismatch(t *testing.T) {
	l, _, traceID := newTestLedger(t)

	event := sampleLedgerEvent("some-other-trace", "evt_01", hexid.GenesisPrevHash)
	_, err := l.AppendEvent(traceID, event)
	require.True(t, errors.Is(err, ErrTraceIDMismatch))
}

func TestAppendEvent_RejectsDuplicateEventID(t *testing.T) {
	l, _, traceID := newTestLedger(t)

	first := sampleLedgerEvent(traceID, "evt_01", hexid.GenesisPrevHash)
	session, err := l.AppendEvent(traceID, first)
	require.NoError(t, err)

	duplicate := sampleLedgerEvent(traceID, "evt_01", session.HeadEventHash)
	_, err = l.AppendEvent(traceID, duplicate)
	require.True(t, errors.Is(err, ErrDuplicateEventID))
}

func TestAppendEvent_ChainsAcrossMultipleEvents(t *testing.T) {
	l, _, traceID := newTestLedger(t)

	session, err := l.AppendEvent(traceID, sampleLedgerEvent(traceID, "evt_01", hexid.GenesisPrevHash))
	require.NoError(t, err)
	session, err = l.AppendEvent(traceID, sampleLedgerEvent(traceID, "evt_02", session.HeadEventHash))
	require.NoError(t, err)
	session, err = l.AppendEvent(traceID, sampleLedgerEvent(traceID, "evt_03", session.HeadEventHash))
	require.NoError(t, err)

	events, err := l.ReadEvents(traceID, true)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, hexid.GenesisPrevHash, events[0].PrevEventHash)
	require.Equal(t, events[0].EventHash, events[1].PrevEventHash)
	require.Equal(t, events[1].EventHash, events[2].PrevEventHash)
	require.Equal(t, session.HeadEventHash, events[2].EventHash)
	require.Equal(t, 3, session.EventCount)
}

func TestReadEvents_NoFileReturnsEmpty(t *testing.T) {
	traces, err := tracestore.New(t.TempDir())
	require.NoError(t, err)
	l := New(traces)

	events, err := l.ReadEvents("trace_never_created", true)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestReadEvents_RecoversMalformedTailAndTruncates(t *testing.T) {
	l, traces, traceID := newTestLedger(t)

	session, err := l.AppendEvent(traceID, sampleLedgerEvent(traceID, "evt_01", hexid.GenesisPrevHash))
	require.NoError(t, err)
	_, err = l.AppendEvent(traceID, sampleLedgerEvent(traceID, "evt_02", session.HeadEventHash))
	require.NoError(t, err)

	path := traces.EventsPath(traceID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"event_id":"evt_03","trace_id":` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	linesBefore := countLines(before)
	require.Equal(t, 3, linesBefore)

	events, err := l.ReadEvents(traceID, true)
	require.NoError(t, err)
	require.Len(t, events, 2)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, countLines(after))

	// Idempotent: running recovery again changes nothing further.
	eventsAgain, err := l.ReadEvents(traceID, true)
	require.NoError(t, err)
	require.Equal(t, events, eventsAgain)

	afterAgain, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, after, afterAgain)
}

func TestReadEvents_StopsAtMalformedInteriorLineWithoutRecovery(t *testing.T) {
	l, traces, traceID := newTestLedger(t)

	session, err := l.AppendEvent(traceID, sampleLedgerEvent(traceID, "evt_01", hexid.GenesisPrevHash))
	require.NoError(t, err)

	path := traces.EventsPath(traceID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not valid json\n")
	require.NoError(t, err)
	_, err = f.WriteString(`{"event_id":"evt_03"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := l.ReadEvents(traceID, false)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, session.HeadEventHash, events[0].EventHash)
}

func countLines(data []byte) int {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	n := 0
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			n++
		}
	}
	return n
}
