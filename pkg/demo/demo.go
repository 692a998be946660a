// Package demo implements the peripheral Demo Protocol Emitter (C13): a
// single canned, internally consistent trace exercising every event type
// except tool_execution_failed, every role, one claim challenge (marked
// resolved), and one artifact. It is a thin consumer
// of the Key Registry, Trace Store, Artifact Store, and Ledger only — it
// contains no verifier logic — and exists so the property-law tests
// (spec.md §8) have a known-good-path fixture to mutate into scenarios
// S1-S10.
//
// Grounded on the teacher's cmd/helm-node/demo.go insofar as a "demo"
// component is a thin orchestration layer over the real stores rather than
// a mock; the event sequence itself follows spec.md §8's S1 Good Path
// description directly, since no reference repo emits this protocol.
package demo

import (
	"fmt"

	"github.com/Adjoshi06/chainofCommand/internal/ulid"
	"github.com/Adjoshi06/chainofCommand/pkg/artifacts"
	"github.com/Adjoshi06/chainofCommand/pkg/hashing"
	"github.com/Adjoshi06/chainofCommand/pkg/keyring"
	"github.com/Adjoshi06/chainofCommand/pkg/ledger"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
	"github.com/Adjoshi06/chainofCommand/pkg/signing"
	"github.com/Adjoshi06/chainofCommand/pkg/tracestore"
)

// Stores bundles the four core components the emitter writes through.
type Stores struct {
	Keys      *keyring.Registry
	Traces    *tracestore.Store
	Artifacts *artifacts.Store
	Ledger    *ledger.Ledger
}

// Result describes what the emitted trace contains, for use by scenario
// tests that need to locate specific events/artifacts/claims to mutate.
type Result struct {
	TraceID            string
	ProposalEventID    string
	ClaimID            string
	ClaimEventID       string
	ArtifactHash       string
	FirstEventID       string
	EventIDs           []string
}

// agents used by the canned sequence, one per role.
var roster = []struct {
	agentID     string
	displayName string
	role        model.Role
}{
	{"planner-01", "Planner One", model.RolePlanner},
	{"executor-01", "Executor One", model.RoleExecutor},
	{"critic-01", "Critic One", model.RoleCritic},
	{"auditor-01", "Auditor One", model.RoleAuditor},
}

type emitter struct {
	stores Stores
	keys   map[model.Role]keyring.KeyMaterial
	head   string
}

// EmitGoodPath creates a fresh trace and appends a complete, internally
// consistent sequence of events: session_initialized, proposal_created,
// proposal_reviewed, tool_intent_signed, tool_execution_started,
// tool_execution_completed, artifact_recorded, claim_issued,
// claim_challenged (resolved), final_statement_signed,
// verification_run_started, verification_run_completed.
func EmitGoodPath(stores Stores, taskID string, policy model.PolicyProfile) (*Result, error) {
	e := &emitter{stores: stores, keys: make(map[model.Role]keyring.KeyMaterial)}
	for _, a := range roster {
		km, err := stores.Keys.EnsureKey(a.agentID, a.displayName, []model.Role{a.role})
		if err != nil {
			return nil, fmt.Errorf("demo: ensure key for %s: %w", a.agentID, err)
		}
		e.keys[a.role] = km
	}

	traceID := ulid.New()
	participants := []model.Role{model.RolePlanner, model.RoleExecutor, model.RoleCritic, model.RoleAuditor}
	if _, err := stores.Traces.CreateTrace(traceID, taskID, participants, policy); err != nil {
		return nil, fmt.Errorf("demo: create trace: %w", err)
	}
	e.head = ""

	result := &Result{TraceID: traceID}

	sessionEvt, err := e.appendSigned(traceID, model.RolePlanner, model.EventSessionInitialized, "session.v1",
		map[string]interface{}{"task_id": taskID}, nil, nil)
	if err != nil {
		return nil, err
	}
	result.FirstEventID = sessionEvt.EventID
	result.EventIDs = append(result.EventIDs, sessionEvt.EventID)

	proposalEvt, err := e.appendSigned(traceID, model.RolePlanner, model.EventProposalCreated, "proposal.v1",
		map[string]interface{}{"summary": "plan: gather data then produce report"}, nil, nil)
	if err != nil {
		return nil, err
	}
	result.ProposalEventID = proposalEvt.EventID
	result.EventIDs = append(result.EventIDs, proposalEvt.EventID)

	reviewEvt, err := e.appendSigned(traceID, model.RoleCritic, model.EventProposalReviewed, "review.v1",
		map[string]interface{}{"proposal_event_id": proposalEvt.EventID, "verdict": "approved"}, nil, nil)
	if err != nil {
		return nil, err
	}
	result.EventIDs = append(result.EventIDs, reviewEvt.EventID)

	intentEvt, err := e.appendSigned(traceID, model.RoleExecutor, model.EventToolIntentSigned, "intent.v1",
		map[string]interface{}{"tool": "fetch_report_data", "args": map[string]interface{}{"source": "ledger-demo"}}, nil, nil)
	if err != nil {
		return nil, err
	}
	result.EventIDs = append(result.EventIDs, intentEvt.EventID)

	startEvt, err := e.appendSigned(traceID, model.RoleExecutor, model.EventToolExecutionStarted, "execution.v1",
		map[string]interface{}{"tool": "fetch_report_data"}, nil, nil)
	if err != nil {
		return nil, err
	}
	result.EventIDs = append(result.EventIDs, startEvt.EventID)

	artifactBytes := []byte(`{"finding":"demo evidence payload","confidence":0.97}`)
	desc, err := stores.Artifacts.WriteArtifact(traceID, startEvt.EventID, artifactBytes, "application/json", "", model.RedactionNone)
	if err != nil {
		return nil, fmt.Errorf("demo: write artifact: %w", err)
	}
	result.ArtifactHash = desc.ArtifactHash

	completedEvt, err := e.appendSigned(traceID, model.RoleExecutor, model.EventToolExecutionCompleted, "execution.v1",
		map[string]interface{}{"tool": "fetch_report_data", "status": "ok"}, nil, nil)
	if err != nil {
		return nil, err
	}
	result.EventIDs = append(result.EventIDs, completedEvt.EventID)

	recordedEvt, err := e.appendSigned(traceID, model.RoleExecutor, model.EventArtifactRecorded, "artifact.v1",
		map[string]interface{}{"artifact_hash": desc.ArtifactHash}, nil, []model.ArtifactDescriptor{desc})
	if err != nil {
		return nil, err
	}
	result.EventIDs = append(result.EventIDs, recordedEvt.EventID)

	claimID := ulid.Prefixed("claim")
	claimEvt, err := e.appendSigned(traceID, model.RoleExecutor, model.EventClaimIssued, "claim.v1",
		map[string]interface{}{
			"statement":          "the fetched data supports the proposed report",
			"evidence_artifacts": []string{desc.ArtifactHash},
		},
		[]string{claimID}, []model.ArtifactDescriptor{desc})
	if err != nil {
		return nil, err
	}
	result.ClaimID = claimID
	result.ClaimEventID = claimEvt.EventID
	result.EventIDs = append(result.EventIDs, claimEvt.EventID)

	challengeEvt, err := e.appendSigned(traceID, model.RoleCritic, model.EventClaimChallenged, "challenge.v1",
		map[string]interface{}{"reason": "requested confirmation", "resolved": true},
		[]string{claimID}, nil)
	if err != nil {
		return nil, err
	}
	result.EventIDs = append(result.EventIDs, challengeEvt.EventID)

	finalEvt, err := e.appendSigned(traceID, model.RoleExecutor, model.EventFinalStatementSigned, "final.v1",
		map[string]interface{}{"outcome": "report delivered", "claims": []string{claimID}}, nil, nil)
	if err != nil {
		return nil, err
	}
	result.EventIDs = append(result.EventIDs, finalEvt.EventID)

	vStartEvt, err := e.appendSigned(traceID, model.RoleAuditor, model.EventVerificationRunStarted, "verification.v1",
		map[string]interface{}{}, nil, nil)
	if err != nil {
		return nil, err
	}
	result.EventIDs = append(result.EventIDs, vStartEvt.EventID)

	vCompleteEvt, err := e.appendSigned(traceID, model.RoleAuditor, model.EventVerificationRunCompleted, "verification.v1",
		map[string]interface{}{"verification_status": "pass"}, nil, nil)
	if err != nil {
		return nil, err
	}
	result.EventIDs = append(result.EventIDs, vCompleteEvt.EventID)

	if err := e.stores.Traces.SaveTrace(mustSucceed(e.stores.Traces.UpdateStatus(traceID, model.TraceSucceeded, model.NowISO()))); err != nil {
		return nil, err
	}

	return result, nil
}

func mustSucceed(session model.TraceSession, err error) model.TraceSession {
	if err != nil {
		panic(err)
	}
	return session
}

// appendSigned builds, hashes, signs, and appends one event in a single
// step, advancing the emitter's notion of the current head hash.
func (e *emitter) appendSigned(traceID string, role model.Role, eventType model.EventType, payloadType string, payload map[string]interface{}, claims []string, arts []model.ArtifactDescriptor) (model.ProtocolEvent, error) {
	km := e.keys[role]

	payloadHash, err := hashing.HashCanonical(payload)
	if err != nil {
		return model.ProtocolEvent{}, fmt.Errorf("demo: hash payload: %w", err)
	}

	prevHash := e.head
	if prevHash == "" {
		session, err := e.stores.Traces.LoadTrace(traceID)
		if err != nil {
			return model.ProtocolEvent{}, err
		}
		prevHash = session.HeadEventHash
	}

	event := model.ProtocolEvent{
		SchemaVersion: model.SchemaVersion,
		TraceID:       traceID,
		EventID:       ulid.New(),
		EventType:     eventType,
		CreatedAt:     model.NowISO(),
		Actor:         model.Actor{AgentID: km.Identity.AgentID, Role: role, KeyID: km.Identity.KeyID},
		PayloadHash:   payloadHash,
		PrevEventHash: prevHash,
		PayloadType:   payloadType,
		Payload:       payload,
		Claims:        claims,
		Artifacts:     arts,
	}

	sig, err := signing.Sign(km.PrivateKey, &event)
	if err != nil {
		return model.ProtocolEvent{}, fmt.Errorf("demo: sign event: %w", err)
	}
	event.Signature = sig

	hash, err := signing.EventHash(&event)
	if err != nil {
		return model.ProtocolEvent{}, fmt.Errorf("demo: hash event: %w", err)
	}
	event.EventHash = hash

	session, err := e.stores.Ledger.AppendEvent(traceID, event)
	if err != nil {
		return model.ProtocolEvent{}, fmt.Errorf("demo: append event: %w", err)
	}
	e.head = session.HeadEventHash

	return event, nil
}
