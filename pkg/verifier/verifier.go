// Package verifier implements the deterministic Verifier Pipeline
// (spec.md §4.8): ten ordered checks over a trace snapshot, producing a
// structured VerificationReport.
//
// Grounded on the teacher's pkg/verifier/verifier.go — "zero network
// dependencies... trusts only the cryptographic primitives and the
// EvidencePack format specification" — and its addCheck/addChecks
// accumulation shape, generalized from the teacher's seven ad hoc bundle
// checks to spec.md's ten fixed, ordered, severity-tagged checks over a
// ledger trace rather than a tarball bundle.
package verifier

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Adjoshi06/chainofCommand/internal/hexid"
	"github.com/Adjoshi06/chainofCommand/internal/ulid"
	"github.com/Adjoshi06/chainofCommand/pkg/artifacts"
	"github.com/Adjoshi06/chainofCommand/pkg/eventschema"
	"github.com/Adjoshi06/chainofCommand/pkg/hashing"
	"github.com/Adjoshi06/chainofCommand/pkg/keyring"
	"github.com/Adjoshi06/chainofCommand/pkg/ledger"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
	"github.com/Adjoshi06/chainofCommand/pkg/obs"
	report_ "github.com/Adjoshi06/chainofCommand/pkg/report"
	"github.com/Adjoshi06/chainofCommand/pkg/signing"
	"github.com/Adjoshi06/chainofCommand/pkg/tracestore"
)

// Check IDs, in mandatory execution order per spec.md §4.8.
const (
	CheckSchemaConformance       = "CHK_SCHEMA_CONFORMANCE"
	CheckEventHashIntegrity      = "CHK_EVENT_HASH_INTEGRITY"
	CheckChainContinuity         = "CHK_CHAIN_CONTINUITY"
	CheckSignatureValidity       = "CHK_SIGNATURE_VALIDITY"
	CheckKeyStatus               = "CHK_KEY_STATUS"
	CheckArtifactExistence       = "CHK_ARTIFACT_EXISTENCE"
	CheckArtifactHashMatch       = "CHK_ARTIFACT_HASH_MATCH"
	CheckClaimEvidenceSufficient = "CHK_CLAIM_EVIDENCE_SUFFICIENCY"
	CheckRolePolicyConformance   = "CHK_ROLE_POLICY_CONFORMANCE"
	CheckFinalizationIntegrity   = "CHK_FINALIZATION_INTEGRITY"
)

var orderedChecks = []struct {
	id   string
	name string
}{
	{CheckSchemaConformance, "Schema conformance"},
	{CheckEventHashIntegrity, "Event hash integrity"},
	{CheckChainContinuity, "Chain continuity"},
	{CheckSignatureValidity, "Signature validity"},
	{CheckKeyStatus, "Key status"},
	{CheckArtifactExistence, "Artifact existence"},
	{CheckArtifactHashMatch, "Artifact hash match"},
	{CheckClaimEvidenceSufficient, "Claim evidence sufficiency"},
	{CheckRolePolicyConformance, "Role policy conformance"},
	{CheckFinalizationIntegrity, "Finalization integrity"},
}

// Options configures a single verifier run (spec.md §4.8 input list).
type Options struct {
	CocHome                     string
	TraceID                     string
	PolicyProfile               model.PolicyProfile // empty = use session's profile
	WriteReports                bool
	ReportID                    string
	AllowIncompleteFinalization bool
}

// Pipeline runs the ten ordered checks over a trace and assembles the
// VerificationReport. It never raises for data-integrity problems in the
// trace under inspection — every such condition becomes a Failure; the
// pipeline only returns an error for infrastructure problems (trace not
// found, unreadable store) per spec.md §7.
type Pipeline struct {
	Traces    *tracestore.Store
	Ledger    *ledger.Ledger
	Artifacts *artifacts.Store
	Keys      *keyring.Registry
	obs       *obs.Provider
}

// PipelineOption configures optional Pipeline behavior.
type PipelineOption func(*Pipeline)

// WithObserver attaches an obs.Provider so every Run call is wrapped in a
// tracked operation, mirroring ledger.WithObserver. Omitting it leaves
// verification untracked.
func WithObserver(p *obs.Provider) PipelineOption {
	return func(pl *Pipeline) { pl.obs = p }
}

// New constructs a Pipeline over the given stores.
func New(traces *tracestore.Store, led *ledger.Ledger, arts *artifacts.Store, keys *keyring.Registry, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{Traces: traces, Ledger: led, Artifacts: arts, Keys: keys}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type runState struct {
	events    []model.ProtocolEvent
	policy    model.PolicyProfile
	allowIncomplete bool
	failures  []model.Failure
	warnings  []model.Failure
	signed    map[string]bool // event_id -> signature verified this run
}

func (r *runState) fail(checkID string, f model.Failure) {
	f.VerificationStep = checkID
	f.DetectedAt = model.NowISO()
	r.failures = append(r.failures, f)
}

func (r *runState) warn(checkID string, f model.Failure) {
	f.VerificationStep = checkID
	f.DetectedAt = model.NowISO()
	r.warnings = append(r.warnings, f)
}

func (r *runState) statusFor(checkID string) model.CheckStatus {
	for _, f := range r.failures {
		if f.VerificationStep == checkID {
			return model.CheckFail
		}
	}
	for _, w := range r.warnings {
		if w.VerificationStep == checkID {
			return model.CheckWarning
		}
	}
	return model.CheckPass
}

// Run executes the full pipeline and returns the structured report. If
// opts.WriteReports is true, the report is additionally persisted via the
// report writer; a zero-valued Options writes no reports (the `coc verify`
// CLI sets it to true unless --no-write-reports is given).
func (p *Pipeline) Run(opts Options) (*model.VerificationReport, error) {
	if p.obs == nil {
		return p.run(opts)
	}
	_, done := p.obs.TrackOperation(context.Background(), "verifier.run", attribute.String("trace_id", opts.TraceID))
	report, err := p.run(opts)
	done(err)
	return report, err
}

func (p *Pipeline) run(opts Options) (*model.VerificationReport, error) {
	started := time.Now()

	session, err := p.Traces.LoadTrace(opts.TraceID)
	if err != nil {
		return nil, fmt.Errorf("verifier: load trace: %w", err)
	}

	policy := opts.PolicyProfile
	if policy == "" {
		policy = session.PolicyProfile
	}

	events, err := p.Ledger.ReadEvents(opts.TraceID, true)
	if err != nil {
		return nil, fmt.Errorf("verifier: read events: %w", err)
	}

	state := &runState{
		events:          events,
		policy:          policy,
		allowIncomplete: opts.AllowIncompleteFinalization,
		signed:          make(map[string]bool),
	}

	checks := make([]model.Check, 0, len(orderedChecks))
	artifactRefCount := 0
	for _, e := range events {
		artifactRefCount += len(e.Artifacts)
	}

	chainBroken := false

	for _, c := range orderedChecks {
		t0 := time.Now()
		switch c.id {
		case CheckSchemaConformance:
			p.checkSchemaConformance(opts.TraceID, state)
		case CheckEventHashIntegrity:
			p.checkEventHashIntegrity(state)
		case CheckChainContinuity:
			chainBroken = p.checkChainContinuity(state)
		case CheckSignatureValidity:
			if !chainBroken {
				p.checkSignatureValidity(state)
			}
		case CheckKeyStatus:
			p.checkKeyStatus(state)
		case CheckArtifactExistence:
			p.checkArtifactExistence(state)
		case CheckArtifactHashMatch:
			p.checkArtifactHashMatch(state)
		case CheckClaimEvidenceSufficient:
			p.checkClaimEvidenceSufficiency(state)
		case CheckRolePolicyConformance:
			p.checkRolePolicyConformance(state)
		case CheckFinalizationIntegrity:
			p.checkFinalizationIntegrity(state)
		}
		elapsed := float64(time.Since(t0).Microseconds()) / 1000.0
		checks = append(checks, model.Check{
			CheckID:   c.id,
			Name:      c.name,
			Status:    state.statusFor(c.id),
			Scope:     "trace:" + opts.TraceID,
			ElapsedMs: elapsed,
		})
	}

	status := model.VerificationPass
	switch {
	case len(state.failures) > 0:
		status = model.VerificationFail
	case len(state.warnings) > 0:
		status = model.VerificationPassWithWarnings
	}

	reportID := opts.ReportID
	if reportID == "" {
		reportID = ulid.New()
	}

	report := &model.VerificationReport{
		ReportID:           reportID,
		TraceID:            opts.TraceID,
		VerifiedAt:         model.NowISO(),
		VerificationStatus: status,
		Summary:            summarize(status, len(state.failures), len(state.warnings), len(events)),
		Checks:              checks,
		Failures:            state.failures,
		Warnings:            state.warnings,
		Metrics: model.Metrics{
			EventCount:             len(events),
			ArtifactReferenceCount: artifactRefCount,
			VerificationDurationMs: float64(time.Since(started).Microseconds()) / 1000.0,
		},
		PolicyProfile: policy,
	}

	if opts.WriteReports {
		if err := report_.Write(p.Traces.Dir(opts.TraceID), report); err != nil {
			return report, err
		}
	}

	return report, nil
}

func summarize(status model.VerificationStatus, failures, warnings, events int) string {
	switch status {
	case model.VerificationPass:
		return fmt.Sprintf("all checks passed over %d events", events)
	case model.VerificationPassWithWarnings:
		return fmt.Sprintf("passed with %d warning(s) over %d events", warnings, events)
	default:
		return fmt.Sprintf("%d failure(s) and %d warning(s) over %d events", failures, warnings, events)
	}
}

// --- CHK_SCHEMA_CONFORMANCE -------------------------------------------------

func (p *Pipeline) checkSchemaConformance(traceID string, state *runState) {
	seen := make(map[string]bool, len(state.events))
	for _, e := range state.events {
		if err := eventschema.Validate(e); err != nil {
			state.fail(CheckSchemaConformance, model.Failure{
				FailureCode:             model.CodeSchemaInvalid,
				Severity:                model.SeverityMedium,
				EventID:                 e.EventID,
				Message:                 fmt.Sprintf("event failed schema validation: %v", err),
				SuggestedAction:         "inspect the offending event against the ProtocolEvent schema",
				Description:             "an event in the ledger does not conform to the required ProtocolEvent shape",
				RecommendedRemediation:  "repair or quarantine the malformed event; re-emit if it originated from a producer bug",
			})
			continue
		}
		if e.TraceID != traceID {
			state.fail(CheckSchemaConformance, model.Failure{
				FailureCode:            model.CodeSchemaInvalid,
				Severity:               model.SeverityMedium,
				EventID:                e.EventID,
				Message:                fmt.Sprintf("event.trace_id %q does not match trace %q", e.TraceID, traceID),
				SuggestedAction:        "verify the ledger file was not copied across traces",
				Description:            "an event's trace_id field disagrees with the trace it was read from",
				RecommendedRemediation: "remove or correct the misfiled event",
			})
		}
		if !model.AllEventTypes[e.EventType] {
			state.fail(CheckSchemaConformance, model.Failure{
				FailureCode:            model.CodeSchemaInvalid,
				Severity:               model.SeverityMedium,
				EventID:                e.EventID,
				Message:                fmt.Sprintf("event_type %q is not in the closed set", e.EventType),
				SuggestedAction:        "check the producer for a typo'd or unsupported event_type",
				Description:            "event_type must be one of the thirteen defined protocol event types",
				RecommendedRemediation: "correct the producer or drop the event",
			})
		}
		if seen[e.EventID] {
			state.fail(CheckSchemaConformance, model.Failure{
				FailureCode:            model.CodeSchemaInvalid,
				Severity:               model.SeverityMedium,
				EventID:                e.EventID,
				Message:                fmt.Sprintf("duplicate event_id %q within trace", e.EventID),
				SuggestedAction:        "identify the duplicate producer call and drop the replay",
				Description:            "every event_id must be unique within a trace",
				RecommendedRemediation: "truncate the replayed line from events.jsonl",
			})
		}
		seen[e.EventID] = true
	}
}

// --- CHK_EVENT_HASH_INTEGRITY ------------------------------------------------

func (p *Pipeline) checkEventHashIntegrity(state *runState) {
	for i := range state.events {
		e := state.events[i]
		got, err := signing.EventHash(&e)
		if err != nil || got != e.EventHash {
			state.fail(CheckEventHashIntegrity, model.Failure{
				FailureCode:            model.CodeHashMismatch,
				Severity:               model.SeverityCritical,
				EventID:                e.EventID,
				Message:                "recomputed event_hash does not match the stored value",
				SuggestedAction:        "treat this event and everything after it as untrusted",
				Description:            "the event's canonical bytes no longer hash to the event_hash field recorded at append time",
				RecommendedRemediation: "restore the event from a trusted backup or mark the trace tampered",
			})
		}
	}
}

// --- CHK_CHAIN_CONTINUITY ----------------------------------------------------

// checkChainContinuity returns true if the chain is broken (used to gate
// later checks that assume event[i-1] relationships are meaningful).
func (p *Pipeline) checkChainContinuity(state *runState) bool {
	for i, e := range state.events {
		var expected string
		if i == 0 {
			expected = hexid.GenesisPrevHash
		} else {
			expected = state.events[i-1].EventHash
		}
		if e.PrevEventHash != expected {
			state.fail(CheckChainContinuity, model.Failure{
				FailureCode:            model.CodeChainBreak,
				Severity:               model.SeverityCritical,
				EventID:                e.EventID,
				Message:                fmt.Sprintf("prev_event_hash %q does not match expected predecessor hash %q", e.PrevEventHash, expected),
				SuggestedAction:        "locate the missing or reordered predecessor event",
				Description:            "the hash chain is broken at this event; every subsequent event is unverifiable",
				RecommendedRemediation: "restore the missing event or mark the trace tampered",
			})
			return true
		}
	}
	return false
}

// --- CHK_SIGNATURE_VALIDITY --------------------------------------------------

func (p *Pipeline) checkSignatureValidity(state *runState) {
	for i := range state.events {
		e := state.events[i]
		required := model.RequiredSignedEventTypes[e.EventType]
		if e.Signature == nil {
			if required {
				state.fail(CheckSignatureValidity, model.Failure{
					FailureCode:            model.CodeSigMissing,
					Severity:               model.SeverityCritical,
					EventID:                e.EventID,
					Message:                fmt.Sprintf("%s requires a signature but none is present", e.EventType),
					SuggestedAction:        "re-sign the event with the actor's key before accepting the trace",
					Description:            "this event_type is in the required-signed set",
					RecommendedRemediation: "have the producing agent re-emit a signed event",
				})
			}
			continue
		}

		pub, err := p.Keys.ResolvePublicKey(e.Actor.KeyID)
		if err != nil || pub == nil {
			state.fail(CheckSignatureValidity, model.Failure{
				FailureCode:            model.CodeSigInvalid,
				Severity:               model.SeverityCritical,
				EventID:                e.EventID,
				Message:                fmt.Sprintf("key_id %q does not resolve to a known public key", e.Actor.KeyID),
				SuggestedAction:        "verify the key registry has not been pruned or corrupted",
				Description:            "a signed event's actor.key_id must resolve via the key registry",
				RecommendedRemediation: "restore the missing identity record",
			})
			continue
		}

		ok, err := signing.Verify(pub, &e, e.Signature)
		if err != nil || !ok {
			state.fail(CheckSignatureValidity, model.Failure{
				FailureCode:            model.CodeSigInvalid,
				Severity:               model.SeverityCritical,
				EventID:                e.EventID,
				Message:                "signature does not verify against the resolved public key",
				SuggestedAction:        "treat the event payload as tampered",
				Description:            "either the signed bytes were mutated after signing or the signature itself is corrupt",
				RecommendedRemediation: "restore the event from a trusted backup or mark the trace tampered",
			})
			continue
		}

		// The signature binds payload_hash, not the payload body itself
		// (spec.md §4.4's signed-field subset). A payload mutated without
		// recomputing payload_hash breaks that commitment even though the
		// cryptographic signature still verifies, so it is reported here
		// as a signature-validity failure rather than silently accepted.
		actualPayloadHash, err := hashing.HashCanonical(e.Payload)
		if err != nil || actualPayloadHash != e.PayloadHash {
			state.fail(CheckSignatureValidity, model.Failure{
				FailureCode:            model.CodeSigInvalid,
				Severity:               model.SeverityCritical,
				EventID:                e.EventID,
				Message:                "payload no longer hashes to the signed payload_hash",
				SuggestedAction:        "treat the event payload as tampered",
				Description:            "payload_hash is part of the signed subset; its commitment to payload no longer holds",
				RecommendedRemediation: "restore the event from a trusted backup or mark the trace tampered",
			})
			continue
		}
		state.signed[e.EventID] = true
	}
}

// --- CHK_KEY_STATUS -----------------------------------------------------------

func (p *Pipeline) checkKeyStatus(state *runState) {
	for _, e := range state.events {
		identity, err := p.Keys.ResolveIdentity(e.Actor.KeyID)
		if err != nil || identity == nil {
			// CHK_SIGNATURE_VALIDITY only resolves key_id for events whose
			// event_type requires a signature (spec.md §4.3's
			// RequiredSignedEventTypes). Every other event still carries an
			// actor.key_id, and spec.md §4.8 check 5 runs "for every event" —
			// a forged or nonexistent key_id on an unsigned event type must
			// not pass silently.
			state.fail(CheckKeyStatus, model.Failure{
				FailureCode:            model.CodeSchemaInvalid,
				Severity:               model.SeverityMedium,
				EventID:                e.EventID,
				Message:                fmt.Sprintf("actor.key_id %q does not resolve to any known identity", e.Actor.KeyID),
				SuggestedAction:        "confirm the actor block was issued by a registered agent",
				Description:            "every event's actor.key_id must resolve to a registered identity, signed or not",
				RecommendedRemediation: "correct the actor block or register the missing identity",
			})
			continue
		}
		if identity.AgentID != e.Actor.AgentID {
			state.fail(CheckKeyStatus, model.Failure{
				FailureCode:            model.CodeSchemaInvalid,
				Severity:               model.SeverityMedium,
				EventID:                e.EventID,
				Message:                fmt.Sprintf("key_id %q is owned by agent_id %q, not %q", e.Actor.KeyID, identity.AgentID, e.Actor.AgentID),
				SuggestedAction:        "verify the actor block was not forged or mismatched",
				Description:            "an event's actor.key_id must resolve to an identity whose agent_id matches actor.agent_id",
				RecommendedRemediation: "correct the actor block or revoke the misattributed key",
			})
			continue
		}
		if identity.Status == model.KeyStatusRevoked && identity.RevokedAt != "" && e.CreatedAt >= identity.RevokedAt {
			state.fail(CheckKeyStatus, model.Failure{
				FailureCode:            model.CodeSchemaInvalid,
				Severity:               model.SeverityMedium,
				EventID:                e.EventID,
				Message:                fmt.Sprintf("event uses key %q revoked at %q (event created_at %q)", e.Actor.KeyID, identity.RevokedAt, e.CreatedAt),
				SuggestedAction:        "confirm the agent's rotation procedure predates this event",
				Description:            "a revoked key is invalid for any event dated at or after revoked_at",
				RecommendedRemediation: "re-issue the event under the agent's current key",
			})
		}
	}
}

// --- CHK_ARTIFACT_EXISTENCE --------------------------------------------------

func (p *Pipeline) checkArtifactExistence(state *runState) {
	for _, e := range state.events {
		for _, a := range e.Artifacts {
			has, err := p.Artifacts.HasArtifact(a.ArtifactHash)
			if err != nil || !has {
				state.fail(CheckArtifactExistence, model.Failure{
					FailureCode:            model.CodeArtifactMissing,
					Severity:               model.SeverityHigh,
					EventID:                e.EventID,
					ArtifactHash:           a.ArtifactHash,
					Message:                fmt.Sprintf("no blob found for artifact_hash %q", a.ArtifactHash),
					SuggestedAction:        "restore the blob from a trusted backup",
					Description:            "every artifact_hash referenced by an event must have a corresponding blob in the store",
					RecommendedRemediation: "re-upload the artifact or mark the trace tampered",
				})
			}
		}
	}
}

// --- CHK_ARTIFACT_HASH_MATCH -------------------------------------------------

func (p *Pipeline) checkArtifactHashMatch(state *runState) {
	checked := make(map[string]bool)
	for _, e := range state.events {
		for _, a := range e.Artifacts {
			if checked[a.ArtifactHash] {
				continue
			}
			checked[a.ArtifactHash] = true
			has, err := p.Artifacts.HasArtifact(a.ArtifactHash)
			if err != nil || !has {
				continue // reported by CHK_ARTIFACT_EXISTENCE
			}
			actual, err := p.Artifacts.RecomputeHash(a.ArtifactHash)
			if err != nil || actual != a.ArtifactHash {
				state.fail(CheckArtifactHashMatch, model.Failure{
					FailureCode:            model.CodeArtifactHashMismatch,
					Severity:               model.SeverityHigh,
					EventID:                e.EventID,
					ArtifactHash:           a.ArtifactHash,
					Message:                "recomputed SHA-256 of the stored blob does not match its content-address",
					SuggestedAction:        "treat the blob as tampered and restore from backup",
					Description:            "a blob's on-disk bytes no longer match the hash used to address it",
					RecommendedRemediation: "re-upload the artifact from the original source",
				})
			}
		}
	}
}

// --- CHK_CLAIM_EVIDENCE_SUFFICIENCY -----------------------------------------

func (p *Pipeline) checkClaimEvidenceSufficiency(state *runState) {
	artifactOK := make(map[string]bool)
	for _, e := range state.events {
		for _, a := range e.Artifacts {
			has, err := p.Artifacts.HasArtifact(a.ArtifactHash)
			if err != nil || !has {
				continue
			}
			actual, err := p.Artifacts.RecomputeHash(a.ArtifactHash)
			artifactOK[a.ArtifactHash] = err == nil && actual == a.ArtifactHash
		}
	}

	type claimInfo struct {
		event         model.ProtocolEvent
		evidenceHashes []string
	}
	claims := make(map[string]claimInfo)

	for _, e := range state.events {
		if e.EventType != model.EventClaimIssued {
			continue
		}
		for _, claimID := range e.Claims {
			evidence := extractEvidenceHashes(e)
			for _, a := range e.Artifacts {
				evidence = append(evidence, a.ArtifactHash)
			}
			claims[claimID] = claimInfo{event: e, evidenceHashes: evidence}
		}
	}

	for claimID, info := range claims {
		sufficient := len(info.evidenceHashes) > 0 && state.signed[info.event.EventID]
		for _, h := range info.evidenceHashes {
			if !artifactOK[h] {
				sufficient = false
			}
		}
		if !sufficient {
			state.fail(CheckClaimEvidenceSufficient, model.Failure{
				FailureCode:            model.CodeClaimUnproven,
				Severity:               model.SeverityHigh,
				EventID:                info.event.EventID,
				Message:                fmt.Sprintf("claim %q lacks sufficient verified evidence", claimID),
				SuggestedAction:        "attach at least one verified evidence artifact before relying on this claim",
				Description:            "a claim_issued event must carry at least one evidence artifact that both exists and hashes correctly, and must itself pass signature validity",
				RecommendedRemediation: "re-issue the claim with valid evidence artifacts",
			})
		}
	}

	for _, e := range state.events {
		if e.EventType != model.EventClaimChallenged {
			continue
		}
		resolved, _ := e.Payload["resolved"].(bool)
		if resolved {
			continue
		}
		for _, claimID := range e.Claims {
			if _, known := claims[claimID]; !known {
				continue
			}
			switch state.policy {
			case model.PolicyStrict:
				state.fail(CheckClaimEvidenceSufficient, model.Failure{
					FailureCode:            model.CodeClaimUnproven,
					Severity:               model.SeverityHigh,
					EventID:                e.EventID,
					Message:                fmt.Sprintf("claim %q is disputed and unresolved under strict policy", claimID),
					SuggestedAction:        "resolve the dispute before accepting this trace",
					Description:            "under the strict policy profile, an unresolved disputed claim fails verification",
					RecommendedRemediation: "have the critic or executor resolve the challenge",
				})
			default:
				state.warn(CheckClaimEvidenceSufficient, model.Failure{
					FailureCode:            model.CodeClaimDisputed,
					Severity:               model.SeverityMedium,
					EventID:                e.EventID,
					Message:                fmt.Sprintf("claim %q is disputed and unresolved", claimID),
					SuggestedAction:        "review the dispute before relying on this claim",
					Description:            "the default and lenient policy profiles downgrade an unresolved disputed claim to a warning",
					RecommendedRemediation: "have the critic or executor resolve the challenge",
				})
			}
		}
	}
}

func extractEvidenceHashes(e model.ProtocolEvent) []string {
	raw, ok := e.Payload["evidence_artifacts"]
	if !ok {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	hashes := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			hashes = append(hashes, s)
		}
	}
	return hashes
}

// --- CHK_ROLE_POLICY_CONFORMANCE --------------------------------------------

func (p *Pipeline) checkRolePolicyConformance(state *runState) {
	for _, e := range state.events {
		allowed := model.RolePolicy[e.Actor.Role]
		if allowed == nil || !allowed[e.EventType] {
			state.fail(CheckRolePolicyConformance, model.Failure{
				FailureCode:            model.CodeRolePolicyViolation,
				Severity:               model.SeverityMedium,
				EventID:                e.EventID,
				Message:                fmt.Sprintf("role %q is not permitted to emit %q", e.Actor.Role, e.EventType),
				SuggestedAction:        "verify the actor's role was not tampered with or misassigned",
				Description:            "the role/event_type policy is a closed mapping defined in spec.md §3",
				RecommendedRemediation: "correct the actor's role or have the correct role re-emit the event",
			})
		}
	}
}

// --- CHK_FINALIZATION_INTEGRITY ---------------------------------------------

func (p *Pipeline) checkFinalizationIntegrity(state *runState) {
	var finalIdx, vcIdx = -1, -1
	finalCount, vsCount := 0, 0

	for i, e := range state.events {
		switch e.EventType {
		case model.EventFinalStatementSigned:
			finalCount++
			finalIdx = i
		case model.EventVerificationRunStarted:
			vsCount++
		case model.EventVerificationRunCompleted:
			vcIdx = i
		}
	}

	if finalCount != 1 {
		state.fail(CheckFinalizationIntegrity, model.Failure{
			FailureCode:            model.CodeSchemaInvalid,
			Severity:               model.SeverityMedium,
			Message:                fmt.Sprintf("expected exactly one final_statement_signed event, found %d", finalCount),
			SuggestedAction:        "ensure the executor emits exactly one final statement",
			Description:            "a trace must be finalized by exactly one final_statement_signed event",
			RecommendedRemediation: "re-run the protocol to completion",
		})
	}
	if vsCount == 0 {
		state.fail(CheckFinalizationIntegrity, model.Failure{
			FailureCode:            model.CodeSchemaInvalid,
			Severity:               model.SeverityMedium,
			Message:                "no verification_run_started event present",
			SuggestedAction:        "ensure the auditor announces the verification run before completing it",
			Description:            "a trace must record that a verification run was started",
			RecommendedRemediation: "have the auditor emit verification_run_started",
		})
	}
	if vcIdx == -1 {
		if state.allowIncomplete {
			state.warn(CheckFinalizationIntegrity, model.Failure{
				FailureCode:            model.CodeFinalizationIncomplete,
				Severity:               model.SeverityLow,
				Message:                "no verification_run_completed event present",
				SuggestedAction:        "re-run verification once the auditor completes the run",
				Description:            "allow_incomplete_finalization downgrades a missing completion event to a warning",
				RecommendedRemediation: "have the auditor emit verification_run_completed",
			})
		} else {
			state.fail(CheckFinalizationIntegrity, model.Failure{
				FailureCode:            model.CodeSchemaInvalid,
				Severity:               model.SeverityMedium,
				Message:                "no verification_run_completed event present",
				SuggestedAction:        "re-run verification to completion or pass allow_incomplete_finalization",
				Description:            "a trace must record that its verification run completed unless explicitly allowed to be incomplete",
				RecommendedRemediation: "have the auditor emit verification_run_completed",
			})
		}
	}

	if finalIdx != -1 && vcIdx != -1 && finalIdx >= vcIdx {
		state.fail(CheckFinalizationIntegrity, model.Failure{
			FailureCode:            model.CodeRolePolicyViolation,
			Severity:               model.SeverityMedium,
			Message:                "final_statement_signed must precede verification_run_completed",
			SuggestedAction:        "verify the protocol emitter's ordering logic",
			Description:            "finalization must be signed before the auditor can verify and complete the run",
			RecommendedRemediation: "re-run the protocol with the correct event ordering",
		})
	}
}
