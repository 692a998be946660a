// Package model holds the persisted data-model types shared by every
// component of the chain-of-custody core: identities, artifacts, events,
// trace sessions, and verification reports. Field names and json tags
// follow the wire contract exactly; no component mutates these structs in
// place except through the append-only or rotate/revoke operations that own
// them.
package model

import "time"

// SchemaVersion is stamped onto every persisted document.
const SchemaVersion = "1.0.0"

// KeyStatus enumerates the lifecycle states of an AgentIdentity's key.
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusRotated KeyStatus = "rotated"
	KeyStatusRevoked KeyStatus = "revoked"
)

// Role enumerates the closed set of actor roles.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleExecutor Role = "executor"
	RoleCritic   Role = "critic"
	RoleAuditor  Role = "auditor"
)

// AgentIdentity is the durable record of an agent's signing identity.
type AgentIdentity struct {
	SchemaVersion    string     `json:"schema_version"`
	AgentID          string     `json:"agent_id"`
	DisplayName      string     `json:"display_name"`
	RoleCapabilities []Role     `json:"role_capabilities"`
	KeyID            string     `json:"key_id"`
	PublicKey        string     `json:"public_key"` // PEM SPKI
	KeyAlgorithm     string     `json:"key_algorithm"`
	Status           KeyStatus  `json:"status"`
	CreatedAt        string     `json:"created_at"`
	UpdatedAt        string     `json:"updated_at"`
	RevokedAt        string     `json:"revoked_at,omitempty"`
	RevokedReason    string     `json:"revoked_reason,omitempty"`
}

// RedactionStatus enumerates the closed set of artifact redaction states.
type RedactionStatus string

const (
	RedactionNone               RedactionStatus = "none"
	RedactionRedacted           RedactionStatus = "redacted"
	RedactionRedactedWithPointer RedactionStatus = "redacted-with-pointer"
)

// ArtifactReference is a single (trace, producer-event) back-reference
// recorded by value in an artifact's sidecar — never a pointer, per the
// cyclic-data design note.
type ArtifactReference struct {
	TraceID         string `json:"trace_id"`
	ProducerEventID string `json:"producer_event_id"`
	CreatedAt       string `json:"created_at"`
}

// ArtifactDescriptor describes a single content-addressed blob.
type ArtifactDescriptor struct {
	ArtifactHash        string              `json:"artifact_hash"`
	HashAlgorithm       string              `json:"hash_algorithm"`
	MediaType           string              `json:"media_type"`
	Encoding            string              `json:"encoding,omitempty"`
	ByteSize            int64               `json:"byte_size"`
	CreatedAt           string              `json:"created_at"`
	ProducerEventID     string              `json:"producer_event_id"`
	StorageURI          string              `json:"storage_uri"`
	RedactionStatus     RedactionStatus     `json:"redaction_status"`
	TraceID             string              `json:"trace_id,omitempty"`
	IntegrityVerifiedAt string              `json:"integrity_verified_at,omitempty"`
	References          []ArtifactReference `json:"references,omitempty"`
}

// Actor identifies who performed an event.
type Actor struct {
	AgentID string `json:"agent_id"`
	Role    Role   `json:"role"`
	KeyID   string `json:"key_id"`
}

// Signature is the Ed25519 signature envelope over an event's signed subset.
type Signature struct {
	Algorithm      string `json:"algorithm"`
	SignatureB64   string `json:"signature_b64"`
	SignedBytesHash string `json:"signed_bytes_hash"`
}

// EventType enumerates the closed set of ledger event types.
type EventType string

const (
	EventSessionInitialized       EventType = "session_initialized"
	EventProposalCreated          EventType = "proposal_created"
	EventProposalReviewed         EventType = "proposal_reviewed"
	EventToolIntentSigned         EventType = "tool_intent_signed"
	EventToolExecutionStarted     EventType = "tool_execution_started"
	EventToolExecutionCompleted   EventType = "tool_execution_completed"
	EventToolExecutionFailed      EventType = "tool_execution_failed"
	EventArtifactRecorded         EventType = "artifact_recorded"
	EventClaimIssued              EventType = "claim_issued"
	EventClaimChallenged          EventType = "claim_challenged"
	EventFinalStatementSigned     EventType = "final_statement_signed"
	EventVerificationRunStarted   EventType = "verification_run_started"
	EventVerificationRunCompleted EventType = "verification_run_completed"
)

// AllEventTypes is the closed set, in no particular order; used for
// CHK_SCHEMA_CONFORMANCE membership tests.
var AllEventTypes = map[EventType]bool{
	EventSessionInitialized:       true,
	EventProposalCreated:          true,
	EventProposalReviewed:         true,
	EventToolIntentSigned:         true,
	EventToolExecutionStarted:     true,
	EventToolExecutionCompleted:   true,
	EventToolExecutionFailed:      true,
	EventArtifactRecorded:         true,
	EventClaimIssued:              true,
	EventClaimChallenged:          true,
	EventFinalStatementSigned:     true,
	EventVerificationRunStarted:   true,
	EventVerificationRunCompleted: true,
}

// RequiredSignedEventTypes must carry a valid signature for the trace to pass.
var RequiredSignedEventTypes = map[EventType]bool{
	EventProposalCreated:          true,
	EventToolIntentSigned:         true,
	EventClaimIssued:              true,
	EventClaimChallenged:          true,
	EventFinalStatementSigned:     true,
	EventVerificationRunCompleted: true,
}

// RolePolicy is the exhaustive, closed mapping of role -> permitted event types.
var RolePolicy = map[Role]map[EventType]bool{
	RolePlanner: {
		EventSessionInitialized: true,
		EventProposalCreated:    true,
	},
	RoleExecutor: {
		EventToolIntentSigned:       true,
		EventToolExecutionStarted:   true,
		EventToolExecutionCompleted: true,
		EventToolExecutionFailed:    true,
		EventArtifactRecorded:       true,
		EventClaimIssued:            true,
		EventFinalStatementSigned:   true,
	},
	RoleCritic: {
		EventProposalReviewed: true,
		EventClaimChallenged:  true,
	},
	RoleAuditor: {
		EventVerificationRunStarted:   true,
		EventVerificationRunCompleted: true,
	},
}

// ProtocolEvent is the atomic, hash-chained, signed ledger record.
type ProtocolEvent struct {
	SchemaVersion string       `json:"schema_version"`
	TraceID       string       `json:"trace_id"`
	EventID       string       `json:"event_id"`
	EventType     EventType    `json:"event_type"`
	CreatedAt     string       `json:"created_at"`

	Actor Actor `json:"actor"`

	PayloadHash   string    `json:"payload_hash"`
	PrevEventHash string    `json:"prev_event_hash"`
	EventHash     string    `json:"event_hash"`
	Signature     *Signature `json:"signature,omitempty"`

	PayloadType string                 `json:"payload_type"`
	Payload     map[string]interface{} `json:"payload"`
	Claims      []string               `json:"claims,omitempty"`
	Artifacts   []ArtifactDescriptor   `json:"artifacts,omitempty"`
}

// SignedSubset returns the exact field subset that is canonicalized and
// signed / hashed, in the field set spec.md §4.4 mandates (key order is
// irrelevant — canonicalization sorts keys).
func (e *ProtocolEvent) SignedSubset() map[string]interface{} {
	return map[string]interface{}{
		"schema_version":  e.SchemaVersion,
		"trace_id":        e.TraceID,
		"event_id":        e.EventID,
		"event_type":      string(e.EventType),
		"created_at":      e.CreatedAt,
		"actor":           e.Actor,
		"payload_hash":    e.PayloadHash,
		"payload_type":    e.PayloadType,
		"claims":          claimsOrEmpty(e.Claims),
		"artifacts":       artifactsOrEmpty(e.Artifacts),
		"prev_event_hash": e.PrevEventHash,
	}
}

func claimsOrEmpty(c []string) []string {
	if c == nil {
		return []string{}
	}
	return c
}

func artifactsOrEmpty(a []ArtifactDescriptor) []ArtifactDescriptor {
	if a == nil {
		return []ArtifactDescriptor{}
	}
	return a
}

// EventWithoutHash returns a map of every event field except event_hash,
// for the event-hash computation (spec.md §4.4: the signature IS included
// in the event hash, binding it to chain position).
func (e *ProtocolEvent) EventWithoutHash() map[string]interface{} {
	m := e.SignedSubset()
	m["event_hash"] = nil
	delete(m, "event_hash")
	m["payload"] = e.Payload
	if e.Signature != nil {
		m["signature"] = e.Signature
	}
	return m
}

// PolicyProfile enumerates the closed set of verifier strictness modes.
type PolicyProfile string

const (
	PolicyStrict  PolicyProfile = "strict"
	PolicyDefault PolicyProfile = "default"
	PolicyLenient PolicyProfile = "lenient"
)

// TraceStatus enumerates the closed set of trace lifecycle states.
type TraceStatus string

const (
	TraceRunning   TraceStatus = "running"
	TraceSucceeded TraceStatus = "succeeded"
	TraceFailed    TraceStatus = "failed"
	TraceAborted   TraceStatus = "aborted"
	TraceTampered  TraceStatus = "tampered"
)

// TraceSession is the per-trace metadata record.
type TraceSession struct {
	SchemaVersion    string      `json:"schema_version"`
	TraceID          string      `json:"trace_id"`
	TaskID           string      `json:"task_id"`
	StartedAt        string      `json:"started_at"`
	EndedAt          string      `json:"ended_at,omitempty"`
	Status           TraceStatus `json:"status"`
	Participants     []Role      `json:"participants"`
	HeadEventHash    string      `json:"head_event_hash"`
	EventCount       int         `json:"event_count"`
	ArtifactCount    int         `json:"artifact_count"`
	PolicyProfile    PolicyProfile `json:"policy_profile"`
	ToolVersions     map[string]string `json:"tool_versions,omitempty"`
	ConfigFingerprint string     `json:"config_fingerprint,omitempty"`
}

// CheckStatus enumerates the closed set of per-check verdicts.
type CheckStatus string

const (
	CheckPass    CheckStatus = "pass"
	CheckWarning CheckStatus = "warning"
	CheckFail    CheckStatus = "fail"
)

// VerificationStatus enumerates the closed set of overall report verdicts.
type VerificationStatus string

const (
	VerificationPass             VerificationStatus = "pass"
	VerificationPassWithWarnings VerificationStatus = "pass-with-warnings"
	VerificationFail             VerificationStatus = "fail"
)

// Severity enumerates the closed set of failure severities, ordered for
// sorting (critical < high < medium < low).
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank is used by the report writer to sort failures.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// SeverityRank returns the sort rank of a severity (lower sorts first).
func SeverityRank(s Severity) int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// FailureCode enumerates the closed set of verifier failure codes.
type FailureCode string

const (
	CodeSchemaInvalid          FailureCode = "SCHEMA_INVALID"
	CodeHashMismatch           FailureCode = "HASH_MISMATCH"
	CodeChainBreak             FailureCode = "CHAIN_BREAK"
	CodeSigMissing             FailureCode = "SIG_MISSING"
	CodeSigInvalid             FailureCode = "SIG_INVALID"
	CodeArtifactMissing        FailureCode = "ARTIFACT_MISSING"
	CodeArtifactHashMismatch   FailureCode = "ARTIFACT_HASH_MISMATCH"
	CodeClaimUnproven          FailureCode = "CLAIM_UNPROVEN"
	CodeClaimDisputed          FailureCode = "CLAIM_DISPUTED"
	CodeRolePolicyViolation    FailureCode = "ROLE_POLICY_VIOLATION"
	CodeFinalizationIncomplete FailureCode = "FINALIZATION_INCOMPLETE"
)

// Check is a single verifier check's result.
type Check struct {
	CheckID   string        `json:"check_id"`
	Name      string        `json:"name"`
	Status    CheckStatus   `json:"status"`
	Scope     string        `json:"scope"`
	Evidence  []string      `json:"evidence,omitempty"`
	ElapsedMs float64       `json:"elapsed_ms"`
}

// Failure is a single verifier failure or warning record.
type Failure struct {
	FailureCode            FailureCode `json:"failure_code"`
	Severity               Severity    `json:"severity"`
	EventID                string      `json:"event_id,omitempty"`
	ArtifactHash            string      `json:"artifact_hash,omitempty"`
	Message                string      `json:"message"`
	SuggestedAction        string      `json:"suggested_action"`
	DetectedAt             string      `json:"detected_at"`
	Description            string      `json:"description"`
	VerificationStep       string      `json:"verification_step"`
	RecommendedRemediation string      `json:"recommended_remediation"`
}

// Metrics summarizes the verification run.
type Metrics struct {
	EventCount                int     `json:"event_count"`
	ArtifactReferenceCount    int     `json:"artifact_reference_count"`
	VerificationDurationMs    float64 `json:"verification_duration_ms"`
}

// VerificationReport is the structured output of a verifier run.
type VerificationReport struct {
	ReportID           string             `json:"report_id"`
	TraceID            string             `json:"trace_id"`
	VerifiedAt         string             `json:"verified_at"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Summary            string             `json:"summary"`
	Checks             []Check            `json:"checks"`
	Failures           []Failure          `json:"failures"`
	Warnings           []Failure          `json:"warnings"`
	Metrics            Metrics            `json:"metrics"`
	PolicyProfile      PolicyProfile      `json:"policy_profile"`
}

// TimeFormat is the ISO-8601 UTC millisecond format used for every
// persisted timestamp (spec.md §3): fixed-width so lexicographic string
// comparison is valid.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// NowISO returns the current time formatted per TimeFormat.
func NowISO() string {
	return time.Now().UTC().Format(TimeFormat)
}

// FormatISO formats t per TimeFormat.
func FormatISO(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseISO parses a TimeFormat timestamp.
func ParseISO(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}
