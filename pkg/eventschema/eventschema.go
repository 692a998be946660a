// Package eventschema compiles and validates the ProtocolEvent JSON Schema
// used by CHK_SCHEMA_CONFORMANCE (spec.md §4.8 check 1).
//
// Grounded on the teacher's pkg/firewall/firewall.go, which compiles tool
// parameter schemas with jsonschema.NewCompiler/Draft2020 and validates
// call-site params against them; this package does the same against a
// single fixed schema describing spec.md §3's ProtocolEvent shape.
package eventschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "coc://schemas/protocol-event.json"

// protocolEventSchema is the JSON Schema (2020-12) describing the
// ProtocolEvent wire shape from spec.md §3.
const protocolEventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "coc://schemas/protocol-event.json",
  "type": "object",
  "required": [
    "schema_version", "trace_id", "event_id", "event_type", "created_at",
    "actor", "payload_hash", "prev_event_hash", "event_hash",
    "payload_type", "payload"
  ],
  "properties": {
    "schema_version": {"type": "string", "minLength": 1},
    "trace_id": {"type": "string", "minLength": 1},
    "event_id": {"type": "string", "minLength": 1},
    "event_type": {
      "type": "string",
      "enum": [
        "session_initialized", "proposal_created", "proposal_reviewed",
        "tool_intent_signed", "tool_execution_started",
        "tool_execution_completed", "tool_execution_failed",
        "artifact_recorded", "claim_issued", "claim_challenged",
        "final_statement_signed", "verification_run_started",
        "verification_run_completed"
      ]
    },
    "created_at": {"type": "string", "minLength": 1},
    "actor": {
      "type": "object",
      "required": ["agent_id", "role", "key_id"],
      "properties": {
        "agent_id": {"type": "string", "minLength": 1},
        "role": {"type": "string", "enum": ["planner", "executor", "critic", "auditor"]},
        "key_id": {"type": "string", "minLength": 1}
      }
    },
    "payload_hash": {"type": "string", "minLength": 1},
    "prev_event_hash": {"type": "string", "pattern": "^[a-f0-9]{64}$"},
    "event_hash": {"type": "string", "pattern": "^[a-f0-9]{64}$"},
    "signature": {
      "type": ["object", "null"],
      "properties": {
        "algorithm": {"type": "string"},
        "signature_b64": {"type": "string"},
        "signed_bytes_hash": {"type": "string"}
      }
    },
    "payload_type": {"type": "string", "minLength": 1},
    "payload": {"type": "object"},
    "claims": {"type": "array", "items": {"type": "string"}},
    "artifacts": {"type": "array"}
  }
}`

var (
	once       sync.Once
	compiled   *jsonschema.Schema
	compileErr error
)

func compiledSchema() (*jsonschema.Schema, error) {
	once.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, bytes.NewReader([]byte(protocolEventSchema))); err != nil {
			compileErr = fmt.Errorf("eventschema: add resource: %w", err)
			return
		}
		schema, err := c.Compile(schemaURL)
		if err != nil {
			compileErr = fmt.Errorf("eventschema: compile: %w", err)
			return
		}
		compiled = schema
	})
	return compiled, compileErr
}

// Validate marshals v (typically a model.ProtocolEvent) to JSON and
// validates it against the ProtocolEvent schema. A non-nil error describes
// every schema violation jsonschema/v5 found.
func Validate(v interface{}) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("eventschema: marshal: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("eventschema: unmarshal for validation: %w", err)
	}

	if err := schema.Validate(generic); err != nil {
		return err
	}
	return nil
}
