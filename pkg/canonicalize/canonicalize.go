// Package canonicalize produces the deterministic UTF-8 bytes (RFC 8785,
// JSON Canonicalization Scheme) over which every hash and signature in this
// system is defined.
//
// The transform itself — key sorting, ECMA-262 number formatting, minimal
// string escaping — is delegated to gowebpki/jcs, the same canonicalization
// library the teacher repo depends on directly and that davidahmann-gait
// wraps for its own signing path (core/jcs/jcs.go). This package adds the
// one behavior RFC 8785 does not specify and spec.md §4.1 requires: NFC
// normalization of every string value before the transform runs.
package canonicalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// Canonicalize returns the RFC 8785 canonical JSON bytes for v.
//
// v is first marshaled with the standard library (so struct tags and
// json.Marshaler implementations are respected), then walked to NFC-
// normalize every string and drop undefined/absent fields (encoding/json
// already omits struct fields tagged "omitempty" when zero, and map values
// set to Go nil become JSON null — never "absent" — callers that need
// RFC 8785's undefined-removal semantics for a key must not set the key at
// all), then handed to jcs.Transform for key sorting and ECMA-262 number
// formatting.
func Canonicalize(v interface{}) ([]byte, error) {
	if err := rejectNonFinite(v); err != nil {
		return nil, err
	}

	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}

	normalized, err := normalizeStrings(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: normalize: %w", err)
	}

	out, err := jcs.Transform(normalized)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform: %w", err)
	}
	return out, nil
}

// CanonicalString returns Canonicalize's output as a string.
func CanonicalString(v interface{}) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// rejectNonFinite walks v looking for NaN/Inf float64 values, which have no
// finite decimal representation and must be rejected per spec.md §4.1
// rather than silently serialized as null by encoding/json.
func rejectNonFinite(v interface{}) error {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("canonicalize: non-finite number is not representable")
		}
	case float32:
		return rejectNonFinite(float64(t))
	case map[string]interface{}:
		for _, vv := range t {
			if err := rejectNonFinite(vv); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, vv := range t {
			if err := rejectNonFinite(vv); err != nil {
				return err
			}
		}
	}
	return nil
}

// normalizeStrings decodes raw JSON generically, NFC-normalizes every string
// (keys and values), and re-encodes without HTML escaping. The re-encoded
// form need not itself be canonical — jcs.Transform performs the actual
// RFC 8785 sort/format pass afterward.
func normalizeStrings(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	normalized := normalizeValue(generic)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[norm.NFC.String(k)] = normalizeValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = normalizeValue(vv)
		}
		return out
	default:
		return v
	}
}
