// Package envelope renders the fixed success/error JSON shapes shared
// by every machine-readable surface (CLI --json and MCP tools).
//
// Success: { "ok": true, "type": <op>, ...payload }
// Error:   { "ok": false, "error": { "code", "message", "details?" } }
//
// Payload maps are merged at the top level; encoding/json emits map
// keys sorted, so field ordering is stable. Paths inside payloads are
// always repository-relative with forward slashes.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/omnidex/oci/internal/errors"
)

// Success builds the success envelope for an operation.
func Success(opType string, payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload)+2)
	out["ok"] = true
	out["type"] = opType
	for k, v := range payload {
		if k == "ok" || k == "type" {
			continue
		}
		out[k] = v
	}
	return out
}

// ErrorInfo is the inner error payload.
type ErrorInfo struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error builds the error envelope for any error, mapping it to its
// envelope code (internal when it carries none).
func Error(err error) map[string]interface{} {
	return map[string]interface{}{
		"ok": false,
		"error": ErrorInfo{
			Code:    string(errors.CodeOf(err)),
			Message: err.Error(),
		},
	}
}

// Encode marshals an envelope with indentation for terminal output.
func Encode(env map[string]interface{}) (string, error) {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(data), nil
}

// EncodeCompact marshals an envelope on one line for transports.
func EncodeCompact(env map[string]interface{}) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(data), nil
}
