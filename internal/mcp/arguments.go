package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"github.com/takashabe/bigquery-mcp/internal/errs"
)

const invalidArgumentsMessage = "Invalid arguments: expected object or JSON string."

// DecodeArguments accepts tool arguments as a JSON object or as a string
// holding a JSON-encoded object. Missing arguments decode to an empty map.
func DecodeArguments(raw json.RawMessage) (map[string]interface{}, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]interface{}{}, nil
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, errs.Wrap(errs.InvalidArguments, invalidArgumentsMessage, err)
		}
		if strings.TrimSpace(encoded) == "" {
			return map[string]interface{}{}, nil
		}
		raw = []byte(encoded)
	}

	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errs.Wrap(errs.InvalidArguments, invalidArgumentsMessage, err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// Validate checks args against a tool's resolved input schema.
func Validate(schema *jsonschema.Resolved, args map[string]interface{}) error {
	if err := schema.Validate(args); err != nil {
		return errs.Wrap(errs.InvalidArguments, "Invalid arguments", err)
	}
	return nil
}

// Bind decodes validated arguments into a tool's argument struct.
func Bind(args map[string]interface{}, dst interface{}) error {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return errs.Wrap(errs.InvalidArguments, "failed to unmarshal arguments", err)
	}
	return nil
}
