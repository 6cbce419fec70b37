package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"lumen-agent/internal/domain"
)

// compileSchema compiles the parameter schema of one tool. A schema without
// parameters compiles to nil and accepts anything.
func compileSchema(s domain.ToolSchema) (*jsonschema.Schema, error) {
	raw := s.Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	url := string(s.Name) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", s.Name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", s.Name, err)
	}
	return compiled, nil
}

// validateParams checks params against schema. Parameters are re-encoded so
// numbers reach the validator in its own representation.
func validateParams(schema *jsonschema.Schema, params map[string]any) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
