// Package jsonschema validates JSON documents against JSON-Schema
// documents, built on santhosh-tekuri/jsonschema/v6. The engine uses it to
// enforce Definition.OptionsSchema at run start and ToolDef.InputSchema at
// tool dispatch; a Webhook's Schema is carried on events but not validated.
package jsonschema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validate checks payload against schema, both raw JSON documents. A nil or
// empty schema is treated as "no constraint" and always passes.
func Validate(schema, payload json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return fmt.Errorf("jsonschema: unmarshal schema: %w", err)
	}
	var payloadDoc any
	if err := json.Unmarshal(payload, &payloadDoc); err != nil {
		return fmt.Errorf("jsonschema: unmarshal payload: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("jsonschema: add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("jsonschema: compile schema: %w", err)
	}
	if err := compiled.Validate(payloadDoc); err != nil {
		return err
	}
	return nil
}

// ValidateValue is Validate for an already-decoded Go value rather than raw
// JSON, round-tripping it through json.Marshal first.
func ValidateValue(schema json.RawMessage, value any) error {
	if len(schema) == 0 {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("jsonschema: marshal value: %w", err)
	}
	return Validate(schema, b)
}
