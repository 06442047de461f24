package jsonschema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brainrun/brains/brain/jsonschema"
)

const toolSchema = `{
	"type": "object",
	"properties": {"city": {"type": "string"}},
	"required": ["city"]
}`

func TestValidate_AcceptsConformingPayload(t *testing.T) {
	require.NoError(t, jsonschema.Validate([]byte(toolSchema), []byte(`{"city":"Paris"}`)))
}

func TestValidate_RejectsMissingRequiredField(t *testing.T) {
	err := jsonschema.Validate([]byte(toolSchema), []byte(`{}`))
	require.Error(t, err)
}

func TestValidate_EmptySchemaAlwaysPasses(t *testing.T) {
	require.NoError(t, jsonschema.Validate(nil, []byte(`{"anything":true}`)))
}

func TestValidateValue_MarshalsBeforeValidating(t *testing.T) {
	require.NoError(t, jsonschema.ValidateValue([]byte(toolSchema), map[string]any{"city": "Rome"}))
	require.Error(t, jsonschema.ValidateValue([]byte(toolSchema), map[string]any{}))
}
