package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brainrun/brains/brain/model"
)

// stubGenerator is a tiny ObjectGenerator that immediately calls the first
// tool it is offered, or otherwise echoes a canned
// response. It exists so `braindemo run` works without a provider API key,
// following the common pattern of a stub planner that returns a canned
// final response instead of calling a real model.
type stubGenerator struct{}

func (stubGenerator) GenerateText(_ context.Context, req model.GenerateTextRequest) (model.GenerateTextResponse, error) {
	if len(req.Tools) > 0 {
		tool := req.Tools[0]
		args, err := canonicalArgs(tool.InputSchema)
		if err != nil {
			return model.GenerateTextResponse{}, err
		}
		return model.GenerateTextResponse{
			ToolCalls: []model.ToolCall{{ToolCallID: "stub-1", ToolName: tool.Name, Args: args}},
			Usage:     model.Usage{InputTokens: 8, OutputTokens: 4, TotalTokens: 12},
		}, nil
	}
	return model.GenerateTextResponse{
		Text:  "Hello from braindemo's stub model.",
		Usage: model.Usage{InputTokens: 8, OutputTokens: 4, TotalTokens: 12},
	}, nil
}

func (s stubGenerator) GenerateObject(ctx context.Context, req model.GenerateObjectRequest) (model.GenerateObjectResponse, error) {
	args, err := canonicalArgs(req.Schema)
	if err != nil {
		return model.GenerateObjectResponse{}, err
	}
	return model.GenerateObjectResponse{Object: args, Usage: model.Usage{InputTokens: 8, OutputTokens: 4, TotalTokens: 12}}, nil
}

func (stubGenerator) StreamText(context.Context, model.GenerateTextRequest) (<-chan model.StreamChunk, error) {
	return nil, model.ErrStreamingUnsupported
}

// canonicalArgs builds a minimal value satisfying schema's declared
// properties by filling every declared property, required or not, with a
// placeholder for its type, so the stub model can "call" any tool without a
// real LLM.
func canonicalArgs(schema json.RawMessage) (json.RawMessage, error) {
	if len(schema) == 0 {
		return json.RawMessage(`{}`), nil
	}
	var doc map[string]any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, fmt.Errorf("braindemo: decode schema: %w", err)
	}
	props, _ := doc["properties"].(map[string]any)
	out := make(map[string]any, len(props))
	for name, raw := range props {
		propSchema, _ := raw.(map[string]any)
		out[name] = placeholderFor(propSchema)
	}
	return json.Marshal(out)
}

func placeholderFor(propSchema map[string]any) any {
	switch propSchema["type"] {
	case "integer", "number":
		return 0
	case "boolean":
		return false
	case "array":
		return []any{}
	case "object":
		return map[string]any{}
	default:
		return "stub"
	}
}
