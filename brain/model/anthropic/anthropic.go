// Package anthropic adapts the Anthropic Claude Messages API to
// model.ObjectGenerator (same request/response translation shape as the
// sibling adapters) but narrowed to the single ObjectGenerator contract this
// engine consumes rather than a separate Complete/Stream planner-facing
// surface. Tool names are sent to the API unchanged, without sanitization.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/brainrun/brains/brain/model"
)

// MessagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a fake without a live API key.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter's defaults.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client implements model.ObjectGenerator on top of Anthropic Claude
// Messages.
type Client struct {
	msg         MessagesClient
	model       string
	maxTokens   int
	temperature float64
}

// New builds a Client from an Anthropic Messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, model: opts.Model, maxTokens: maxTokens, temperature: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP
// client, authenticated with the given apiKey via option.WithAPIKey.
func NewFromAPIKey(apiKey, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{Model: modelID})
}

// GenerateText implements model.ObjectGenerator.
func (c *Client) GenerateText(ctx context.Context, req model.GenerateTextRequest) (model.GenerateTextResponse, error) {
	params, toolNames, err := c.buildParams(req)
	if err != nil {
		return model.GenerateTextResponse{}, err
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return model.GenerateTextResponse{}, classifyError(err)
	}
	return translateResponse(msg, toolNames)
}

// GenerateObject implements model.ObjectGenerator by forcing a single tool
// call whose input schema is the requested object schema, the common
// tool-call-as-structured-output idiom for constrained generation.
func (c *Client) GenerateObject(ctx context.Context, req model.GenerateObjectRequest) (model.GenerateObjectResponse, error) {
	const toolName = "emit_object"
	textReq := model.GenerateTextRequest{
		Messages: req.Messages,
		Tools: []model.ToolSpec{{
			Name: toolName, Description: "Emit the requested structured object.", InputSchema: req.Schema,
		}},
	}
	resp, err := c.GenerateText(ctx, textReq)
	if err != nil {
		return model.GenerateObjectResponse{}, err
	}
	for _, tc := range resp.ToolCalls {
		if tc.ToolName == toolName {
			return model.GenerateObjectResponse{Object: tc.Args, Usage: resp.Usage}, nil
		}
	}
	return model.GenerateObjectResponse{}, fmt.Errorf("anthropic: model did not call %s", toolName)
}

// StreamText is not implemented by this adapter.
func (c *Client) StreamText(ctx context.Context, req model.GenerateTextRequest) (<-chan model.StreamChunk, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *Client) buildParams(req model.GenerateTextRequest) (sdk.MessageNewParams, map[string]string, error) {
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, nil, errors.New("anthropic: messages are required")
	}
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, nil, err
	}
	tools, names, err := encodeTools(req.Tools)
	if err != nil {
		return sdk.MessageNewParams{}, nil, err
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(c.maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(c.model),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if c.temperature > 0 {
		params.Temperature = sdk.Float(c.temperature)
	}
	return params, names, nil
}

func encodeMessages(msgs []model.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch p := part.(type) {
			case model.TextPart:
				if p.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(p.Text))
				}
			case model.ToolCallPart:
				blocks = append(blocks, sdk.NewToolUseBlock(p.ToolCallID, decodeArgs(p.Args), p.ToolName))
			case model.ToolResultPart:
				blocks = append(blocks, sdk.NewToolResultBlock(p.ToolCallID, string(p.Result), false))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case model.RoleUser, model.RoleTool:
			out = append(out, sdk.NewUserMessage(blocks...))
		case model.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return out, nil
}

func decodeArgs(raw json.RawMessage) any {
	var v any
	if len(raw) == 0 {
		return map[string]any{}
	}
	_ = json.Unmarshal(raw, &v)
	return v
}

func encodeTools(specs []model.ToolSpec) ([]sdk.ToolUnionParam, map[string]string, error) {
	if len(specs) == 0 {
		return nil, nil, nil
	}
	tools := make([]sdk.ToolUnionParam, 0, len(specs))
	names := make(map[string]string, len(specs))
	for _, spec := range specs {
		var schemaMap map[string]any
		if len(spec.InputSchema) > 0 {
			if err := json.Unmarshal(spec.InputSchema, &schemaMap); err != nil {
				return nil, nil, fmt.Errorf("anthropic: tool %q schema: %w", spec.Name, err)
			}
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schemaMap}, spec.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(spec.Description)
		}
		tools = append(tools, u)
		names[spec.Name] = spec.Name
	}
	return tools, names, nil
}

func translateResponse(msg *sdk.Message, names map[string]string) (model.GenerateTextResponse, error) {
	if msg == nil {
		return model.GenerateTextResponse{}, errors.New("anthropic: response message is nil")
	}
	var resp model.GenerateTextResponse
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				ToolCallID: block.ID,
				ToolName:   block.Name,
				Args:       block.Input,
			})
		}
	}
	raw, err := json.Marshal(msg)
	if err == nil {
		resp.ResponseMessages = []json.RawMessage{raw}
	}
	u := msg.Usage
	resp.Usage = model.Usage{
		InputTokens:  int(u.InputTokens),
		OutputTokens: int(u.OutputTokens),
		TotalTokens:  int(u.InputTokens + u.OutputTokens),
	}
	return resp, nil
}

// classifyError wraps a raw SDK error into a *model.ProviderError, grouping
// by HTTP status the way the bedrock adapter in this package's sibling
// groups by smithy error code. The Anthropic SDK surfaces
// *sdk.Error for non-2xx responses with the upstream status code attached.
func classifyError(err error) error {
	pe := &model.ProviderError{Provider: "anthropic", Operation: "messages.new", Kind: model.ErrorKindUnknown, Cause: err}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		pe.HTTPStatus = apiErr.StatusCode
		switch apiErr.StatusCode {
		case 401, 403:
			pe.Kind = model.ErrorKindAuth
		case 400, 422:
			pe.Kind = model.ErrorKindInvalidRequest
		case 408:
			pe.Kind = model.ErrorKindTimeout
		case 429:
			pe.Kind = model.ErrorKindRateLimited
			pe.Retryable = true
		case 500, 503, 529:
			pe.Kind = model.ErrorKindOverloaded
			pe.Retryable = true
		}
	}
	return pe
}
