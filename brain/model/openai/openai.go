// Package openai adapts the OpenAI Chat Completions API to
// model.ObjectGenerator. It follows the same request/response translation
// shape as the bedrock and anthropic adapters in sibling packages, ported
// from an earlier sashabaranov/go-openai client onto this module's
// official github.com/openai/openai-go SDK (the dependency actually
// present in go.mod).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	brainmodel "github.com/brainrun/brains/brain/model"
)

// ChatClient captures the subset of the openai-go client used here.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the adapter's defaults.
type Options struct {
	Model       string
	Temperature float64
}

// Client implements model.ObjectGenerator via OpenAI Chat Completions.
type Client struct {
	chat  ChatClient
	model string
	temp  float64
}

// New builds a Client from a Chat Completions client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat completions client is required")
	}
	modelID := strings.TrimSpace(opts.Model)
	if modelID == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	return &Client{chat: chat, model: modelID, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the default openai-go HTTP
// client, authenticated with the given apiKey via option.WithAPIKey.
func NewFromAPIKey(apiKey, modelID string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, Options{Model: modelID})
}

// GenerateText implements model.ObjectGenerator.
func (c *Client) GenerateText(ctx context.Context, req brainmodel.GenerateTextRequest) (brainmodel.GenerateTextResponse, error) {
	if len(req.Messages) == 0 {
		return brainmodel.GenerateTextResponse{}, errors.New("openai: messages are required")
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: encodeMessages(req),
	}
	if tools := encodeTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	if c.temp > 0 {
		params.Temperature = openai.Float(c.temp)
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return brainmodel.GenerateTextResponse{}, classifyError(err)
	}
	return translateResponse(resp), nil
}

// GenerateObject implements model.ObjectGenerator by forcing a single tool
// call whose input schema is the requested object schema.
func (c *Client) GenerateObject(ctx context.Context, req brainmodel.GenerateObjectRequest) (brainmodel.GenerateObjectResponse, error) {
	const toolName = "emit_object"
	textReq := brainmodel.GenerateTextRequest{
		Messages: req.Messages,
		Tools: []brainmodel.ToolSpec{{
			Name: toolName, Description: "Emit the requested structured object.", InputSchema: req.Schema,
		}},
	}
	resp, err := c.GenerateText(ctx, textReq)
	if err != nil {
		return brainmodel.GenerateObjectResponse{}, err
	}
	for _, tc := range resp.ToolCalls {
		if tc.ToolName == toolName {
			return brainmodel.GenerateObjectResponse{Object: tc.Args, Usage: resp.Usage}, nil
		}
	}
	return brainmodel.GenerateObjectResponse{}, fmt.Errorf("openai: model did not call %s", toolName)
}

// StreamText is not implemented by this adapter.
func (c *Client) StreamText(ctx context.Context, req brainmodel.GenerateTextRequest) (<-chan brainmodel.StreamChunk, error) {
	return nil, brainmodel.ErrStreamingUnsupported
}

func encodeMessages(req brainmodel.GenerateTextRequest) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		text := textOf(m)
		switch m.Role {
		case brainmodel.RoleUser:
			out = append(out, openai.UserMessage(text))
		case brainmodel.RoleAssistant:
			out = append(out, encodeAssistantMessage(m, text))
		case brainmodel.RoleTool:
			for _, part := range m.Parts {
				if tr, ok := part.(brainmodel.ToolResultPart); ok {
					out = append(out, openai.ToolMessage(string(tr.Result), tr.ToolCallID))
				}
			}
		case brainmodel.RoleSystem:
			out = append(out, openai.SystemMessage(text))
		}
	}
	return out
}

func textOf(m brainmodel.Message) string {
	var sb strings.Builder
	for _, part := range m.Parts {
		if tp, ok := part.(brainmodel.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

func encodeAssistantMessage(m brainmodel.Message, text string) openai.ChatCompletionMessageParamUnion {
	var calls []openai.ChatCompletionMessageToolCallParam
	for _, part := range m.Parts {
		if tc, ok := part.(brainmodel.ToolCallPart); ok {
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.ToolCallID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.ToolName,
					Arguments: string(tc.Args),
				},
			})
		}
	}
	msg := openai.AssistantMessage(text)
	if len(calls) > 0 && msg.OfAssistant != nil {
		msg.OfAssistant.ToolCalls = calls
	}
	return msg
}

func encodeTools(specs []brainmodel.ToolSpec) []openai.ChatCompletionToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		var params map[string]any
		if len(spec.InputSchema) > 0 {
			_ = json.Unmarshal(spec.InputSchema, &params)
		}
		tools = append(tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
			Parameters:  params,
		}))
	}
	return tools
}

func translateResponse(resp *openai.ChatCompletion) brainmodel.GenerateTextResponse {
	var out brainmodel.GenerateTextResponse
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Text = choice.Message.Content
		for _, call := range choice.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, brainmodel.ToolCall{
				ToolCallID: call.ID,
				ToolName:   call.Function.Name,
				Args:       json.RawMessage(call.Function.Arguments),
			})
		}
	}
	out.Usage = brainmodel.Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	if raw, err := json.Marshal(resp); err == nil {
		out.ResponseMessages = []json.RawMessage{raw}
	}
	return out
}

// classifyError wraps a raw SDK error into a *model.ProviderError, mirroring
// the status-code grouping of the anthropic adapter's classifyError.
func classifyError(err error) error {
	pe := &brainmodel.ProviderError{Provider: "openai", Operation: "chat.completions.new", Kind: brainmodel.ErrorKindUnknown, Cause: err}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe.HTTPStatus = apiErr.StatusCode
		switch apiErr.StatusCode {
		case 401, 403:
			pe.Kind = brainmodel.ErrorKindAuth
		case 400, 422:
			pe.Kind = brainmodel.ErrorKindInvalidRequest
		case 408:
			pe.Kind = brainmodel.ErrorKindTimeout
		case 429:
			pe.Kind = brainmodel.ErrorKindRateLimited
			pe.Retryable = true
		case 500, 503:
			pe.Kind = brainmodel.ErrorKindOverloaded
			pe.Retryable = true
		}
	}
	return pe
}
