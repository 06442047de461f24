// Package bedrock adapts the AWS Bedrock Converse API to
// model.ObjectGenerator: same message/tool encoding
// split (system vs. conversational blocks, sanitized tool names, a
// canonical<->provider name map to translate tool_use blocks back), narrowed
// to the single ObjectGenerator contract this engine consumes rather than a
// separate Complete/Stream planner-facing surface, with no ledger
// rehydration or thinking-mode plumbing since this engine keeps its
// own conversation state in agentloop.State rather than an external ledger.
package bedrock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/brainrun/brains/brain/model"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client this
// adapter requires, so tests can substitute a fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the adapter's defaults.
type Options struct {
	Runtime     RuntimeClient
	Model       string
	MaxTokens   int
	Temperature float32
}

// Client implements model.ObjectGenerator on top of AWS Bedrock Converse.
type Client struct {
	runtime RuntimeClient
	model   string
	maxTok  int
	temp    float32
}

// New builds a Client from a Bedrock runtime client.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("bedrock: model identifier is required")
	}
	return &Client{runtime: opts.Runtime, model: opts.Model, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromRuntime constructs a Client directly from an
// *bedrockruntime.Client, e.g. one built via config.LoadDefaultConfig.
func NewFromRuntime(rt *bedrockruntime.Client, modelID string) (*Client, error) {
	if rt == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	return New(Options{Runtime: rt, Model: modelID})
}

type requestParts struct {
	messages   []brtypes.Message
	system     []brtypes.SystemContentBlock
	toolConfig *brtypes.ToolConfiguration
	provToCanon map[string]string
}

// GenerateText implements model.ObjectGenerator.
func (c *Client) GenerateText(ctx context.Context, req model.GenerateTextRequest) (model.GenerateTextResponse, error) {
	parts, err := c.prepareRequest(req)
	if err != nil {
		return model.GenerateTextResponse{}, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.model),
		Messages: parts.messages,
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	if cfg := c.inferenceConfig(); cfg != nil {
		input.InferenceConfig = cfg
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return model.GenerateTextResponse{}, classifyError(err)
	}
	return translateResponse(out, parts.provToCanon)
}

// GenerateObject implements model.ObjectGenerator by forcing a single tool
// call whose input schema is the requested object schema, the same
// tool-call-as-structured-output idiom used by the anthropic and openai
// adapters in this package family.
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
	return model.GenerateObjectResponse{}, fmt.Errorf("bedrock: model did not call %s", toolName)
}

// StreamText is not implemented by this adapter.
func (c *Client) StreamText(ctx context.Context, req model.GenerateTextRequest) (<-chan model.StreamChunk, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *Client) prepareRequest(req model.GenerateTextRequest) (*requestParts, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	toolConfig, canonToSan, sanToCanon, err := encodeTools(req.Tools)
	if err != nil {
		return nil, err
	}
	messages, err := encodeMessages(req.Messages, canonToSan)
	if err != nil {
		return nil, err
	}
	var system []brtypes.SystemContentBlock
	if req.System != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: req.System})
	}
	return &requestParts{messages: messages, system: system, toolConfig: toolConfig, provToCanon: sanToCanon}, nil
}

func (c *Client) inferenceConfig() *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	if c.maxTok > 0 {
		cfg.MaxTokens = aws.Int32(int32(c.maxTok)) //nolint:gosec
	}
	if c.temp > 0 {
		cfg.Temperature = aws.Float32(c.temp)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func encodeMessages(msgs []model.Message, nameMap map[string]string) ([]brtypes.Message, error) {
	out := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]brtypes.ContentBlock, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				if v.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
				}
			case model.ToolCallPart:
				sanitized, ok := nameMap[v.ToolName]
				if !ok {
					sanitized = sanitizeToolName(v.ToolName)
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					Name:      aws.String(sanitized),
					ToolUseId: aws.String(toolUseID(v.ToolCallID)),
					Input:     toDocument(v.Args),
				}})
			case model.ToolResultPart:
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(toolUseID(v.ToolCallID)),
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: string(v.Result)},
					},
				}})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleAssistant
		if m.Role == model.RoleUser || m.Role == model.RoleTool {
			role = brtypes.ConversationRoleUser
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	if len(out) == 0 {
		return nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return out, nil
}

func encodeTools(specs []model.ToolSpec) (*brtypes.ToolConfiguration, map[string]string, map[string]string, error) {
	if len(specs) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]brtypes.Tool, 0, len(specs))
	canonToSan := make(map[string]string, len(specs))
	sanToCanon := make(map[string]string, len(specs))
	for _, spec := range specs {
		sanitized := sanitizeToolName(spec.Name)
		if prev, ok := sanToCanon[sanitized]; ok && prev != spec.Name {
			return nil, nil, nil, fmt.Errorf("bedrock: tool name %q sanitizes to %q which collides with %q", spec.Name, sanitized, prev)
		}
		sanToCanon[sanitized] = spec.Name
		canonToSan[spec.Name] = sanitized
		var schema any
		if len(spec.InputSchema) > 0 {
			if err := json.Unmarshal(spec.InputSchema, &schema); err != nil {
				return nil, nil, nil, fmt.Errorf("bedrock: tool %q schema: %w", spec.Name, err)
			}
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(sanitized),
			Description: aws.String(spec.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(schema)},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: toolList}, canonToSan, sanToCanon, nil
}

// sanitizeToolName maps a tool name to Bedrock's allowed charset
// ([a-zA-Z0-9_-]+, <=64 chars), truncating with a stable hash suffix for
// names that overflow the limit.
func sanitizeToolName(in string) string {
	if in == "" {
		return ""
	}
	const maxLen = 64
	const hashLen = 8
	out := make([]rune, 0, len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	sanitized := string(out)
	if len(sanitized) <= maxLen {
		return sanitized
	}
	sum := sha256.Sum256([]byte(in))
	suffix := hex.EncodeToString(sum[:])[:hashLen]
	prefixLen := maxLen - (1 + hashLen)
	if prefixLen < 1 {
		prefixLen = 1
	}
	return sanitized[:prefixLen] + "_" + suffix
}

// toolUseID maps an engine tool-call ID to a Bedrock-safe toolUseId,
// replacing disallowed runes so correlation IDs with slashes or colons
// never reach the provider directly.
func toolUseID(id string) string {
	if id == "" {
		return ""
	}
	if isProviderSafeToolUseID(id) {
		return id
	}
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, id)
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}

func isProviderSafeToolUseID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func toDocument(v any) document.Interface {
	if v == nil {
		m := map[string]any{"type": "object"}
		return document.NewLazyDocument(&m)
	}
	return document.NewLazyDocument(&v)
}

func translateResponse(output *bedrockruntime.ConverseOutput, nameMap map[string]string) (model.GenerateTextResponse, error) {
	if output == nil {
		return model.GenerateTextResponse{}, errors.New("bedrock: response is nil")
	}
	var resp model.GenerateTextResponse
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				resp.Text += v.Value
			case *brtypes.ContentBlockMemberToolUse:
				name := ""
				if v.Value.Name != nil {
					name = *v.Value.Name
					if canonical, ok := nameMap[name]; ok {
						name = canonical
					}
				}
				id := ""
				if v.Value.ToolUseId != nil {
					id = *v.Value.ToolUseId
				}
				resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
					ToolCallID: id, ToolName: name, Args: decodeDocument(v.Value.Input),
				})
			}
		}
	}
	if usage := output.Usage; usage != nil {
		resp.Usage = model.Usage{
			InputTokens:  int(ptrValue(usage.InputTokens)),
			OutputTokens: int(ptrValue(usage.OutputTokens)),
			TotalTokens:  int(ptrValue(usage.TotalTokens)),
		}
	}
	if raw, err := json.Marshal(output); err == nil {
		resp.ResponseMessages = []json.RawMessage{raw}
	}
	return resp, nil
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		return 0
	}
	return *ptr
}

// classifyError wraps a raw SDK error into a *model.ProviderError, grouping
// by smithy error code.
func classifyError(err error) error {
	pe := &model.ProviderError{Provider: "bedrock", Operation: "converse", Kind: model.ErrorKindUnknown, Cause: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		pe.Code = apiErr.ErrorCode()
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			pe.Kind = model.ErrorKindRateLimited
			pe.Retryable = true
		case "ValidationException":
			pe.Kind = model.ErrorKindInvalidRequest
		case "AccessDeniedException", "UnauthorizedException":
			pe.Kind = model.ErrorKindAuth
		case "ModelTimeoutException":
			pe.Kind = model.ErrorKindTimeout
		case "ModelNotReadyException", "ServiceUnavailableException", "InternalServerException":
			pe.Kind = model.ErrorKindOverloaded
			pe.Retryable = true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		pe.Kind = model.ErrorKindRateLimited
		pe.HTTPStatus = 429
		pe.Retryable = true
	}
	return pe
}
