package bedrock_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"github.com/brainrun/brains/brain/model"
	"github.com/brainrun/brains/brain/model/bedrock"
)

// mockRuntime fakes the Converse half of bedrockruntime's client,
// narrowed to the single
// Converse method this adapter's RuntimeClient interface needs.
type mockRuntime struct {
	captured *bedrockruntime.ConverseInput
	output   *bedrockruntime.ConverseOutput
	err      error
}

func (m *mockRuntime) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.captured = params
	return m.output, m.err
}

func textRequest(text string) model.GenerateTextRequest {
	return model.GenerateTextRequest{
		Messages: []model.Message{
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: text}}},
		},
	}
}

func TestGenerateText_TextAndToolUseResponse(t *testing.T) {
	mock := &mockRuntime{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role: brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: "hello"},
				&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					Name:      aws.String("lookup"),
					ToolUseId: aws.String("tool-1"),
					Input:     document.NewLazyDocument(&map[string]any{"value": 42}),
				}},
			},
		}},
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(100),
			OutputTokens: aws.Int32(20),
			TotalTokens:  aws.Int32(120),
		},
	}}

	cl, err := bedrock.New(bedrock.Options{Runtime: mock, Model: "anthropic.claude-3"})
	require.NoError(t, err)

	req := textRequest("hi")
	req.Tools = []model.ToolSpec{{Name: "lookup", Description: "look something up", InputSchema: json.RawMessage(`{"type":"object"}`)}}

	resp, err := cl.GenerateText(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "lookup", resp.ToolCalls[0].ToolName)
	require.Equal(t, "tool-1", resp.ToolCalls[0].ToolCallID)
	require.JSONEq(t, `{"value":42}`, string(resp.ToolCalls[0].Args))
	require.Equal(t, 120, resp.Usage.TotalTokens)

	require.Equal(t, "anthropic.claude-3", *mock.captured.ModelId)
	require.Len(t, mock.captured.Messages, 1)
	require.Equal(t, brtypes.ConversationRoleUser, mock.captured.Messages[0].Role)
	require.NotNil(t, mock.captured.ToolConfig)
	require.Len(t, mock.captured.ToolConfig.Tools, 1)
}

func TestGenerateText_RequiresAtLeastOneMessage(t *testing.T) {
	cl, err := bedrock.New(bedrock.Options{Runtime: &mockRuntime{}, Model: "id"})
	require.NoError(t, err)

	_, err = cl.GenerateText(context.Background(), model.GenerateTextRequest{})
	require.Error(t, err)
}

func TestGenerateObject_ReturnsToolArgs(t *testing.T) {
	mock := &mockRuntime{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					Name:      aws.String("emit_object"),
					ToolUseId: aws.String("tool-2"),
					Input:     document.NewLazyDocument(&map[string]any{"answer": "42"}),
				}},
			},
		}},
	}}
	cl, err := bedrock.New(bedrock.Options{Runtime: mock, Model: "anthropic.claude-3"})
	require.NoError(t, err)

	resp, err := cl.GenerateObject(context.Background(), model.GenerateObjectRequest{
		Schema:   json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string"}}}`),
		Messages: textRequest("produce object").Messages,
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"answer":"42"}`, string(resp.Object))
}

type throttlingError struct{}

func (throttlingError) Error() string               { return "rate limited" }
func (throttlingError) ErrorCode() string            { return "ThrottlingException" }
func (throttlingError) ErrorMessage() string         { return "rate limited" }
func (throttlingError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func TestGenerateText_ClassifiesThrottlingAsRateLimited(t *testing.T) {
	mock := &mockRuntime{err: throttlingError{}}
	cl, err := bedrock.New(bedrock.Options{Runtime: mock, Model: "anthropic.claude-3"})
	require.NoError(t, err)

	_, err = cl.GenerateText(context.Background(), textRequest("hi"))
	require.Error(t, err)
	var pe *model.ProviderError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, model.ErrorKindRateLimited, pe.Kind)
	require.True(t, pe.Retryable)
}

func TestNew_RequiresRuntimeAndModel(t *testing.T) {
	_, err := bedrock.New(bedrock.Options{Model: "id"})
	require.Error(t, err)

	_, err = bedrock.New(bedrock.Options{Runtime: &mockRuntime{}})
	require.Error(t, err)
}

func TestStreamText_Unsupported(t *testing.T) {
	cl, err := bedrock.New(bedrock.Options{Runtime: &mockRuntime{}, Model: "anthropic.claude-3"})
	require.NoError(t, err)

	_, err = cl.StreamText(context.Background(), textRequest("hi"))
	require.ErrorIs(t, err, model.ErrStreamingUnsupported)
}
