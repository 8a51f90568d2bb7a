package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBedrockRuntime struct {
	output *bedrockruntime.ConverseOutput
	err    error
	input  *bedrockruntime.ConverseInput
}

func (f *fakeBedrockRuntime) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.output, f.err
}

func converseOutput(stopReason types.StopReason, text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		StopReason: stopReason,
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
			},
		},
		Metrics: &types.ConverseMetrics{LatencyMs: aws.Int64(42)},
		Usage:   &types.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(20)},
	}
}

func TestLLMClientInvoke_EndTurn(t *testing.T) {
	brc := &fakeBedrockRuntime{output: converseOutput("end_turn", `{"action":"log","confidence":0.8}`)}
	client := NewLLMClient(brc, LLMOptions{ModelID: "model-x", MaxTokens: 512})

	got, err := client.Invoke(context.Background(), "system prompt", "user message")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"log","confidence":0.8}`, got)

	require.NotNil(t, brc.input)
	assert.Equal(t, "model-x", *brc.input.ModelId)
	assert.Equal(t, int32(512), *brc.input.InferenceConfig.MaxTokens)
	require.Len(t, brc.input.Messages, 1)
	assert.Equal(t, types.ConversationRoleUser, brc.input.Messages[0].Role)
}

func TestLLMClientInvoke_StripsCodeFences(t *testing.T) {
	brc := &fakeBedrockRuntime{output: converseOutput("end_turn", "```json\n{\"a\":1}\n```")}
	client := NewLLMClient(brc, LLMOptions{})

	got, err := client.Invoke(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
}

func TestLLMClientInvoke_MaxTokens(t *testing.T) {
	brc := &fakeBedrockRuntime{output: converseOutput("max_tokens", "truncated")}
	client := NewLLMClient(brc, LLMOptions{})

	_, err := client.Invoke(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxTokens")
}

func TestLLMClientInvoke_SafetyBlocked(t *testing.T) {
	brc := &fakeBedrockRuntime{output: converseOutput("safety", "")}
	client := NewLLMClient(brc, LLMOptions{})

	_, err := client.Invoke(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "safety")
}

func TestNewLLMClient_Defaults(t *testing.T) {
	client := NewLLMClient(&fakeBedrockRuntime{}, LLMOptions{})

	assert.Equal(t, defaultModelID, client.opts.ModelID)
	assert.Equal(t, int32(defaultMaxTokens), client.opts.MaxTokens)
	assert.Equal(t, float32(defaultTemperature), client.opts.Temperature)
	assert.Equal(t, float32(defaultTopP), client.opts.TopP)
}
