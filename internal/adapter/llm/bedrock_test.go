package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"maestro-ai/internal/domain"
)

// --- Mock Bedrock client ---

type mockBedrockClient struct {
	converseFunc func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

func (m *mockBedrockClient) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	if m.converseFunc != nil {
		return m.converseFunc(ctx, params, optFns...)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockBedrockClient) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, fmt.Errorf("not implemented")
}

// --- Tests ---

func TestBedrockChat(t *testing.T) {
	var receivedInput *bedrockruntime.ConverseInput

	mock := &mockBedrockClient{
		converseFunc: func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
			receivedInput = params
			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{
					Value: types.Message{
						Role: types.ConversationRoleAssistant,
						Content: []types.ContentBlock{
							&types.ContentBlockMemberText{Value: "Hello from Bedrock!"},
						},
					},
				},
				Usage: &types.TokenUsage{
					InputTokens:  aws.Int32(10),
					OutputTokens: aws.Int32(5),
				},
			}, nil
		},
	}

	provider := newBedrockProviderWithClient("bedrock-test", "anthropic.claude-3-5-sonnet", mock, newTestLogger())

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Turn{
			{Role: domain.RoleSystem, Content: "You are helpful."},
			{Role: domain.RoleUser, Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "Hello from Bedrock!" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Usage.PromptTokens != 10 {
		t.Errorf("PromptTokens = %d", resp.Usage.PromptTokens)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}

	// Verify request conversion
	if receivedInput == nil {
		t.Fatal("expected input to be captured")
	}
	if aws.ToString(receivedInput.ModelId) != "anthropic.claude-3-5-sonnet" {
		t.Errorf("ModelId = %q", aws.ToString(receivedInput.ModelId))
	}
	if len(receivedInput.System) != 1 {
		t.Fatalf("System len = %d, want 1", len(receivedInput.System))
	}
	if len(receivedInput.Messages) != 1 {
		t.Fatalf("Messages len = %d, want 1 (system extracted)", len(receivedInput.Messages))
	}

	if provider.Name() != "bedrock-test" {
		t.Errorf("Name = %q", provider.Name())
	}
}

func TestBedrockChatFoldsSchemaIntoSystem(t *testing.T) {
	var receivedInput *bedrockruntime.ConverseInput

	mock := &mockBedrockClient{
		converseFunc: func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
			receivedInput = params
			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{
					Value: types.Message{
						Role: types.ConversationRoleAssistant,
						Content: []types.ContentBlock{
							&types.ContentBlockMemberText{Value: `{"next":"writer"}`},
						},
					},
				},
			}, nil
		},
	}

	provider := newBedrockProviderWithClient("bedrock-test", "model", mock, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Turn{
			{Role: domain.RoleSystem, Content: "route the conversation"},
			{Role: domain.RoleUser, Content: "decide"},
		},
		ResponseSchema: json.RawMessage(`{"type":"object"}`),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(receivedInput.System) != 1 {
		t.Fatalf("System len = %d, want 1", len(receivedInput.System))
	}
	sys := receivedInput.System[0].(*types.SystemContentBlockMemberText).Value
	if !strings.Contains(sys, "route the conversation") {
		t.Errorf("system block lost original prompt: %q", sys)
	}
	if !strings.Contains(sys, `{"type":"object"}`) {
		t.Errorf("system block missing schema instruction: %q", sys)
	}
}

func TestBedrockChatHumanRoleMapsToUser(t *testing.T) {
	mock := &mockBedrockClient{
		converseFunc: func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
			if len(params.Messages) != 1 {
				t.Fatalf("Messages len = %d, want 1", len(params.Messages))
			}
			if params.Messages[0].Role != types.ConversationRoleUser {
				t.Errorf("Role = %v, want user", params.Messages[0].Role)
			}
			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{
					Value: types.Message{Role: types.ConversationRoleAssistant},
				},
			}, nil
		},
	}

	provider := newBedrockProviderWithClient("bedrock-test", "model", mock, newTestLogger())
	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Turn{{Role: domain.RoleHuman, Content: "typed input"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
}

type fakeAPIError struct {
	code string
	msg  string
}

func (e *fakeAPIError) Error() string                 { return e.msg }
func (e *fakeAPIError) ErrorCode() string             { return e.code }
func (e *fakeAPIError) ErrorMessage() string          { return e.msg }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestMapBedrockError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"throttle", &fakeAPIError{code: "ThrottlingException", msg: "slow down"}, domain.ErrRateLimit},
		{"auth", &fakeAPIError{code: "AccessDeniedException", msg: "denied"}, domain.ErrAuthInvalid},
		{"overflow", &fakeAPIError{code: "ValidationException", msg: "input is too long"}, domain.ErrContextOverflow},
		{"unavailable", &fakeAPIError{code: "ServiceUnavailableException", msg: "busy"}, domain.ErrProviderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockBedrockClient{
				converseFunc: func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
					return nil, tt.err
				},
			}
			provider := newBedrockProviderWithClient("bedrock-test", "model", mock, newTestLogger())

			_, err := provider.Chat(context.Background(), domain.ChatRequest{
				Messages: []domain.Turn{{Role: domain.RoleUser, Content: "hi"}},
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Chat error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestToBedrockConverseInputDefaults(t *testing.T) {
	input := toBedrockConverseInput(domain.ChatRequest{
		Model:    "m",
		Messages: []domain.Turn{{Role: domain.RoleUser, Content: "hi"}},
	})

	if aws.ToInt32(input.InferenceConfig.MaxTokens) != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", aws.ToInt32(input.InferenceConfig.MaxTokens))
	}
	if input.InferenceConfig.Temperature != nil {
		t.Error("expected no temperature when unset")
	}

	input = toBedrockConverseInput(domain.ChatRequest{
		Model:       "m",
		Messages:    []domain.Turn{{Role: domain.RoleUser, Content: "hi"}},
		Temperature: domain.Float64(0),
	})
	if input.InferenceConfig.Temperature == nil || *input.InferenceConfig.Temperature != 0 {
		t.Errorf("Temperature = %v, want explicit 0", input.InferenceConfig.Temperature)
	}
}
