package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ToolPolicy controls whether a completion call may invoke provider-side tools.
type ToolPolicy string

const (
	ToolPolicyNone ToolPolicy = "none" // tools disabled (default)
	ToolPolicyAuto ToolPolicy = "auto" // provider decides
)

// ChatRequest is sent to a completion provider.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Turn          `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseSchema json.RawMessage `json:"response_schema,omitempty"` // structured-output constraint
	ToolPolicy     ToolPolicy      `json:"tool_policy,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
}

// ChatResponse is returned from a completion provider.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Turn      `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatProvider is the completion contract consumed by LLM-backed agents.
type ChatProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "bedrock").
	Name() string
}

// StreamDelta is a single incremental chunk from a streaming response.
// The final chunk carries Done plus aggregate Usage and the model id.
type StreamDelta struct {
	Content string `json:"content,omitempty"`
	Role    string `json:"role,omitempty"`
	Model   string `json:"model,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
}

// StreamingChatProvider extends ChatProvider with streaming support.
type StreamingChatProvider interface {
	ChatProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}

// TokenCounter estimates token counts for text, used when a provider
// response carries no usage metadata.
type TokenCounter interface {
	CountText(text string) int
	CountTurns(turns []Turn) int
}

// ExecSettings holds per-call model parameters an agent passes through to
// the completion contract.
type ExecSettings struct {
	Model          string
	Temperature    *float64
	MaxTokens      int
	ResponseSchema json.RawMessage
	ToolPolicy     ToolPolicy
}

// Float64 returns a pointer to v, for setting ExecSettings.Temperature inline.
func Float64(v float64) *float64 { return &v }
