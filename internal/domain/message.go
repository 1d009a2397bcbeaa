package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role constants for conversation turns. The set is closed: any other
// value is rejected by ParseRole and Message.Validate.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleHuman     = "human"
)

// MimeMarkdown is the default MIME type for message content.
const MimeMarkdown = "text/markdown"

// ParseRole validates a stored role string and returns its canonical form.
func ParseRole(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case RoleSystem:
		return RoleSystem, nil
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	case RoleHuman:
		return RoleHuman, nil
	}
	return "", fmt.Errorf("%w: role %q", ErrInvalidInput, s)
}

// Turn is the lightweight role/content pair sent to a completion provider.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message is the persisted record of a single conversation turn.
// The ID is immutable once assigned; SessionID and AgentID are required.
type Message struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	AgentID   string            `json:"agent_id"`
	AgentName string            `json:"agent_name,omitempty"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	MimeType  string            `json:"mime_type"`
	Model     string            `json:"model,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Version   int               `json:"version"`
}

// Validate checks the invariants required before persisting.
func (m *Message) Validate() error {
	if m.ID == "" {
		return NewDomainError("Message.Validate", ErrInvalidInput, "empty id")
	}
	if strings.TrimSpace(m.SessionID) == "" {
		return NewDomainError("Message.Validate", ErrInvalidInput, "empty session id for message "+m.ID)
	}
	if strings.TrimSpace(m.AgentID) == "" {
		return NewDomainError("Message.Validate", ErrInvalidInput, "empty agent id for message "+m.ID)
	}
	if _, err := ParseRole(m.Role); err != nil {
		return NewDomainError("Message.Validate", err, "message "+m.ID)
	}
	return nil
}

// Turn returns the completion-call projection of the message.
func (m *Message) Turn() Turn {
	return Turn{Role: m.Role, Content: m.Content}
}

// Usage tracks token consumption for one completion call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Metadata keys under which usage counts are recorded on assistant messages.
const (
	MetaPromptTokens     = "prompt_tokens"
	MetaCompletionTokens = "completion_tokens"
	MetaTotalTokens      = "total_tokens"
	MetaUsageEstimated   = "usage_estimated"
)
