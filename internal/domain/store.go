package domain

import "context"

// MessageStore is the persistence contract for conversation messages.
// List results are ordered by creation timestamp ascending.
type MessageStore interface {
	Save(ctx context.Context, msg Message) error
	SaveMany(ctx context.Context, msgs []Message) error
	GetByID(ctx context.Context, id string) (Message, error)
	GetBySession(ctx context.Context, sessionID string) ([]Message, error)
	GetByAgent(ctx context.Context, agentID string) ([]Message, error)
	GetBySessionAndAgent(ctx context.Context, sessionID, agentID string) ([]Message, error)
	DeleteBySession(ctx context.Context, sessionID string) error
	DeleteByAgent(ctx context.Context, agentID string) error
	DeleteBySessionAndAgent(ctx context.Context, sessionID, agentID string) error
}
