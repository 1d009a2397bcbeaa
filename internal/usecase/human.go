package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"maestro-ai/internal/domain"
)

// HumanModelID marks messages produced by an operator rather than a model.
const HumanModelID = "human-proxy"

// HumanAgent satisfies Agent by blocking on a console until an operator
// replies. It never touches a completion provider; replies carry the human
// role and the human-proxy model id.
type HumanAgent struct {
	id          string
	name        string
	description string
	sessionID   string
	console     domain.HumanConsole
	store       domain.MessageStore
	logger      *slog.Logger
	history     *History
}

// NewHumanAgent creates a console-backed agent.
func NewHumanAgent(name, description string, console domain.HumanConsole, store domain.MessageStore, logger *slog.Logger) *HumanAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &HumanAgent{
		id:          generateULID(time.Now()),
		name:        name,
		description: description,
		console:     console,
		store:       store,
		logger:      logger,
		history:     NewHistory(),
	}
}

func (a *HumanAgent) Name() string        { return a.name }
func (a *HumanAgent) Description() string { return a.description }
func (a *HumanAgent) ID() string          { return a.id }
func (a *HumanAgent) SessionID() string   { return a.sessionID }
func (a *HumanAgent) History() *History   { return a.history }

// SetSession attaches the agent to an existing session. A blank id is a
// caller bug and panics, same as the LLM-backed variant.
func (a *HumanAgent) SetSession(sessionID string) {
	if strings.TrimSpace(sessionID) == "" {
		panic("usecase: SetSession with blank session id")
	}
	a.sessionID = sessionID
}

// StartSession begins a fresh session and clears history.
func (a *HumanAgent) StartSession(ctx context.Context) (string, error) {
	a.sessionID = generateULID(time.Now())
	a.history.Clear()
	return a.sessionID, nil
}

// SetSystemPrompt is accepted and discarded: an operator is not steered by
// system prompts. The template is still rendered so malformed configuration
// surfaces here rather than at routing time.
func (a *HumanAgent) SetSystemPrompt(ctx context.Context, tmpl string, vars map[string]any) error {
	_, err := RenderPrompt(tmpl, vars)
	return err
}

// RestoreHistory reloads this agent's persisted conversation.
func (a *HumanAgent) RestoreHistory(ctx context.Context) error {
	if a.sessionID == "" {
		return domain.NewDomainError("HumanAgent.RestoreHistory", domain.ErrNoActiveSession, a.name)
	}
	return a.history.Restore(ctx, a.store, a.sessionID, a.id, a.logger)
}

// Send blocks until the operator types a reply.
func (a *HumanAgent) Send(ctx context.Context, prompt string) (*domain.Message, error) {
	if a.sessionID == "" {
		return nil, domain.NewDomainError("HumanAgent.Send", domain.ErrNoActiveSession, a.name)
	}

	answer, err := a.console.WaitForResponse(ctx, prompt, a.history.Turns())
	if err != nil {
		return nil, domain.NewDomainError("HumanAgent.Send", err, "console input")
	}

	promptMsg := domain.Message{
		ID:        generateULID(time.Now()),
		SessionID: a.sessionID,
		AgentID:   a.id,
		AgentName: a.name,
		Role:      domain.RoleUser,
		Content:   prompt,
		MimeType:  domain.MimeMarkdown,
		CreatedAt: time.Now().UTC(),
	}
	replyMsg := domain.Message{
		ID:        generateULID(time.Now()),
		SessionID: a.sessionID,
		AgentID:   a.id,
		AgentName: a.name,
		Role:      domain.RoleHuman,
		Content:   answer,
		MimeType:  domain.MimeMarkdown,
		Model:     HumanModelID,
		CreatedAt: time.Now().UTC(),
	}
	a.history.AppendRange([]domain.Message{promptMsg, replyMsg})

	if a.store != nil {
		if err := a.store.SaveMany(ctx, []domain.Message{promptMsg, replyMsg}); err != nil {
			a.logger.Error("persisting console exchange failed",
				"agent", a.name, "session", a.sessionID, "error", err)
			return nil, err
		}
	}

	return &replyMsg, nil
}

// Stream satisfies Agent; console input has no deltas, so the reply arrives
// as a single terminal chunk.
func (a *HumanAgent) Stream(ctx context.Context, prompt string, onChunk func(domain.StreamDelta)) (*domain.Message, error) {
	msg, err := a.Send(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		safeChunk(onChunk, domain.StreamDelta{
			Content: msg.Content,
			Role:    msg.Role,
			Model:   HumanModelID,
			Done:    true,
		}, a.logger)
	}
	return msg, nil
}

var _ Agent = (*HumanAgent)(nil)
