package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"maestro-ai/internal/domain"
	"maestro-ai/internal/infra/tracer"
)

// Agent is the capability contract every conversation participant satisfies,
// whether backed by a completion provider or a human at a console. One
// interface, no hierarchies: a router treats all variants uniformly.
type Agent interface {
	Name() string
	Description() string

	// Send delivers a prompt and blocks until the full reply message is ready.
	Send(ctx context.Context, prompt string) (*domain.Message, error)
	// Stream delivers a prompt and invokes onChunk for each incremental
	// delta before returning the assembled reply.
	Stream(ctx context.Context, prompt string, onChunk func(domain.StreamDelta)) (*domain.Message, error)

	// StartSession begins a fresh session and returns its id. Any previous
	// in-memory history is discarded.
	StartSession(ctx context.Context) (string, error)
	// SetSession attaches the agent to an existing session id.
	SetSession(sessionID string)
	SessionID() string

	// SetSystemPrompt renders the template with vars and installs the result
	// as the leading system turn.
	SetSystemPrompt(ctx context.Context, tmpl string, vars map[string]any) error

	// RestoreHistory reloads this agent's persisted conversation for the
	// current session.
	RestoreHistory(ctx context.Context) error
	History() *History
}

// OnCompletedFunc is invoked after an agent produces a reply message.
type OnCompletedFunc func(msg domain.Message)

// LLMAgentDeps holds injected dependencies for an LLM-backed agent.
type LLMAgentDeps struct {
	Provider    domain.ChatProvider
	Store       domain.MessageStore
	Counter     domain.TokenCounter // optional, nil = no usage estimation
	Logger      *slog.Logger
	OnCompleted OnCompletedFunc // optional
}

// LLMAgent satisfies Agent via a completion provider. Every exchange persists
// both the prompt and the reply; the in-memory history stays the source of
// truth for what the provider sees.
type LLMAgent struct {
	id           string
	name         string
	description  string
	systemPrompt string
	sessionID    string
	settings     domain.ExecSettings
	history      *History
	deps         LLMAgentDeps
}

// NewLLMAgent creates an LLM-backed agent. Name and description feed the
// router's agent card; settings pin model parameters for every call.
func NewLLMAgent(name, description string, settings domain.ExecSettings, deps LLMAgentDeps) *LLMAgent {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &LLMAgent{
		id:          generateULID(time.Now()),
		name:        name,
		description: description,
		settings:    settings,
		history:     NewHistory(),
		deps:        deps,
	}
}

func (a *LLMAgent) Name() string        { return a.name }
func (a *LLMAgent) Description() string { return a.description }
func (a *LLMAgent) ID() string          { return a.id }

// SetID overrides the generated identifier. Configured rosters use stable
// ids so persisted history can be found again after a restart.
func (a *LLMAgent) SetID(id string) {
	if id != "" {
		a.id = id
	}
}
func (a *LLMAgent) SessionID() string { return a.sessionID }
func (a *LLMAgent) History() *History { return a.history }

// SetSession attaches the agent to an existing session without touching
// history. A blank id is a caller bug and panics: every later operation
// would silently persist under an unusable session key.
func (a *LLMAgent) SetSession(sessionID string) {
	if strings.TrimSpace(sessionID) == "" {
		panic("usecase: SetSession with blank session id")
	}
	a.sessionID = sessionID
}

// StartSession begins a fresh session. History resets to the system prompt.
func (a *LLMAgent) StartSession(ctx context.Context) (string, error) {
	a.sessionID = generateULID(time.Now())
	a.resetHistory()
	return a.sessionID, nil
}

// SetSystemPrompt renders tmpl with vars and installs the result as the
// leading system turn, replacing any previous one.
func (a *LLMAgent) SetSystemPrompt(ctx context.Context, tmpl string, vars map[string]any) error {
	rendered, err := RenderPrompt(tmpl, vars)
	if err != nil {
		return err
	}
	a.systemPrompt = rendered
	a.resetSystemTurn()
	return nil
}

// resetHistory clears the history, reinstalling the system turn if set.
func (a *LLMAgent) resetHistory() {
	a.history.Clear()
	if a.systemPrompt != "" {
		a.history.Append(a.systemMessage())
	}
}

// resetSystemTurn swaps the leading system message for the current prompt,
// keeping the rest of the conversation.
func (a *LLMAgent) resetSystemTurn() {
	msgs := a.history.Messages()
	for len(msgs) > 0 && msgs[0].Role == domain.RoleSystem {
		msgs = msgs[1:]
	}
	rebuilt := make([]domain.Message, 0, len(msgs)+1)
	if a.systemPrompt != "" {
		rebuilt = append(rebuilt, a.systemMessage())
	}
	rebuilt = append(rebuilt, msgs...)
	a.history.ReplaceWith(rebuilt)
}

func (a *LLMAgent) systemMessage() domain.Message {
	return domain.Message{
		ID:        generateULID(time.Now()),
		SessionID: a.sessionID,
		AgentID:   a.id,
		AgentName: a.name,
		Role:      domain.RoleSystem,
		Content:   a.systemPrompt,
		MimeType:  domain.MimeMarkdown,
		CreatedAt: time.Now().UTC(),
	}
}

// RestoreHistory reloads this agent's persisted conversation for the current
// session.
func (a *LLMAgent) RestoreHistory(ctx context.Context) error {
	if a.sessionID == "" {
		return domain.NewDomainError("LLMAgent.RestoreHistory", domain.ErrNoActiveSession, a.name)
	}
	if err := a.history.Restore(ctx, a.deps.Store, a.sessionID, a.id, a.deps.Logger); err != nil {
		return err
	}
	// Persisted rows carry only the exchanges; the system turn lives with
	// the agent and is reinstalled on top.
	a.resetSystemTurn()
	return nil
}

// Send implements Agent.
func (a *LLMAgent) Send(ctx context.Context, prompt string) (*domain.Message, error) {
	return a.exchange(ctx, prompt, nil)
}

// Stream implements Agent. onChunk runs on the agent's goroutine for every
// delta; a panicking or slow callback never corrupts the exchange.
func (a *LLMAgent) Stream(ctx context.Context, prompt string, onChunk func(domain.StreamDelta)) (*domain.Message, error) {
	return a.exchange(ctx, prompt, onChunk)
}

// exchange is the shared path for Send and Stream. A non-nil onChunk selects
// streaming when the provider supports it; otherwise the synchronous path
// runs and onChunk receives the reply as a single delta.
func (a *LLMAgent) exchange(ctx context.Context, prompt string, onChunk func(domain.StreamDelta)) (*domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.send",
		trace.WithAttributes(tracer.AgentAttrs(a.name, a.sessionID)...),
	)
	defer span.End()

	if a.sessionID == "" {
		err := domain.NewDomainError("LLMAgent.Send", domain.ErrNoActiveSession, a.name)
		tracer.RecordError(span, err)
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		err := domain.NewDomainError("LLMAgent.Send", domain.ErrInvalidInput, "empty prompt")
		tracer.RecordError(span, err)
		return nil, err
	}

	userMsg := domain.Message{
		ID:        generateULID(time.Now()),
		SessionID: a.sessionID,
		AgentID:   a.id,
		AgentName: a.name,
		Role:      domain.RoleUser,
		Content:   prompt,
		MimeType:  domain.MimeMarkdown,
		CreatedAt: time.Now().UTC(),
	}
	a.history.Append(userMsg)

	req := domain.ChatRequest{
		Model:          a.settings.Model,
		Messages:       a.history.Turns(),
		MaxTokens:      a.settings.MaxTokens,
		Temperature:    a.settings.Temperature,
		ResponseSchema: a.settings.ResponseSchema,
		ToolPolicy:     a.settings.ToolPolicy,
	}

	var (
		reply domain.Turn
		usage domain.Usage
		model string
		err   error
	)

	sp, canStream := a.deps.Provider.(domain.StreamingChatProvider)
	if onChunk != nil && canStream {
		reply, usage, model, err = a.streamOnce(ctx, sp, req, onChunk)
	} else {
		var resp *domain.ChatResponse
		resp, err = a.deps.Provider.Chat(ctx, req)
		if err == nil {
			reply = resp.Message
			usage = resp.Usage
			model = resp.Model
			if onChunk != nil {
				safeChunk(onChunk, domain.StreamDelta{
					Content: reply.Content,
					Role:    reply.Role,
					Model:   model,
					Done:    true,
					Usage:   &usage,
				}, a.deps.Logger)
			}
		}
	}
	if err != nil {
		// Keep projections in lockstep: the failed prompt never lingers.
		a.history.Remove(userMsg.ID)
		tracer.RecordError(span, err)
		return nil, err
	}
	if model == "" {
		model = a.settings.Model
	}

	assistantMsg := domain.Message{
		ID:        generateULID(time.Now()),
		SessionID: a.sessionID,
		AgentID:   a.id,
		AgentName: a.name,
		Role:      domain.RoleAssistant,
		Content:   reply.Content,
		MimeType:  domain.MimeMarkdown,
		Model:     model,
		Metadata:  a.usageMetadata(usage, prompt, reply.Content),
		CreatedAt: time.Now().UTC(),
	}
	a.history.Append(assistantMsg)

	if err := a.persist(ctx, userMsg, assistantMsg); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if a.deps.OnCompleted != nil {
		safeCompleted(a.deps.OnCompleted, assistantMsg, a.deps.Logger)
	}

	tracer.SetOK(span)
	return &assistantMsg, nil
}

// streamOnce consumes one streaming exchange, forwarding deltas to onChunk.
// Cancellation is honored between chunks.
func (a *LLMAgent) streamOnce(ctx context.Context, sp domain.StreamingChatProvider, req domain.ChatRequest, onChunk func(domain.StreamDelta)) (domain.Turn, domain.Usage, string, error) {
	req.Stream = true

	ch, err := sp.ChatStream(ctx, req)
	if err != nil {
		return domain.Turn{}, domain.Usage{}, "", err
	}

	acc := newStreamAccumulator()
	for {
		select {
		case <-ctx.Done():
			return domain.Turn{}, domain.Usage{}, "", ctx.Err()
		case delta, ok := <-ch:
			if !ok {
				reply, usage := acc.build()
				return reply, usage, acc.model, nil
			}
			acc.addDelta(delta)
			safeChunk(onChunk, delta, a.deps.Logger)
		}
	}
}

// persist writes the exchanged pair in one transaction. Failures are logged
// with the session for operator forensics and re-raised.
func (a *LLMAgent) persist(ctx context.Context, msgs ...domain.Message) error {
	if a.deps.Store == nil {
		return nil
	}
	if err := a.deps.Store.SaveMany(ctx, msgs); err != nil {
		a.deps.Logger.Error("persisting exchange failed",
			"agent", a.name, "session", a.sessionID, "error", err)
		return fmt.Errorf("persist exchange: %w", err)
	}
	return nil
}

// usageMetadata records token counts on the reply. When the provider reported
// nothing, counts are estimated locally and flagged as such.
func (a *LLMAgent) usageMetadata(usage domain.Usage, prompt, reply string) map[string]string {
	estimated := false
	if usage.TotalTokens == 0 && a.deps.Counter != nil {
		usage.PromptTokens = a.deps.Counter.CountTurns(a.history.Turns())
		usage.CompletionTokens = a.deps.Counter.CountText(reply)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		estimated = true
	}
	if usage.TotalTokens == 0 {
		return nil
	}

	meta := map[string]string{
		domain.MetaPromptTokens:     strconv.Itoa(usage.PromptTokens),
		domain.MetaCompletionTokens: strconv.Itoa(usage.CompletionTokens),
		domain.MetaTotalTokens:      strconv.Itoa(usage.TotalTokens),
	}
	if estimated {
		meta[domain.MetaUsageEstimated] = "true"
	}
	return meta
}

// safeChunk invokes a stream callback, containing panics so a broken consumer
// cannot abort the exchange mid-stream.
func safeChunk(onChunk func(domain.StreamDelta), delta domain.StreamDelta, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("stream chunk callback panicked", "panic", r)
		}
	}()
	onChunk(delta)
}

// safeCompleted invokes the completion callback with the same containment.
func safeCompleted(fn OnCompletedFunc, msg domain.Message, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("completed callback panicked", "panic", r)
		}
	}()
	fn(msg)
}

// streamAccumulator collects incremental deltas into a complete reply.
type streamAccumulator struct {
	content strings.Builder
	usage   domain.Usage
	model   string
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{}
}

func (acc *streamAccumulator) addDelta(delta domain.StreamDelta) {
	acc.content.WriteString(delta.Content)
	if delta.Model != "" {
		acc.model = delta.Model
	}
	if delta.Usage != nil {
		acc.usage = *delta.Usage
	}
}

func (acc *streamAccumulator) build() (domain.Turn, domain.Usage) {
	return domain.Turn{
		Role:    domain.RoleAssistant,
		Content: acc.content.String(),
	}, acc.usage
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

var _ Agent = (*LLMAgent)(nil)
