package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"maestro-ai/internal/domain"
	"maestro-ai/internal/infra/tracer"
	"maestro-ai/internal/usecase"
)

// continuationPrompt is sent on every dispatch after the first: the merged
// shared history carries the actual state, the prompt only nudges the agent
// to act on it.
const continuationPrompt = "Continue working toward the goal using the conversation so far."

// evaluationPrompt re-queries the routing model after each dispatch.
const evaluationPrompt = "Given the conversation so far, is the goal now complete? " +
	"Decide which agent should act next, or signal completion."

// routerPromptTemplate derives the routing system prompt from the roster.
const routerPromptTemplate = `You coordinate a team of agents pursuing a goal.
After each exchange you decide who acts next.

Available agents:
{{.Card}}
Respond with a JSON object naming the next agent ("next"), a short rationale,
your confidence in [0,1], and "goal_complete" set to true once the goal is
fully achieved. Use "stop" as the next agent to end without completion.`

// RouterDeps holds injected dependencies for a Router.
type RouterDeps struct {
	Provider domain.ChatProvider // routing-decision completions
	Store    domain.MessageStore
	Console  domain.HumanConsole // optional, nil = silent
	Counter  domain.TokenCounter // optional
	Logger   *slog.Logger

	// EndCondition, when set, is evaluated on every reply merged into the
	// shared history. Returning true ends the pursuit immediately, without
	// another routing decision. Lets a caller finish on a content cue
	// (an operator typing "done") instead of waiting for the decider.
	EndCondition func(reply *domain.Message) bool
}

// Router pursues a goal by looping a structured routing decision over a
// fixed roster. Its own completion calls are an LLM-backed agent whose
// execution settings pin temperature to 0 and force the Decision schema;
// its history is the shared history every dispatch merges into and out of.
type Router struct {
	decider *usecase.LLMAgent
	roster  *Roster
	deps    RouterDeps
}

// NewRouter creates a router whose decisions come from the given model.
func NewRouter(model string, deps RouterDeps) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	settings := domain.ExecSettings{
		Model:          model,
		Temperature:    domain.Float64(0), // decisions must be reproducible
		ResponseSchema: json.RawMessage(DecisionSchema),
	}
	decider := usecase.NewLLMAgent("router", "routes the conversation", settings, usecase.LLMAgentDeps{
		Provider: deps.Provider,
		Store:    deps.Store,
		Counter:  deps.Counter,
		Logger:   deps.Logger,
	})

	return &Router{decider: decider, deps: deps}
}

// InitializeAgents binds the roster (the human proxy plus the specialized
// agents), generates one shared session, and propagates it to every member.
// The routing system prompt is derived from the roster's names and
// descriptions unless systemPromptOverride is non-empty.
func (r *Router) InitializeAgents(ctx context.Context, humanProxy usecase.Agent, specialized []usecase.Agent, systemPromptOverride string) error {
	members := make([]usecase.Agent, 0, len(specialized)+1)
	if humanProxy != nil {
		members = append(members, humanProxy)
	}
	members = append(members, specialized...)

	roster, err := NewRoster(members)
	if err != nil {
		return err
	}
	r.roster = roster

	sessionID, err := r.decider.StartSession(ctx)
	if err != nil {
		return err
	}
	for _, a := range roster.Agents() {
		a.SetSession(sessionID)
	}

	prompt := systemPromptOverride
	vars := map[string]any(nil)
	if prompt == "" {
		prompt = routerPromptTemplate
		vars = map[string]any{"Card": roster.Card()}
	}
	if err := r.decider.SetSystemPrompt(ctx, prompt, vars); err != nil {
		return err
	}

	r.deps.Logger.Info("roster initialized",
		"session", sessionID, "agents", len(roster.Agents()))
	return nil
}

// SessionID returns the shared session id, empty before initialization.
func (r *Router) SessionID() string { return r.decider.SessionID() }

// History returns the shared conversation history.
func (r *Router) History() *usecase.History { return r.decider.History() }

// PursueGoal runs the routing loop until the goal is complete, a stop
// sentinel is decided, the end condition matches a reply, maxIterations
// dispatches have run, or an error surfaces. Agent and decision errors
// propagate unwrapped; the loop never retries or second-guesses.
func (r *Router) PursueGoal(ctx context.Context, goal string, maxIterations int) error {
	ctx, span := tracer.StartSpan(ctx, "router.pursue_goal",
		trace.WithAttributes(
			tracer.StringAttr("router.goal", goal),
			tracer.IntAttr("router.max_iterations", maxIterations),
		),
	)
	defer span.End()

	if r.roster == nil {
		err := domain.NewDomainError("Router.PursueGoal", domain.ErrInvalidInput, "roster not initialized")
		tracer.RecordError(span, err)
		return err
	}
	if maxIterations <= 0 {
		err := domain.NewDomainError("Router.PursueGoal", domain.ErrInvalidInput, "max iterations must be positive")
		tracer.RecordError(span, err)
		return err
	}

	decision, err := r.decide(ctx, goal)
	if err != nil {
		tracer.RecordError(span, err)
		return err
	}

	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			tracer.RecordError(span, err)
			return err
		}

		// GoalComplete wins over whatever Next names, and a stop sentinel
		// ends the loop without a dispatch. Confidence is recorded for the
		// operator but never gates termination.
		if decision.GoalComplete {
			r.deps.Logger.Info("goal complete",
				"iterations", i, "confidence", decision.Confidence, "rationale", decision.Rationale)
			tracer.SetOK(span)
			return nil
		}
		if decision.IsStop() {
			r.deps.Logger.Info("routing stopped by sentinel",
				"sentinel", decision.Next, "iterations", i, "confidence", decision.Confidence)
			tracer.SetOK(span)
			return nil
		}

		agent, err := r.roster.Lookup(decision.Next)
		if err != nil {
			// An unknown name is a configuration or parse failure; guessing
			// a "close enough" agent would hide it.
			tracer.RecordError(span, err)
			return err
		}

		// The chosen agent sees exactly the shared history, deduplicated.
		agent.History().ReplaceWith(r.decider.History().Messages())

		r.notify(fmt.Sprintf("**%s** acts next: %s", agent.Name(), decision.Rationale))

		prompt := continuationPrompt
		if i == 0 {
			prompt = goal
		}
		reply, err := agent.Send(ctx, prompt)
		if err != nil {
			tracer.RecordError(span, err)
			return err
		}

		r.decider.History().Merge([]domain.Message{*reply})
		r.notify(reply.Content)

		if r.deps.EndCondition != nil && r.deps.EndCondition(reply) {
			r.deps.Logger.Info("end condition met",
				"agent", agent.Name(), "iterations", i+1)
			tracer.SetOK(span)
			return nil
		}

		decision, err = r.decide(ctx, evaluationPrompt)
		if err != nil {
			tracer.RecordError(span, err)
			return err
		}
	}

	// Cap exhausted: a normal return, the conversation simply ran its budget.
	r.deps.Logger.Info("iteration cap reached", "iterations", maxIterations)
	tracer.SetOK(span)
	return nil
}

// decide runs one routing completion and parses the structured decision.
func (r *Router) decide(ctx context.Context, prompt string) (*Decision, error) {
	ctx, span := tracer.StartSpan(ctx, "router.decide")
	defer span.End()

	reply, err := r.decider.Send(ctx, prompt)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	decision, err := ParseDecision(reply.Content)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	r.deps.Logger.Debug("route decision",
		"next", decision.Next,
		"confidence", decision.Confidence,
		"goal_complete", decision.GoalComplete,
		"rationale", decision.Rationale)
	tracer.SetOK(span)
	return decision, nil
}

// notify narrates routing to the console. Display only, never persisted.
func (r *Router) notify(text string) {
	if r.deps.Console == nil {
		return
	}
	r.deps.Console.PrintMessage(text, domain.MimeMarkdown)
}
