package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"maestro-ai/internal/adapter/llm"
	"maestro-ai/internal/adapter/store"
	"maestro-ai/internal/domain"
	"maestro-ai/internal/infra/config"
	"maestro-ai/internal/infra/logger"
	"maestro-ai/internal/infra/tracer"
	"maestro-ai/internal/usecase"
	"maestro-ai/internal/usecase/multiagent"
)

func runGoal(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file path")
	goal := fs.String("goal", "", "goal to pursue (prompted for if empty)")
	maxIterations := fs.Int("max-iterations", 0, "override router.max_iterations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *maxIterations > 0 {
		cfg.Router.MaxIterations = *maxIterations
	}
	if len(cfg.Agents) == 0 {
		return fmt.Errorf("no agents configured: add at least one entry under 'agents' in %s", *configPath)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	st, err := store.New(cfg.Store.Path, logger.Component(log, "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	registry, err := buildRegistry(cfg, logger.Component(log, "llm"))
	if err != nil {
		return err
	}

	counter := buildCounter(cfg, log)
	console := newTerminalConsole(os.Stdin, os.Stdout)

	agents := make([]usecase.Agent, 0, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		provider, model, err := resolveProvider(cfg, registry, ac.Provider, ac.Model)
		if err != nil {
			return fmt.Errorf("agent %q: %w", ac.Name, err)
		}
		agent := usecase.NewLLMAgent(ac.Name, ac.Description, domain.ExecSettings{Model: model}, usecase.LLMAgentDeps{
			Provider: provider,
			Store:    st,
			Counter:  counter,
			Logger:   log,
		})
		agent.SetID(ac.ID)
		if ac.SystemPrompt != "" {
			if err := agent.SetSystemPrompt(ctx, ac.SystemPrompt, nil); err != nil {
				return fmt.Errorf("agent %q system prompt: %w", ac.Name, err)
			}
		}
		agents = append(agents, agent)
	}

	human := usecase.NewHumanAgent("Operator", "relays questions to the human operator and returns their answers", console, st, log)

	routerProvider, routerModel, err := resolveProvider(cfg, registry, cfg.Router.Provider, cfg.Router.Model)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	router := multiagent.NewRouter(routerModel, multiagent.RouterDeps{
		Provider: routerProvider,
		Store:    st,
		Console:  console,
		Counter:  counter,
		Logger:   logger.Component(log, "router"),
	})
	if err := router.InitializeAgents(ctx, human, agents, cfg.Router.SystemPrompt); err != nil {
		return err
	}

	if cfg.Retention.Enabled {
		sweeper, err := usecase.NewRetentionSweeper(st, cfg.Retention.Schedule, cfg.Retention.MaxAge, log)
		if err != nil {
			return err
		}
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
	}

	goalText := *goal
	if goalText == "" {
		goalText, err = console.WaitForResponse(ctx, "What should the team work on?", nil)
		if err != nil {
			return err
		}
	}
	if goalText == "" {
		return fmt.Errorf("empty goal")
	}

	log.Info("pursuing goal", "session", router.SessionID(), "agents", len(agents)+1)
	if err := router.PursueGoal(ctx, goalText, cfg.Router.MaxIterations); err != nil {
		return err
	}

	console.PrintMessage(fmt.Sprintf("Session `%s` complete. Replay it with `maestro transcript --session %s`.",
		router.SessionID(), router.SessionID()), domain.MimeMarkdown)
	return nil
}

// buildRegistry constructs every configured provider, wrapped in the
// circuit breaker and rate limiter when those are enabled.
func buildRegistry(cfg *config.Config, log *slog.Logger) (*llm.Registry, error) {
	registry := llm.NewRegistry()
	for _, pc := range cfg.LLM.Providers {
		provider, err := buildProvider(cfg, pc, log)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func buildProvider(cfg *config.Config, pc config.ProviderConfig, log *slog.Logger) (domain.ChatProvider, error) {
	var provider domain.ChatProvider
	var err error
	switch pc.Type {
	case "openai":
		provider = llm.NewOpenAIProvider(pc, log)
	case "bedrock":
		provider, err = llm.NewBedrockProvider(pc, log)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}

	if cfg.LLM.CircuitBreaker.Enabled {
		provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM.CircuitBreaker, log)
	}
	if cfg.LLM.RateLimit.Enabled {
		provider = llm.NewRateLimitedProvider(provider, cfg.LLM.RateLimit)
	}
	return provider, nil
}

// resolveProvider picks the named provider (falling back to the default) and
// the model to use with it (falling back to the provider's configured model).
func resolveProvider(cfg *config.Config, registry *llm.Registry, providerName, model string) (domain.ChatProvider, string, error) {
	name := providerName
	if name == "" {
		name = cfg.LLM.DefaultProvider
	}
	provider, err := registry.Get(name)
	if err != nil {
		return nil, "", err
	}
	if model == "" {
		for _, pc := range cfg.LLM.Providers {
			if pc.Name == name {
				model = pc.Model
				break
			}
		}
	}
	if model == "" {
		return nil, "", fmt.Errorf("no model configured for provider %q", name)
	}
	return provider, model, nil
}

// buildCounter returns a local token counter for usage estimation, or nil
// when the encoding data is unavailable (estimation is optional).
func buildCounter(cfg *config.Config, log *slog.Logger) domain.TokenCounter {
	model := cfg.Router.Model
	if model == "" {
		for _, pc := range cfg.LLM.Providers {
			if pc.Name == cfg.LLM.DefaultProvider {
				model = pc.Model
				break
			}
		}
	}
	counter, err := llm.NewTiktokenCounter(model)
	if err != nil {
		log.Warn("token counter unavailable, usage estimation disabled", "error", err)
		return nil
	}
	return counter
}
