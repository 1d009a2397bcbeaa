package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"maestro-ai/internal/adapter/store"
	"maestro-ai/internal/domain"
	"maestro-ai/internal/infra/config"
	"maestro-ai/internal/infra/logger"
	"maestro-ai/internal/usecase"
)

func runTranscript(args []string) error {
	fs := flag.NewFlagSet("transcript", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file path")
	sessionID := fs.String("session", "", "session id to render (omit to list sessions)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Store.Path, logger.Discard())
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	if *sessionID == "" {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no stored sessions")
			return nil
		}
		fmt.Println("Stored sessions, most recent first:")
		for _, s := range sessions {
			fmt.Printf("  %s\n", s)
		}
		return nil
	}

	msgs, err := st.GetBySession(ctx, *sessionID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return fmt.Errorf("session %q has no messages", *sessionID)
	}

	history := usecase.NewHistory()
	history.ReplaceWith(msgs)

	console := newTerminalConsole(os.Stdin, os.Stdout)
	console.PrintMessage(history.Transcript(), domain.MimeMarkdown)
	return nil
}
