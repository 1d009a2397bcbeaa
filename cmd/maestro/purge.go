package main

import (
	"context"
	"flag"
	"time"

	"maestro-ai/internal/adapter/store"
	"maestro-ai/internal/infra/config"
	"maestro-ai/internal/infra/logger"
	"maestro-ai/internal/usecase"
)

func runPurge(args []string) error {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file path")
	olderThan := fs.Duration("older-than", 0, "delete messages older than this (default: retention.max_age)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	maxAge := cfg.Retention.MaxAge
	if *olderThan > 0 {
		maxAge = *olderThan
	}
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := store.New(cfg.Store.Path, log)
	if err != nil {
		return err
	}
	defer st.Close()

	sweeper, err := usecase.NewRetentionSweeper(st, cfg.Retention.Schedule, maxAge, log)
	if err != nil {
		return err
	}
	return sweeper.Sweep(context.Background())
}
