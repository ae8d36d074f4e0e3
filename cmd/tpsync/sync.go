package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clintrovert/tpsync/internal/audit"
	"github.com/clintrovert/tpsync/internal/config"
	"github.com/clintrovert/tpsync/internal/gitops"
	"github.com/clintrovert/tpsync/internal/markdown"
	"github.com/clintrovert/tpsync/internal/syncer"
	"github.com/clintrovert/tpsync/internal/targetprocess"
	"github.com/clintrovert/tpsync/pkg/types"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the tracking and feature branches for the configured release/team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, "init")
		},
	}
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Commit fresh remote data to the tracking branch and rebase the current branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, "pull")
		},
	}
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push local plan edits back to TargetProcess",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			tp := targetprocess.NewClient(cfg.TargetProcess.URL, cfg.TargetProcess.Token, nil, logger)
			repo, err := gitops.Open(cfg.RepoPath, logger)
			if err != nil {
				return err
			}

			engine := syncer.New(repo, nil, logger)
			result, err := engine.Push(ctx, cfg.Team, cfg.Release, tp)
			if err != nil {
				return err
			}
			recordOutcome(cfg, logger, "push", result)

			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			for _, call := range result.APICalls {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s %s\n", call.Operation, call.Entity, call.Fields["name"])
			}
			if !result.Success {
				return errors.New("push failed")
			}
			return nil
		},
	}
}

// runSync drives init and pull, which share the fetch-then-sync shape.
func runSync(cmd *cobra.Command, operation string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	doc, err := fetchPlan(ctx, cfg, logger)
	if err != nil {
		return err
	}
	repo, err := gitops.Open(cfg.RepoPath, logger)
	if err != nil {
		return err
	}

	engine := syncer.New(repo, nil, logger)
	var result *types.SyncResult
	switch operation {
	case "init":
		result, err = engine.Init(ctx, *doc)
	case "pull":
		result, err = engine.Pull(ctx, *doc)
	}
	if err != nil {
		return err
	}
	recordOutcome(cfg, logger, operation, result)

	fmt.Fprintln(cmd.OutOrStdout(), result.Message)
	for _, f := range result.Conflicts {
		fmt.Fprintf(cmd.OutOrStdout(), "  conflict: %s\n", f)
	}
	if !result.Success {
		return fmt.Errorf("%s failed", operation)
	}
	return nil
}

// fetchPlan pulls the current remote planning data into a document.
func fetchPlan(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*markdown.Document, error) {
	tp := targetprocess.NewClient(cfg.TargetProcess.URL, cfg.TargetProcess.Token, nil, logger)

	objectives, err := tp.GetTeamObjectives(ctx, cfg.Release, cfg.Team)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch team objectives: %w", err)
	}
	programObjectives, err := tp.GetProgramObjectives(ctx, cfg.Release, cfg.ART)
	if err != nil {
		// Reference-only data; the plan is still usable without it.
		logger.Warn("failed to fetch program objectives", zap.Error(err))
	}

	return &markdown.Document{
		Release:           cfg.Release,
		Team:              cfg.Team,
		ART:               cfg.ART,
		Objectives:        objectives,
		ProgramObjectives: programObjectives,
	}, nil
}

// recordOutcome persists the result to the audit store; failures only log.
func recordOutcome(cfg *config.Config, logger *zap.Logger, operation string, result *types.SyncResult) {
	store, err := audit.Open(cfg.AuditDB, logger)
	if err != nil {
		logger.Warn("failed to open audit store", zap.Error(err))
		return
	}
	if err := store.Record(operation, cfg.Release, cfg.Team, result); err != nil {
		logger.Warn("failed to record sync outcome", zap.Error(err))
	}
}
