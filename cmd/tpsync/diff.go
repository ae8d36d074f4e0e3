package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clintrovert/tpsync/internal/attrib"
	"github.com/clintrovert/tpsync/internal/gitops"
	"github.com/clintrovert/tpsync/internal/syncer"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Classify local plan changes as user edits or remote updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			repo, err := gitops.Open(cfg.RepoPath, logger)
			if err != nil {
				return err
			}
			current, err := repo.CurrentBranch()
			if err != nil {
				return err
			}
			tracking := syncer.TrackingBranch(cfg.Release, cfg.Team)
			diff, err := repo.DiffContent(tracking, current)
			if err != nil {
				return err
			}

			changes := attrib.Changes(diff)
			if len(changes) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no field changes between %s and %s\n", tracking, current)
				return nil
			}
			for _, c := range changes {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %-12s %q -> %q\n",
					c.Source, c.Field, c.OldValue, c.NewValue)
			}

			s := attrib.Summarize(changes)
			fmt.Fprintf(cmd.OutOrStdout(), "%d change(s): %d user edit(s), %d remote update(s)\n",
				s.Total, s.UserEdits, s.RemoteUpdates)
			if s.HasConflict {
				fmt.Fprintf(cmd.OutOrStdout(), "CONFLICT: both sides changed the plan; fields: %v\n",
					s.ConflictingFields)
			}
			return nil
		},
	}
}
