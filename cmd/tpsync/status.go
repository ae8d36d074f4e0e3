package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clintrovert/tpsync/internal/audit"
)

func newStatusCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent sync operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := audit.Open(cfg.AuditDB, logger)
			if err != nil {
				return err
			}
			records, err := store.Recent(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sync operations recorded")
				return nil
			}

			for _, rec := range records {
				outcome := "ok"
				if !rec.Success {
					outcome = "FAILED"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%4d  %-19s  %-5s  %-7s  %s/%s  %s\n",
					rec.ID,
					rec.CreatedAt.UTC().Format(time.RFC3339),
					rec.Operation,
					outcome,
					rec.Release,
					rec.Team,
					rec.Message,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of records to show")
	return cmd
}
