package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"codeberg.org/benchkit/dmmlogd/internal/archive"
	"codeberg.org/benchkit/dmmlogd/internal/config"
	"codeberg.org/benchkit/dmmlogd/internal/logger"
	"codeberg.org/benchkit/dmmlogd/internal/stats"
)

func newStatsCmd() *cobra.Command {
	var (
		dbPath string
		device string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize archived measurements",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger.Init(config.DefaultLogLevel, false)
			log := logger.Default()

			repo, err := archive.OpenReadOnly(dbPath, log)
			if err != nil {
				return err
			}
			defer repo.Close()

			records, err := repo.Query(device, limit)
			if err != nil {
				return err
			}

			summary := stats.Compute(records)
			payload, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(payload))

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dbPath, "db", config.DefaultArchiveDB, "Archive database path")
	flags.StringVar(&device, "device", "", "Restrict the summary to a single instrument")
	flags.IntVar(&limit, "limit", 0, "Summarize only the most recent N records (0 = all)")

	return cmd
}
