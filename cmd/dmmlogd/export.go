package main

import (
	"github.com/spf13/cobra"

	"codeberg.org/benchkit/dmmlogd/internal/archive"
	"codeberg.org/benchkit/dmmlogd/internal/config"
	"codeberg.org/benchkit/dmmlogd/internal/export"
	"codeberg.org/benchkit/dmmlogd/internal/logger"
)

func newExportCmd() *cobra.Command {
	var (
		dbPath string
		device string
		format string
		output string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived measurements to CSV, JSON or TXT",
		RunE: func(_ *cobra.Command, _ []string) error {
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

			if output == "" {
				output = export.DefaultFilename(format)
			}
			if err := export.WriteFile(output, format, records); err != nil {
				return err
			}

			logger.Info().
				Str("file", output).
				Int("records", len(records)).
				Msg("Export complete")

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dbPath, "db", config.DefaultArchiveDB, "Archive database path")
	flags.StringVar(&device, "device", "", "Restrict export to a single instrument")
	flags.StringVar(&format, "format", config.DefaultExportFormat, "Export format (csv, json, txt)")
	flags.StringVar(&output, "output", "", "Output file path (default: timestamped name)")
	flags.IntVar(&limit, "limit", 0, "Export only the most recent N records (0 = all)")

	return cmd
}
