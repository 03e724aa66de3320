package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "v0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "dmmlogd",
		Short: "Bench multimeter acquisition and logging daemon",
		Long: `dmmlogd polls addressed bench instruments over a query/response
transport on a fixed cadence, keeps a bounded queryable history per
instrument, and serves it for live charting, statistics and export.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newStatsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
