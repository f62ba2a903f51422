// Package main provides the entry point for the tidalflow CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/tidalflow/cmd/tidalflow/commands"
	"github.com/Sumatoshi-tech/tidalflow/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tidalflow",
		Short: "Tidalflow - timely dataflow with accelerator offload",
		Long: `Tidalflow runs timely dataflows whose hot operator chains are fused
onto an accelerator behind a single host-side wrapper.

Commands:
  bench     Run the offload benchmark
  render    Render a benchmark report as an HTML latency chart
  config    Show the resolved configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewBenchCommand())
	rootCmd.AddCommand(commands.NewRenderCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "tidalflow %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
