// Package commands implements the tidalflow CLI commands.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/tidalflow/internal/bench"
	"github.com/Sumatoshi-tech/tidalflow/internal/config"
	internalobs "github.com/Sumatoshi-tech/tidalflow/internal/observability"
	"github.com/Sumatoshi-tech/tidalflow/pkg/observability"
)

// progressModeEnv mirrors the runtime's environment switch; the config
// seeds it unless the caller already set it.
const progressModeEnv = "DEFAULT_PROGRESS_MODE"

// NewBenchCommand builds the bench subcommand.
func NewBenchCommand() *cobra.Command {
	var (
		configPath string
		rounds     int
		data       int
		operators  int
		workers    int
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the offload benchmark",
		Long: `Runs a dataflow per worker that feeds synthetic records through a
device-fused operator chain and records per-epoch latency.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if rounds > 0 {
				cfg.Bench.Rounds = rounds
			}

			if data > 0 {
				cfg.Bench.Data = data
			}

			if operators > 0 {
				cfg.Bench.Operators = operators
			}

			if workers > 0 {
				cfg.Runtime.Workers = workers
			}

			if reportPath != "" {
				cfg.Bench.ReportPath = reportPath
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			return runBench(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file")
	cmd.Flags().IntVar(&rounds, "rounds", 0, "epochs to run (overrides config)")
	cmd.Flags().IntVar(&data, "data", 0, "records per epoch (overrides config)")
	cmd.Flags().IntVar(&operators, "operators", 0, "fused chain length (overrides config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count (overrides config)")
	cmd.Flags().StringVar(&reportPath, "report", "", "write a JSON latency report")

	return cmd
}

func runBench(cfg config.Config) error {
	if os.Getenv(progressModeEnv) == "" && cfg.Runtime.ProgressMode != "" {
		os.Setenv(progressModeEnv, cfg.Runtime.ProgressMode)
	}

	providers, err := observability.Init(observability.DefaultConfig())
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := providers.Shutdown(cmdContext())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown", "error", shutdownErr)
		}
	}()

	if cfg.Runtime.DiagnosticsAddr != "" {
		server, diagErr := internalobs.NewDiagnosticsServer(cfg.Runtime.DiagnosticsAddr, providers.Registry)
		if diagErr != nil {
			return diagErr
		}

		defer server.Close()

		providers.Logger.Info("diagnostics listening", "addr", server.Addr())
	}

	providers.Logger.Info("bench starting",
		"rounds", cfg.Bench.Rounds, "data", cfg.Bench.Data,
		"operators", cfg.Bench.Operators, "workers", cfg.Runtime.Workers)

	report, err := bench.Run(cfg, bench.Options{
		Logger: providers.Logger,
		Metrics: func(workerIndex int) (*observability.RuntimeMetrics, error) {
			return observability.NewRuntimeMetrics(providers.Meter, workerIndex)
		},
		EventLogPath: cfg.Runtime.EventLogPath,
	})
	if err != nil {
		return err
	}

	printReport(report)

	if cfg.Bench.ReportPath != "" {
		if err := report.Write(cfg.Bench.ReportPath); err != nil {
			return err
		}

		fmt.Printf("report written to %s\n", cfg.Bench.ReportPath)
	}

	return nil
}

func printReport(report *bench.Report) {
	header := color.New(color.FgCyan, color.Bold)
	header.Printf("offload bench: %s epochs x %s records, %d operators, %d workers\n",
		humanize.Comma(int64(report.Rounds)), humanize.Comma(int64(report.Data)),
		report.Operators, report.Workers)

	fmt.Printf("total time %v, %.1f epochs/sec\n",
		time.Duration(report.TotalNanos), report.EpochsPerSec)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"percentile", "epoch latency"})

	for _, quantile := range report.Quantiles {
		t.AppendRow(table.Row{
			fmt.Sprintf("p%g", quantile.Percentile),
			time.Duration(quantile.Nanos).String(),
		})
	}

	t.Render()
}
