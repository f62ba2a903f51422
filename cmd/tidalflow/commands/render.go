package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/tidalflow/internal/bench"
)

// cmdContext is the context commands run under.
func cmdContext() context.Context { return context.Background() }

// NewRenderCommand builds the render subcommand: a benchmark report in, an
// HTML latency chart out.
func NewRenderCommand() *cobra.Command {
	var (
		inputPath  string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a benchmark report as an HTML latency chart",
		RunE: func(_ *cobra.Command, _ []string) error {
			report, err := bench.ReadReport(inputPath)
			if err != nil {
				return err
			}

			return renderReport(report, outputPath)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "bench.json", "benchmark report to render")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "bench.html", "HTML file to write")

	return cmd
}

func renderReport(report *bench.Report, outputPath string) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: "epoch latency",
			Subtitle: fmt.Sprintf("%d epochs x %d records, %d operators",
				report.Rounds, report.Data, report.Operators),
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "nanos"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "epoch"}),
	)

	epochs := make([]int, len(report.LatenciesNanos))
	points := make([]opts.LineData, len(report.LatenciesNanos))

	for i, latency := range report.LatenciesNanos {
		epochs[i] = i
		points[i] = opts.LineData{Value: latency}
	}

	line.SetXAxis(epochs).AddSeries("latency", points)

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("render: create %s: %w", outputPath, err)
	}
	defer out.Close()

	if err := line.Render(out); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	return nil
}
