package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/tuner"
)

func findCmd() *cli.Command {
	var request int64

	flags := append(problemFlagList(), tuningFlags()...)
	flags = append(flags,
		&cli.BoolFlag{
			Name:        "search",
			Aliases:     []string{"s"},
			Usage:       "run the exhaustive search for tunable solvers without a perf-db record",
			Destination: &search,
		},
		&cli.BoolFlag{
			Name:        "fast-only",
			Usage:       "skip solvers that report themselves as slow for the problem",
			Destination: &fastOnly,
		},
		&cli.Int64Flag{
			Name:        "request",
			Aliases:     []string{"r"},
			Usage:       "number of solutions to report (0: all)",
			Destination: &request,
		},
		jsonFlag(),
	)

	return &cli.Command{
		Name:   "find",
		Usage:  "Time every applicable solver for a convolution problem",
		Flags:  flags,
		Before: prepare,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			p, err := prob.toProblem()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			t, err := newTuner(nil)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("finding solutions", "problem", p.String(), "key", p.Key(), "device", t.Device().Name())

			results, err := t.Find(ctx, p, int(request))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if jsonOutput {
				return writeJSON(os.Stdout, results)
			}
			fmt.Printf("%s\n\n", p)
			fmt.Println(findTable(results).Render())
			return nil
		},
	}
}

func findTable(results []tuner.PerfResult) *resultTable {
	table := newResultTable(
		[]string{"#", "solver", "time", "workspace", "perf config", "kernels"},
		lipgloss.Right, lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Left, lipgloss.Left,
	)
	for i, r := range results {
		names := make([]string, len(r.Kernels))
		for j, k := range r.Kernels {
			names[j] = k.KernelName
		}
		cfg := r.PerfConfig
		if cfg == "" {
			cfg = "-"
		}
		table.Row(false,
			strconv.Itoa(i+1),
			r.Solver,
			formatDuration(r.Time),
			humanize.IBytes(uint64(r.WorkspaceSize)),
			cfg,
			strings.Join(names, ", "),
		)
	}
	return table
}
