package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/tuner"
)

func tuneCmd() *cli.Command {
	var quiet bool

	flags := append(problemFlagList(), tuningFlags()...)
	flags = append(flags,
		&cli.BoolFlag{
			Name:        "quiet",
			Usage:       "no progress bar",
			Destination: &quiet,
		},
		jsonFlag(),
	)

	return &cli.Command{
		Name:   "tune",
		Usage:  "Search the best performance config of every tunable solver and store it",
		Flags:  flags,
		Before: prepare,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			p, err := prob.toProblem()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			var progress *searchProgress
			if !quiet && !jsonOutput {
				progress = newSearchProgress(os.Stderr)
			}
			t, err := newTuner(observerOrNil(progress))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("tuning", "problem", p.String(), "key", p.Key(), "device", t.Device().Name())

			results, err := t.Tune(ctx, p)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if jsonOutput {
				return writeJSON(os.Stdout, results)
			}
			fmt.Printf("%s\n\n", p)
			fmt.Println(tuneTable(results).Render())
			return nil
		},
	}
}

func tuneTable(results []tuner.TuneResult) *resultTable {
	table := newResultTable(
		[]string{"solver", "perf config", "candidates", "failed", "best", "default", "score"},
		lipgloss.Left, lipgloss.Left, lipgloss.Right,
	)
	for _, r := range results {
		if r.Report == nil {
			msg := r.Error
			if msg == "" {
				msg = "no search"
			}
			table.Row(r.Error != "", r.Solver, r.PerfConfig, "-", "-", "-", "-", msg)
			continue
		}
		rep := r.Report
		score := "-"
		if rep.Score > 0 {
			score = fmt.Sprintf("%.3f", rep.Score)
		}
		table.Row(false,
			r.Solver,
			r.PerfConfig,
			fmt.Sprint(rep.Total),
			fmt.Sprint(rep.Failed),
			formatDuration(rep.Best),
			formatDuration(rep.Default),
			score,
		)
	}
	return table
}
