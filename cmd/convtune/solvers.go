package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/solver"
	"github.com/samcharles93/convtune/internal/solvers"
)

// solverRow is the JSON form of one registry entry.
type solverRow struct {
	ID         string `json:"id"`
	Tunable    bool   `json:"tunable"`
	Applicable *bool  `json:"applicable,omitempty"`
	Fast       *bool  `json:"fast,omitempty"`
	Workspace  *int   `json:"workspace,omitempty"`
}

func solversCmd() *cli.Command {
	var forProblem bool

	flags := append(problemFlagList(),
		&cli.BoolFlag{
			Name:        "problem",
			Usage:       "also report applicability, speed class and workspace for the problem flags",
			Destination: &forProblem,
		},
		jsonFlag(),
	)

	return &cli.Command{
		Name:   "solvers",
		Usage:  "List the registered solvers in dispatch order",
		Flags:  flags,
		Before: prepare,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			reg := solvers.NewRegistry()
			var sctx *solver.Context
			if forProblem {
				p, err := prob.toProblem()
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				sctx = &solver.Context{Problem: p}
			}
			rows := describeSolvers(reg.All(), sctx)
			if jsonOutput {
				return writeJSON(os.Stdout, rows)
			}
			if sctx != nil {
				fmt.Printf("%s\n\n", sctx.Problem)
			}
			fmt.Println(solversTable(rows).Render())
			return nil
		},
	}
}

func describeSolvers(all []solver.Registered, sctx *solver.Context) []solverRow {
	rows := make([]solverRow, 0, len(all))
	for _, r := range all {
		_, tunable := r.Solver.(solver.Searchable)
		row := solverRow{ID: r.ID, Tunable: tunable}
		if sctx != nil {
			applicable := r.Solver.IsApplicable(sctx)
			row.Applicable = &applicable
			if applicable {
				if fc, ok := r.Solver.(solver.FastChecker); ok {
					fast := fc.IsFast(sctx)
					row.Fast = &fast
				}
				ws := 0
				if sz, ok := r.Solver.(solver.WorkspaceSizer); ok {
					ws = sz.GetWorkspaceSize(sctx)
				}
				row.Workspace = &ws
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func solversTable(rows []solverRow) *resultTable {
	headers := []string{"#", "solver", "tunable"}
	withProblem := len(rows) > 0 && rows[0].Applicable != nil
	if withProblem {
		headers = append(headers, "applicable", "fast", "workspace")
	}
	table := newResultTable(headers, lipgloss.Right, lipgloss.Left, lipgloss.Center)
	for i, r := range rows {
		cells := []string{strconv.Itoa(i + 1), r.ID, yesNo(&r.Tunable)}
		if withProblem {
			ws := "-"
			if r.Workspace != nil {
				ws = humanize.IBytes(uint64(*r.Workspace))
			}
			cells = append(cells, yesNo(r.Applicable), yesNo(r.Fast), ws)
		}
		table.Row(false, cells...)
	}
	return table
}

func yesNo(b *bool) string {
	switch {
	case b == nil:
		return "-"
	case *b:
		return "yes"
	default:
		return "no"
	}
}
