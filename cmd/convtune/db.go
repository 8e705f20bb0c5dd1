package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/perfdb"
	"github.com/samcharles93/convtune/internal/problem"
	"github.com/samcharles93/convtune/internal/solver"
	"github.com/samcharles93/convtune/internal/solvers"
)

// Record states reported by "db show".
const (
	recordValid     = "valid"
	recordInvalid   = "invalid for problem"
	recordMalformed = "malformed"
	recordUnknown   = "unknown solver"
	recordBadKey    = "bad key"
)

// recordRow is a perf-db record with its decoded state.
type recordRow struct {
	perfdb.Record
	Status string `json:"status"`
}

func dbCmd() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Inspect and edit the perf-db of this host",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowSubcommandHelp(cmd)
		},
		Commands: []*cli.Command{
			dbListCmd(),
			dbShowCmd(),
			dbRemoveCmd(),
		},
	}
}

func dbListCmd() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List every stored record",
		Flags:   append(perfDbFlags(), jsonFlag()),
		Before:  prepare,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, err := openStore(device.Detect())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			records, err := store.List()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			rows := checkRecords(solvers.NewRegistry(), records)
			if jsonOutput {
				return writeJSON(os.Stdout, rows)
			}
			if len(rows) == 0 {
				logger.FromContext(ctx).Info("perf db is empty", "path", storePath(store))
				return nil
			}
			fmt.Printf("Records in %s:\n\n", storePath(store))
			fmt.Println(recordTable(rows).Render())
			return nil
		},
	}
}

func dbShowCmd() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show the records of one problem",
		ArgsUsage: "[KEY]",
		Flags:     append(append(problemFlagList(), perfDbFlags()...), jsonFlag()),
		Before:    prepare,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p, err := problemFromKeyOrFlags(cmd.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			store, err := openStore(device.Detect())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			records, err := store.List()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			key := p.Key()
			var matching []perfdb.Record
			for _, r := range records {
				if r.Key == key {
					matching = append(matching, r)
				}
			}
			rows := checkRecords(solvers.NewRegistry(), matching)
			if jsonOutput {
				return writeJSON(os.Stdout, rows)
			}
			fmt.Printf("%s\n%s\n\n", p, key)
			if len(rows) == 0 {
				fmt.Println("no records")
				return nil
			}
			fmt.Println(recordTable(rows).Render())
			return nil
		},
	}
}

func dbRemoveCmd() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Remove the records of one problem, optionally only for one solver",
		ArgsUsage: "KEY [SOLVER]",
		Flags:     perfDbFlags(),
		Before:    prepare,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			key := cmd.Args().Get(0)
			if key == "" {
				return cli.Exit("error: a problem key is required", 1)
			}
			if _, err := problem.ParseKey(key); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			store, err := openStore(device.Detect())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			ids := []string{cmd.Args().Get(1)}
			if ids[0] == "" {
				ids = ids[:0]
				for _, r := range solvers.NewRegistry().All() {
					ids = append(ids, r.ID)
				}
			}
			removed := 0
			for _, id := range ids {
				ok, err := store.Remove(id, key)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				if ok {
					log.Info("removed record", logger.SolverKey, id, "key", key)
					removed++
				}
			}
			fmt.Printf("%d record(s) removed\n", removed)
			return nil
		},
	}
}

// problemFromKeyOrFlags resolves the problem of a db command: an explicit
// key argument wins over the problem flags.
func problemFromKeyOrFlags(key string) (problem.Problem, error) {
	if key = strings.TrimSpace(key); key != "" {
		return problem.ParseKey(key)
	}
	return prob.toProblem()
}

// checkRecords decodes every record with the config type of its solver and
// validates it against the problem its key describes.
func checkRecords(reg *solver.Registry, records []perfdb.Record) []recordRow {
	rows := make([]recordRow, len(records))
	for i, rec := range records {
		rows[i] = recordRow{Record: rec, Status: recordStatus(reg, rec)}
	}
	return rows
}

func recordStatus(reg *solver.Registry, rec perfdb.Record) string {
	r, ok := reg.Lookup(rec.Solver)
	if !ok {
		return recordUnknown
	}
	s, ok := r.Solver.(solver.Searchable)
	if !ok {
		return recordUnknown
	}
	p, err := problem.ParseKey(rec.Key)
	if err != nil {
		return recordBadKey
	}
	cfg := s.AllocateConfig()
	if err := cfg.Deserialize(rec.Value); err != nil {
		return recordMalformed
	}
	sctx := &solver.Context{Problem: p}
	if v, ok := s.(solver.ConfigValidator); ok {
		if !v.IsValidPerformanceConfig(sctx, cfg) {
			return recordInvalid
		}
		return recordValid
	}
	if valid, err := cfg.IsValid(p); err == nil && !valid {
		return recordInvalid
	}
	return recordValid
}

func recordTable(rows []recordRow) *resultTable {
	table := newResultTable([]string{"key", "solver", "value", "status"}, lipgloss.Left)
	for _, r := range rows {
		table.Row(r.Status != recordValid, r.Key, r.Solver, r.Value, r.Status)
	}
	return table
}

func storePath(store *perfdb.Layered) string {
	if f, ok := store.User.(*perfdb.File); ok {
		return f.Path()
	}
	return "perf db"
}
