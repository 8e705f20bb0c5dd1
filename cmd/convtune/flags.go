package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/problem"
)

var (
	logLevel   string
	logFormat  string
	debug      bool
	configFile string

	perfDbDir       string
	systemPerfDbDir string
	findEnforce     string
	search          bool
	fastOnly        bool
	disablePerfDb   bool
	iterations      int64
	workspaceBytes  int64
	heartbeat       time.Duration
	jsonOutput      bool

	prob problemFlags
)

// problemFlags holds the convolution descriptor as given on the command
// line. The single letters follow the usual conv driver conventions.
type problemFlags struct {
	N, C, H, W int64
	K, Y, X    int64

	PadH, PadW           int64
	StrideH, StrideW     int64
	DilationH, DilationW int64
	Groups               int64

	Bias      bool
	DataType  string
	Direction string
}

func (f problemFlags) toProblem() (problem.Problem, error) {
	p := problem.Problem{
		N: int(f.N), C: int(f.C), H: int(f.H), W: int(f.W),
		K: int(f.K), Y: int(f.Y), X: int(f.X),
		PadH: int(f.PadH), PadW: int(f.PadW),
		StrideH: int(f.StrideH), StrideW: int(f.StrideW),
		DilationH: int(f.DilationH), DilationW: int(f.DilationW),
		Groups: int(f.Groups),
		Bias:   f.Bias,
	}.WithDefaults()

	dt, err := problem.ParseDataType(f.DataType)
	if err != nil {
		return p, err
	}
	p.DataType = dt
	d, err := problem.ParseDirection(f.Direction)
	if err != nil {
		return p, err
	}
	p.Direction = d
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid problem %s: %w", p, err)
	}
	return p, nil
}

func problemFlagList() []cli.Flag {
	intFlag := func(name, alias, usage string, value int64, dst *int64) cli.Flag {
		return &cli.Int64Flag{
			Name:        name,
			Aliases:     []string{alias},
			Usage:       usage,
			Value:       value,
			Destination: dst,
		}
	}
	return []cli.Flag{
		intFlag("batch", "n", "mini-batch size", 1, &prob.N),
		intFlag("in-channels", "c", "input channels", 3, &prob.C),
		intFlag("in-h", "H", "input height", 32, &prob.H),
		intFlag("in-w", "W", "input width", 32, &prob.W),
		intFlag("out-channels", "k", "output channels", 32, &prob.K),
		intFlag("fil-h", "y", "filter height", 3, &prob.Y),
		intFlag("fil-w", "x", "filter width", 3, &prob.X),
		intFlag("pad-h", "p", "zero padding height", 0, &prob.PadH),
		intFlag("pad-w", "q", "zero padding width", 0, &prob.PadW),
		intFlag("stride-h", "u", "convolution stride height", 1, &prob.StrideH),
		intFlag("stride-w", "v", "convolution stride width", 1, &prob.StrideW),
		intFlag("dilation-h", "l", "dilation of filter height", 1, &prob.DilationH),
		intFlag("dilation-w", "j", "dilation of filter width", 1, &prob.DilationW),
		intFlag("groups", "g", "number of groups", 1, &prob.Groups),
		&cli.BoolFlag{
			Name:        "bias",
			Aliases:     []string{"b"},
			Usage:       "add a per-channel bias",
			Destination: &prob.Bias,
		},
		&cli.StringFlag{
			Name:        "direction",
			Aliases:     []string{"F"},
			Usage:       "fwd (1), bwd (2) or wrw (4)",
			Value:       "fwd",
			Destination: &prob.Direction,
		},
		&cli.StringFlag{
			Name:        "dtype",
			Usage:       "element type (fp32, fp16, bf16)",
			Value:       "fp32",
			Destination: &prob.DataType,
		},
	}
}

func perfDbFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "perfdb-dir",
			Usage:       "directory of the user perf-db (default: user config dir)",
			Sources:     cli.EnvVars("CONVTUNE_PERFDB_DIR"),
			Destination: &perfDbDir,
		},
		&cli.StringFlag{
			Name:        "system-perfdb-dir",
			Usage:       "directory of a read-only perf-db consulted after the user one",
			Sources:     cli.EnvVars("CONVTUNE_SYSTEM_PERFDB_DIR"),
			Destination: &systemPerfDbDir,
		},
	}
}

func tuningFlags() []cli.Flag {
	return append(perfDbFlags(),
		&cli.StringFlag{
			Name:        "find-enforce",
			Usage:       "perf-db override ACTION[:SCOPE], e.g. SEARCH_DB_UPDATE or DB_CLEAN:WRW",
			Sources:     cli.EnvVars("CONVTUNE_FIND_ENFORCE"),
			Destination: &findEnforce,
		},
		&cli.BoolFlag{
			Name:        "disable-perfdb",
			Usage:       "never read or write the perf-db",
			Destination: &disablePerfDb,
		},
		&cli.Int64Flag{
			Name:        "workspace",
			Usage:       "workspace limit in bytes (0: as much as the solvers ask for)",
			Destination: &workspaceBytes,
		},
		&cli.Int64Flag{
			Name:        "iterations",
			Aliases:     []string{"i"},
			Usage:       "timed runs per solution",
			Value:       3,
			Destination: &iterations,
		},
		&cli.DurationFlag{
			Name:        "heartbeat",
			Usage:       "search progress log interval",
			Value:       3 * time.Second,
			Destination: &heartbeat,
		},
	)
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:        "json",
		Usage:       "print JSON instead of a table",
		Destination: &jsonOutput,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "warn",
			Sources:     cli.EnvVars("CONVTUNE_LOG_LEVEL"),
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to the config file",
			Value:       configPath(),
			Sources:     cli.EnvVars("CONVTUNE_CONFIG"),
			Destination: &configFile,
		},
	}
}
