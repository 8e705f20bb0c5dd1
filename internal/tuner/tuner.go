// Package tuner drives the solver engine for whole problems: it allocates
// buffers, asks every solver for a solution, times them and runs the
// exhaustive searches that fill the perf-db.
package tuner

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/perfconfig"
	"github.com/samcharles93/convtune/internal/perfdb"
	"github.com/samcharles93/convtune/internal/problem"
	"github.com/samcharles93/convtune/internal/solver"
)

const (
	DefaultIterations = 3
	DefaultSeed       = 1
)

// ErrPerfDbDisabled is returned by Tune when there is no perf db to store
// results in.
var ErrPerfDbDisabled = errors.New("tuner: tuning needs the perf db")

// Options configures a Tuner.
type Options struct {
	// Iterations is the number of timed runs per solution in Find; the
	// fastest one is reported.
	Iterations int
	// Workspace caps the scratch buffer in bytes. Zero sizes it to the
	// largest need of the applicable solvers.
	Workspace int
	// Search makes Find run the exhaustive search of tunable solvers.
	Search            bool
	DisablePerfDb     bool
	FastOnly          bool
	Enforce           solver.Enforce
	Seed              uint64
	HeartbeatInterval time.Duration
	// Observer receives GenericSearch progress, e.g. for a progress bar.
	Observer solver.SearchObserver
}

// PerfResult is one timed solution of Find.
type PerfResult struct {
	Solver        string              `json:"solver"`
	Time          time.Duration       `json:"time_ns"`
	WorkspaceSize int                 `json:"workspace_size"`
	PerfConfig    string              `json:"perf_config,omitempty"`
	Kernels       []solver.KernelInfo `json:"kernels"`
}

// TuneResult is the outcome of searching one tunable solver.
type TuneResult struct {
	Solver     string `json:"solver"`
	PerfConfig string `json:"perf_config"`
	// Report is nil when no search ran, e.g. because the search failed
	// before the first candidate.
	Report *solver.SearchReport `json:"report,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// Tuner runs jobs one at a time: the device handle carries the profiling
// state of the running measurement.
type Tuner struct {
	reg    *solver.Registry
	db     perfdb.Store
	opts   Options
	handle *device.Handle

	mu sync.Mutex
}

func New(reg *solver.Registry, db perfdb.Store, opts Options) *Tuner {
	if opts.Iterations <= 0 {
		opts.Iterations = DefaultIterations
	}
	if opts.Seed == 0 {
		opts.Seed = DefaultSeed
	}
	return &Tuner{
		reg:    reg,
		db:     db,
		opts:   opts,
		handle: device.NewHandle(device.Detect()),
	}
}

func (t *Tuner) Solvers() []solver.Registered { return t.reg.All() }

func (t *Tuner) PerfDb() perfdb.Store { return t.db }

func (t *Tuner) Device() device.Info { return t.handle.Info() }

// Workspace is the largest workspace any applicable solver needs for p,
// capped by Options.Workspace when set.
func (t *Tuner) Workspace(ctx context.Context, p problem.Problem) int {
	ws := 0
	for _, e := range solver.GetWorkspaceSizes(ctx, t.reg.All(), &solver.Context{Problem: p}) {
		ws = max(ws, e.Bytes)
	}
	if t.opts.Workspace > 0 {
		ws = min(ws, t.opts.Workspace)
	}
	return ws
}

func (t *Tuner) newContext(ctx context.Context, p problem.Problem) (*solver.Context, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	bufs, err := device.Alloc(p, t.Workspace(ctx, p))
	if err != nil {
		return nil, err
	}
	bufs.FillRandom(t.opts.Seed)
	return &solver.Context{
		Problem:           p,
		Handle:            t.handle,
		Buffers:           bufs,
		DoSearch:          t.opts.Search,
		DisablePerfDb:     t.opts.DisablePerfDb,
		FastOnly:          t.opts.FastOnly,
		PerfDb:            t.db,
		Enforce:           t.opts.Enforce,
		HeartbeatInterval: t.opts.HeartbeatInterval,
		Observer:          t.opts.Observer,
	}, nil
}

// Find returns the solutions of every applicable solver, fastest first, at
// most request of them (all when request <= 0). A solution that fails to run
// is logged and left out.
func (t *Tuner) Find(ctx context.Context, p problem.Problem, request int) ([]PerfResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	log := logger.FromContext(ctx)
	sctx, err := t.newContext(ctx, p)
	if err != nil {
		return nil, err
	}
	sols, err := solver.SearchForAllSolutions(ctx, t.reg.All(), sctx, 0)
	if err != nil {
		return nil, err
	}
	if len(sols) == 0 {
		return nil, errors.Errorf("no applicable solver for %s", sctx.Problem)
	}

	args := solver.ArgsFor(sctx.Problem.Direction, sctx.Buffers)
	results := make([]PerfResult, 0, len(sols))
	for _, sol := range sols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sol.WorkspaceSize > sctx.Buffers.WorkspaceBytes() {
			log.Warn("solution needs more workspace than allocated", logger.SolverKey, sol.Solver, "need", sol.WorkspaceSize)
			continue
		}
		elapsed, err := t.time(sol, args)
		if err != nil {
			log.Error("solution failed to run", logger.SolverKey, sol.Solver, "error", err)
			continue
		}
		log.Info("timed solution", logger.SolverKey, sol.Solver, "time", elapsed, "config", sol.PerfConfig)
		results = append(results, PerfResult{
			Solver:        sol.Solver,
			Time:          elapsed,
			WorkspaceSize: sol.WorkspaceSize,
			PerfConfig:    sol.PerfConfig,
			Kernels:       sol.ConstructionParams,
		})
	}

	slices.SortStableFunc(results, func(a, b PerfResult) int {
		return cmp.Compare(a.Time, b.Time)
	})
	if request > 0 && len(results) > request {
		results = results[:request]
	}
	return results, nil
}

// time runs sol Options.Iterations times and keeps the fastest run.
func (t *Tuner) time(sol solver.Solution, args solver.InvokeArgs) (time.Duration, error) {
	was := t.handle.Profiling()
	t.handle.EnableProfiling(true)
	defer t.handle.EnableProfiling(was)

	var best time.Duration
	for i := range t.opts.Iterations {
		elapsed, err := sol.Run(t.handle, args)
		if err != nil {
			return 0, err
		}
		if i == 0 || elapsed < best {
			best = elapsed
		}
	}
	return best, nil
}

// Tune searches every applicable tunable solver of p and stores the winners.
// Unless Options.Enforce says otherwise, existing records are ignored and
// overwritten.
func (t *Tuner) Tune(ctx context.Context, p problem.Problem) ([]TuneResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sctx, err := t.newContext(ctx, p)
	if err != nil {
		return nil, err
	}
	if t.db == nil || sctx.DisablePerfDb {
		return nil, errors.WithStack(ErrPerfDbDisabled)
	}
	sctx.DoSearch = true
	if sctx.Enforce.Action == solver.EnforceNone {
		sctx.Enforce = solver.Enforce{Action: solver.EnforceSearchDbUpdate}
	}
	rec := &reportRecorder{next: sctx.Observer, reports: map[string]solver.SearchReport{}}
	sctx.Observer = rec

	var results []TuneResult
	for _, r := range t.reg.All() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if _, ok := r.Solver.(solver.Searchable); !ok || !r.Solver.IsApplicable(sctx) {
			continue
		}
		res := TuneResult{Solver: r.ID}
		sol, err := solver.GetSolution(ctx, r, sctx)
		if err != nil {
			return results, err
		}
		res.PerfConfig = sol.PerfConfig
		if report, ok := rec.reports[r.ID]; ok {
			res.Report = &report
		}
		if err, ok := rec.errs[r.ID]; ok {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		return nil, errors.Errorf("no tunable solver applies to %s", sctx.Problem)
	}
	return results, nil
}

// reportRecorder keeps the final report of each search and forwards every
// event.
type reportRecorder struct {
	next    solver.SearchObserver
	reports map[string]solver.SearchReport
	errs    map[string]error
}

func (r *reportRecorder) SearchStarted(id string, total int, spare bool) {
	if r.next != nil {
		r.next.SearchStarted(id, total, spare)
	}
}

func (r *reportRecorder) CandidateMeasured(id string, index int, cfg perfconfig.Any, elapsed time.Duration, err error) {
	if r.next != nil {
		r.next.CandidateMeasured(id, index, cfg, elapsed, err)
	}
}

func (r *reportRecorder) SearchDone(id string, report solver.SearchReport, err error) {
	if err != nil {
		if r.errs == nil {
			r.errs = map[string]error{}
		}
		r.errs[id] = err
	} else {
		r.reports[id] = report
	}
	if r.next != nil {
		r.next.SearchDone(id, report, err)
	}
}
