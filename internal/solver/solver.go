// Package solver is the solver-selection and auto-tuning engine: capability
// interfaces for convolution solvers, the search-space enumerator, the
// measurement-driven generic search, cache-aware selection and multi-solver
// dispatch.
package solver

import (
	"context"
	"time"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/perfconfig"
	"github.com/samcharles93/convtune/internal/perfdb"
	"github.com/samcharles93/convtune/internal/problem"
)

// Context is everything a solver may look at for one request. The engine
// never modifies it; solvers must not either.
type Context struct {
	Problem problem.Problem

	// Device resources. Only GenericSearch touches them.
	Handle  *device.Handle
	Buffers *device.Buffers

	// DoSearch asks cache-aware selection to search on a perf-db miss.
	DoSearch bool
	// DisablePerfDb skips the perf-db entirely and uses heuristic defaults.
	DisablePerfDb bool
	// FastOnly drops applicable solvers whose IsFast heuristic says no.
	FastOnly bool

	PerfDb  perfdb.Store
	Enforce Enforce

	// HeartbeatInterval overrides DefaultHeartbeatInterval when positive.
	HeartbeatInterval time.Duration
	Observer          SearchObserver
}

// Solver is the minimal capability: an applicability check that must be a
// pure function of the problem. A solver returning true must be able to
// produce a Solution for some valid configuration.
type Solver interface {
	IsApplicable(sctx *Context) bool
}

// FastChecker lets a solver opt out of non-exhaustive dispatch.
type FastChecker interface {
	IsFast(sctx *Context) bool
}

// WorkspaceSizer reports scratch memory in bytes.
type WorkspaceSizer interface {
	GetWorkspaceSize(sctx *Context) int
}

// Builder is implemented by solvers without tunable parameters.
type Builder interface {
	Solver
	GetSolution(sctx *Context) (Solution, error)
}

// Searchable is implemented by tunable solvers.
type Searchable interface {
	Solver
	// GetPerformanceConfig is the heuristic default. It must be fast,
	// deterministic and valid for the problem.
	GetPerformanceConfig(sctx *Context) perfconfig.Any
	GetSolutionWithConfig(sctx *Context, cfg perfconfig.Any) (Solution, error)
	// AllocateConfig returns a blank config to deserialize perf-db values.
	AllocateConfig() perfconfig.Any
	Search(ctx context.Context, sctx *Context) (perfconfig.Any, error)
}

// ConfigValidator validates configs loaded from the perf-db.
type ConfigValidator interface {
	IsValidPerformanceConfig(sctx *Context, cfg perfconfig.Any) bool
}

// GenericSearchable solvers can be tuned by GenericSearch.
type GenericSearchable interface {
	Searchable
	// GetGenericSearchStart returns the first point of the main or spare
	// enumeration.
	GetGenericSearchStart(spare bool) perfconfig.Any
	// RunAndMeasureSolution runs sol once and returns its elapsed time. Any
	// error fails this measurement only.
	RunAndMeasureSolution(h *device.Handle, args InvokeArgs, sctx *Context, sol Solution) (time.Duration, error)
}

// IsFast applies the FastChecker default of true.
func IsFast(s Solver, sctx *Context) bool {
	if fc, ok := s.(FastChecker); ok {
		return fc.IsFast(sctx)
	}
	return true
}

// WorkspaceSize applies the WorkspaceSizer default of 0.
func WorkspaceSize(s Solver, sctx *Context) int {
	if ws, ok := s.(WorkspaceSizer); ok {
		return ws.GetWorkspaceSize(sctx)
	}
	return 0
}

func isValidPerformanceConfig(s Searchable, sctx *Context, cfg perfconfig.Any) bool {
	if v, ok := s.(ConfigValidator); ok {
		return v.IsValidPerformanceConfig(sctx, cfg)
	}
	return true
}

type solverIDKey struct{}

// WithSolverID records the identity of the solver being served so that
// GenericSearch can report it without recomputing it.
func WithSolverID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, solverIDKey{}, id)
}

// SolverIDFromContext returns the identity set by WithSolverID, or "".
func SolverIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(solverIDKey{}).(string)
	return id
}
