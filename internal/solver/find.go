package solver

import (
	"context"

	"github.com/pkg/errors"

	"github.com/samcharles93/convtune/internal/logger"
)

// SearchForSolution returns the Solution of the first solver, in order, that
// is applicable and succeeds. ok is false when none did. Solvers after the
// winner are not consulted.
func SearchForSolution(ctx context.Context, solvers []Registered, sctx *Context) (Solution, bool, error) {
	for _, r := range solvers {
		sol, ok, err := trySolver(ctx, r, sctx)
		if err != nil {
			return Solution{}, false, err
		}
		if ok {
			return sol, true, nil
		}
	}
	return Solution{}, false, nil
}

// SearchForAllSolutions collects successful Solutions in solver order, at
// most limit of them. limit <= 0 means no limit.
func SearchForAllSolutions(ctx context.Context, solvers []Registered, sctx *Context, limit int) ([]Solution, error) {
	var out []Solution
	for _, r := range solvers {
		if limit > 0 && len(out) >= limit {
			break
		}
		sol, ok, err := trySolver(ctx, r, sctx)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, sol)
		}
	}
	return out, nil
}

func trySolver(ctx context.Context, r Registered, sctx *Context) (Solution, bool, error) {
	log := logger.FromContext(ctx).With(logger.SolverKey, r.ID)
	if !r.Solver.IsApplicable(sctx) {
		log.Debug("not applicable")
		return Solution{}, false, nil
	}
	if sctx.FastOnly && !IsFast(r.Solver, sctx) {
		log.Debug("skipped, not fast")
		return Solution{}, false, nil
	}

	sol, err := GetSolution(ctx, r, sctx)
	if err != nil {
		log.Error("internal error in solver", "error", err)
		if errors.Is(err, ErrInternal) {
			return Solution{}, false, err
		}
		return Solution{}, false, internal(r.ID, err)
	}
	if !sol.Succeeded() {
		log.Info("applicable solver did not succeed", "status", sol.Status.String())
		return Solution{}, false, nil
	}
	if len(sol.ConstructionParams) == 0 {
		return Solution{}, false, internal(r.ID, errors.New("construction params are empty"))
	}
	log.Debug("success")
	return sol, true, nil
}

// WorkspaceSizeEntry is the scratch requirement of one applicable solver.
type WorkspaceSizeEntry struct {
	Solver string `json:"solver"`
	Bytes  int    `json:"bytes"`
}

// GetWorkspaceSizes lists the workspace needs of every applicable solver in
// order.
func GetWorkspaceSizes(ctx context.Context, solvers []Registered, sctx *Context) []WorkspaceSizeEntry {
	log := logger.FromContext(ctx)
	var out []WorkspaceSizeEntry
	for _, r := range solvers {
		if !r.Solver.IsApplicable(sctx) {
			log.Debug("not applicable", logger.SolverKey, r.ID)
			continue
		}
		out = append(out, WorkspaceSizeEntry{Solver: r.ID, Bytes: WorkspaceSize(r.Solver, sctx)})
	}
	return out
}
