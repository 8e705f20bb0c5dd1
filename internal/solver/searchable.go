package solver

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/perfconfig"
	"github.com/samcharles93/convtune/internal/perfdb"
)

// GetSolution builds the Solution of an applicable solver. Searchable
// solvers go through the perf-db (see FindWithCache); builders are called
// directly.
func GetSolution(ctx context.Context, r Registered, sctx *Context) (Solution, error) {
	var (
		sol Solution
		err error
	)
	switch s := r.Solver.(type) {
	case Searchable:
		sol, err = FindWithCache(ctx, r.ID, s, sctx)
	case Builder:
		sol, err = s.GetSolution(sctx)
	default:
		return Solution{}, internal(r.ID, errors.New("solver is neither Builder nor Searchable"))
	}
	if err != nil {
		return Solution{}, err
	}
	if sol.Solver == "" {
		sol.Solver = r.ID
	}
	return sol, nil
}

// FindWithCache picks the configuration of a searchable solver:
//
//  1. perf-db disabled: heuristic default.
//  2. enforced clean: remove the record, then carry on.
//  3. lookup: a valid record wins; an invalid one is logged and ignored.
//  4. search when requested by the caller or enforced; the result is
//     written back. A failed search falls back to the default.
//  5. otherwise the heuristic default.
//
// Only internal errors are returned.
func FindWithCache(ctx context.Context, id string, s Searchable, sctx *Context) (Solution, error) {
	log := logger.FromContext(ctx).With(logger.SolverKey, id)
	ctx = WithSolverID(logger.WithContext(ctx, log), id)

	if sctx.DisablePerfDb || sctx.PerfDb == nil {
		log.Info("perf db access disabled")
		return buildWithConfig(id, s, sctx, s.GetPerformanceConfig(sctx))
	}

	db := sctx.PerfDb
	key := sctx.Problem.Key()
	policy := sctx.Enforce.Resolve(sctx.Problem, sctx.DoSearch)
	log.Info("selecting configuration", "problem", key, "enforce", sctx.Enforce.String())

	if policy.ForceClear {
		removed, err := db.Remove(id, key)
		switch {
		case err != nil:
			log.Warn("perf db: remove failed", "error", err)
		case removed:
			log.Warn("perf db: record removed", "enforce", sctx.Enforce.String())
		}
	}

	loaded := perfconfig.Empty()
	if policy.SkipLoad {
		log.Warn("perf db: load skipped", "enforce", sctx.Enforce.String())
	} else if cfg, ok := loadRecord(log, db, id, key, s); ok {
		if isValidPerformanceConfig(s, sctx, cfg) {
			log.Debug("perf db: record loaded", "config", cfg.String())
			return buildWithConfig(id, s, sctx, cfg)
		}
		log.Warn("perf db: invalid config loaded, performance may degrade", "config", cfg.String())
		loaded = cfg
	}

	if sctx.DoSearch || policy.ForceSearch {
		searchLog := log.With("search", uuid.NewString())
		searchLog.Info("starting search", "enforce", sctx.Enforce.String())
		cfg, err := s.Search(logger.WithContext(ctx, searchLog), sctx)
		if err == nil && cfg.IsEmpty() {
			err = errors.Wrap(perfconfig.ErrEmpty, "search returned no config")
		}
		if err != nil {
			searchLog.Error("search failed, using heuristic default", "error", err)
		} else {
			storeRecord(searchLog, db, id, key, cfg, loaded)
			return buildWithConfig(id, s, sctx, cfg)
		}
	}

	return buildWithConfig(id, s, sctx, s.GetPerformanceConfig(sctx))
}

// loadRecord reads and decodes a record. Read and decode failures are
// treated as misses.
func loadRecord(log logger.Logger, db perfdb.Store, id, key string, s Searchable) (perfconfig.Any, bool) {
	value, ok, err := db.Load(id, key)
	switch {
	case err != nil:
		log.Warn("perf db: load failed", "error", err)
		return perfconfig.Empty(), false
	case !ok:
		log.Info("perf db: record not found")
		return perfconfig.Empty(), false
	}
	cfg := s.AllocateConfig()
	if err := cfg.Deserialize(value); err != nil {
		log.Warn("perf db: unreadable record ignored", "value", value, "error", err)
		return perfconfig.Empty(), false
	}
	return cfg, true
}

// storeRecord writes cfg unless it equals the record already loaded.
// Serialized forms are compared so configs without Equal work too.
func storeRecord(log logger.Logger, db perfdb.Store, id, key string, cfg, loaded perfconfig.Any) {
	value, err := cfg.Serialize()
	if err != nil {
		log.Warn("perf db: cannot serialize config", "error", err)
		return
	}
	if prev, err := loaded.Serialize(); err == nil && prev == value {
		log.Debug("perf db: record unchanged")
		return
	}
	if err := db.Update(id, key, value); err != nil {
		log.Warn("perf db: update failed", "error", err)
		return
	}
	log.Info("perf db: record updated", "config", value)
}

func buildWithConfig(id string, s Searchable, sctx *Context, cfg perfconfig.Any) (Solution, error) {
	if cfg.IsEmpty() {
		return Solution{}, internal(id, errors.WithStack(perfconfig.ErrEmpty))
	}
	sol, err := s.GetSolutionWithConfig(sctx, cfg)
	if err != nil {
		return Solution{}, internal(id, err)
	}
	if sol.PerfConfig == "" {
		sol.PerfConfig = cfg.String()
	}
	sol.Solver = id
	return sol, nil
}
