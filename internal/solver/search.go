package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/perfconfig"
	"github.com/samcharles93/convtune/internal/problem"
)

const (
	// A first probe within this factor of the best time gets re-measured.
	smoothingThreshold = 1.05
	smoothingRepeats   = 4
)

// SearchTweak asks GenericSearch to run candidates on the workspace buffer
// instead of one of the regular buffers.
type SearchTweak int

const (
	TweakNone SearchTweak = iota
	// TweakWorkspaceInsteadOfXBuffer replaces the x/dx buffer: bot in
	// forward, top in backward data and backward weights.
	TweakWorkspaceInsteadOfXBuffer
	// TweakWorkspaceInsteadOfWeightsBuffer replaces the w/dw buffer.
	TweakWorkspaceInsteadOfWeightsBuffer
)

func (t SearchTweak) String() string {
	switch t {
	case TweakNone:
		return "none"
	case TweakWorkspaceInsteadOfXBuffer:
		return "workspace-for-x"
	case TweakWorkspaceInsteadOfWeightsBuffer:
		return "workspace-for-w"
	default:
		return fmt.Sprintf("SearchTweak(%d)", int(t))
	}
}

// SearchReport summarizes one GenericSearch run.
type SearchReport struct {
	Solver    string        `json:"solver"`
	Spare     bool          `json:"spare"`
	Total     int           `json:"total"`
	Failed    int           `json:"failed"`
	BestIndex int           `json:"best_index"`
	Best      time.Duration `json:"best_ns"`
	Config    string        `json:"config"`
	// Default is the re-measured time of the heuristic default, zero when
	// that measurement failed.
	Default time.Duration `json:"default_ns"`
	// Score is Default/Best, zero when unknown.
	Score float64 `json:"score"`
}

// SearchObserver receives progress of every GenericSearch run in a Context.
// Calls happen on the searching goroutine.
type SearchObserver interface {
	SearchStarted(solverID string, total int, spare bool)
	CandidateMeasured(solverID string, index int, cfg perfconfig.Any, elapsed time.Duration, err error)
	SearchDone(solverID string, report SearchReport, err error)
}

// GenericSearchFwd runs GenericSearch on the forward buffers of sctx.
func GenericSearchFwd(ctx context.Context, s GenericSearchable, sctx *Context, tweak SearchTweak) (perfconfig.Any, error) {
	return genericSearchDir(ctx, s, sctx, problem.Forward, tweak)
}

// GenericSearchBwd runs GenericSearch on the backward-data buffers of sctx.
func GenericSearchBwd(ctx context.Context, s GenericSearchable, sctx *Context, tweak SearchTweak) (perfconfig.Any, error) {
	return genericSearchDir(ctx, s, sctx, problem.BackwardData, tweak)
}

// GenericSearchWrW runs GenericSearch on the backward-weights buffers of sctx.
func GenericSearchWrW(ctx context.Context, s GenericSearchable, sctx *Context, tweak SearchTweak) (perfconfig.Any, error) {
	return genericSearchDir(ctx, s, sctx, problem.BackwardWeights, tweak)
}

func genericSearchDir(ctx context.Context, s GenericSearchable, sctx *Context, dir problem.Direction, tweak SearchTweak) (perfconfig.Any, error) {
	// Missing buffers are reported by GenericSearch.
	var top, bot, wei []float32
	if sctx.Buffers != nil {
		top, bot, wei = RoleBuffers(dir, sctx.Buffers)
	}
	return GenericSearch(ctx, s, sctx, dir, tweak, top, bot, wei)
}

// GenericSearch measures every configuration of the main enumeration of s
// (or the spare one when main is empty) and returns the fastest.
//
// A first probe that is not more than 5% slower than the best so far is
// re-measured four more times and scored by the mean; anything slower is
// dropped after one run. Only a strictly faster score replaces the best, so
// ties go to the earlier candidate. Failed candidates are counted and
// skipped. ErrSearchFailed is returned when no candidate succeeded.
//
// The observer sees SearchDone for every run, including one that fails
// before the first candidate.
func GenericSearch(ctx context.Context, s GenericSearchable, sctx *Context, dir problem.Direction, tweak SearchTweak, top, bot, wei []float32) (_ perfconfig.Any, err error) {
	id := SolverIDFromContext(ctx)
	if id == "" {
		id = typeID(s)
	}
	log := logger.FromContext(ctx)
	p := sctx.Problem

	obs := sctx.Observer
	started := false
	defer func() {
		if err != nil && !started && obs != nil {
			obs.SearchDone(id, SearchReport{Solver: id}, err)
		}
	}()

	defaultCfg := s.GetPerformanceConfig(sctx)
	defaultSol, err := s.GetSolutionWithConfig(sctx, defaultCfg)
	if err != nil {
		return perfconfig.Empty(), internal(id, errors.Wrap(err, "build default solution"))
	}

	var bias, workspace []float32
	if sctx.Buffers != nil {
		bias, workspace = sctx.Buffers.Bias, sctx.Buffers.Workspace
	}
	if p.Bias && bias == nil {
		return perfconfig.Empty(), errors.Wrap(ErrNilBuffer, "problem has bias but bias buffer is nil")
	}
	if top == nil || bot == nil || wei == nil {
		return perfconfig.Empty(), errors.Wrap(ErrNilBuffer, "top, bot and wei must all be set")
	}
	if sctx.Handle == nil {
		return perfconfig.Empty(), internal(id, errors.New("no device handle"))
	}

	switch tweak {
	case TweakNone:
	case TweakWorkspaceInsteadOfXBuffer, TweakWorkspaceInsteadOfWeightsBuffer:
		have := len(workspace) * device.Float32Bytes
		if workspace == nil || have < defaultSol.WorkspaceSize {
			return perfconfig.Empty(), errors.Wrapf(ErrWorkspaceTooSmall, "have %s, default solution needs %s",
				humanize.IBytes(uint64(have)), humanize.IBytes(uint64(defaultSol.WorkspaceSize)))
		}
		switch {
		case tweak == TweakWorkspaceInsteadOfWeightsBuffer:
			wei = workspace
		case dir == problem.Forward:
			bot = workspace
		default:
			top = workspace
		}
	default:
		return perfconfig.Empty(), internal(id, errors.Errorf("unsupported search tweak %d", int(tweak)))
	}

	main, err := NewSpace(s, p, false)
	if err != nil {
		return perfconfig.Empty(), internal(id, err)
	}
	space, total := main, main.Count()
	if total == 0 {
		spare, err := NewSpace(s, p, true)
		if err != nil {
			return perfconfig.Empty(), internal(id, err)
		}
		space, total = spare, spare.Count()
	}

	log.Warn("searching the best solution", "candidates", humanize.Comma(int64(total)), "spare", space.Spare(), "tweak", tweak)
	started = true
	if obs != nil {
		obs.SearchStarted(id, total, space.Spare())
	}

	h := sctx.Handle
	wasProfiling := h.Profiling()
	h.EnableProfiling(true)
	defer h.EnableProfiling(wasProfiling)

	args := InvokeArgs{Bot: bot, Top: top, Wei: wei, Bias: bias, Workspace: workspace}
	measure := func(sol Solution) (time.Duration, error) {
		return s.RunAndMeasureSolution(h, args, sctx, sol)
	}

	var (
		best     = time.Duration(math.MaxInt64)
		bestCfg  = perfconfig.Empty()
		passed   bool
		nFailed  int
		nCurrent int
		nBest    int
	)
	hb := newHeartbeat(log, sctx.HeartbeatInterval, nil)
	hb.Start(defaultCfg)

	for cfg := range space.All() {
		log.Debug("measuring candidate", "index", nCurrent, "failed", nFailed, "total", total, "config", cfg.String())

		sol, elapsed, err := measureCandidate(s, sctx, cfg, tweak, defaultSol, measure)
		if err == nil && float64(elapsed) < smoothingThreshold*float64(best) {
			log.Debug("finding average", "elapsed", elapsed, "best", durationOrNone(best))
			elapsed, err = smooth(sol, elapsed, measure)
			if err == nil {
				passed = true
				if elapsed < best {
					log.Info("new best", "index", nCurrent, "elapsed", elapsed, "previous", durationOrNone(best), "config", cfg.String())
					best, bestCfg, nBest = elapsed, cfg, nCurrent
				} else {
					log.Debug("average is not better", "elapsed", elapsed, "best", best)
				}
			}
		}
		if err != nil {
			log.Error("candidate failed", "index", nCurrent, "total", total, "config", cfg.String(), "error", err)
			nFailed++
		}
		hb.Monitor(err != nil, elapsed, nCurrent, best, nFailed, total, cfg)
		if obs != nil {
			obs.CandidateMeasured(id, nCurrent, cfg, elapsed, err)
		}
		nCurrent++
	}

	report := SearchReport{
		Solver:    id,
		Spare:     space.Spare(),
		Total:     total,
		Failed:    nFailed,
		BestIndex: nBest,
		Config:    bestCfg.String(),
	}
	log.Warn("search done", "total", total, "failed", nFailed, "best_index", nBest, "best", durationOrNone(best), "config", bestCfg.String())
	if !passed {
		err := errors.Wrapf(ErrSearchFailed, "%s: %d of %d candidates failed", id, nFailed, total)
		if obs != nil {
			obs.SearchDone(id, report, err)
		}
		return perfconfig.Empty(), err
	}
	report.Best = best

	defaultTime, err := measure(defaultSol)
	if err == nil {
		report.Default = defaultTime
		if best > 0 {
			report.Score = float64(defaultTime) / float64(best)
		}
		log.Warn("search score", "score", fmt.Sprintf("%.3f", report.Score), "default", defaultTime, "best", best)
	} else {
		log.Warn("default config failed to run, no score", "error", err)
	}
	if obs != nil {
		obs.SearchDone(id, report, nil)
	}
	return bestCfg, nil
}

// measureCandidate builds the solution for cfg and takes the first probe.
func measureCandidate(s GenericSearchable, sctx *Context, cfg perfconfig.Any, tweak SearchTweak, defaultSol Solution, measure func(Solution) (time.Duration, error)) (Solution, time.Duration, error) {
	sol, err := s.GetSolutionWithConfig(sctx, cfg)
	if err != nil {
		return sol, 0, err
	}
	if tweak != TweakNone && sol.WorkspaceSize != defaultSol.WorkspaceSize {
		return sol, 0, errors.Wrapf(ErrWorkspaceMismatch, "%d != %d", defaultSol.WorkspaceSize, sol.WorkspaceSize)
	}
	elapsed, err := measure(sol)
	return sol, elapsed, err
}

// smooth re-measures a promising candidate and returns the mean of all runs.
// Any failed run fails the candidate.
func smooth(sol Solution, first time.Duration, measure func(Solution) (time.Duration, error)) (time.Duration, error) {
	sum := first
	for range smoothingRepeats {
		t, err := measure(sol)
		if err != nil {
			return first, err
		}
		sum += t
	}
	return sum / (smoothingRepeats + 1), nil
}
