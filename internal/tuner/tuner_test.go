package tuner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/perfconfig"
	"github.com/samcharles93/convtune/internal/perfdb"
	"github.com/samcharles93/convtune/internal/problem"
	"github.com/samcharles93/convtune/internal/solver"
	"github.com/samcharles93/convtune/internal/solvers"
)

func quiet() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func conv3x3() problem.Problem {
	return problem.Problem{N: 1, C: 4, H: 8, W: 8, K: 8, Y: 3, X: 3, PadH: 1, PadW: 1}.WithDefaults()
}

func pointwise() problem.Problem {
	return problem.Problem{N: 1, C: 8, H: 8, W: 8, K: 16, Y: 1, X: 1}.WithDefaults()
}

func TestWorkspace(t *testing.T) {
	t.Parallel()

	tu := New(solvers.NewRegistry(), perfdb.NewMemory(), Options{})
	require.Equal(t, 4*9*64*4, tu.Workspace(quiet(), conv3x3()))
	require.Zero(t, tu.Workspace(quiet(), func() problem.Problem {
		p := conv3x3()
		p.Groups = 2
		return p
	}()))

	capped := New(solvers.NewRegistry(), perfdb.NewMemory(), Options{Workspace: 100})
	require.Equal(t, 100, capped.Workspace(quiet(), conv3x3()))
}

func TestFindSortsAndTruncates(t *testing.T) {
	t.Parallel()

	tu := New(solvers.NewRegistry(), perfdb.NewMemory(), Options{Iterations: 2})
	all, err := tu.Find(quiet(), pointwise(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	seen := map[string]bool{}
	for i, r := range all {
		seen[r.Solver] = true
		require.Positive(t, r.Time)
		require.NotEmpty(t, r.Kernels)
		if i > 0 {
			require.LessOrEqual(t, all[i-1].Time, r.Time)
		}
	}
	require.True(t, seen["ConvGemm1x1"])
	require.True(t, seen["ConvIm2ColGemm"])
	require.True(t, seen["ConvDirectNaive"])

	one, err := tu.Find(quiet(), pointwise(), 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
}

func TestFindSkipsSolutionsWithoutWorkspace(t *testing.T) {
	t.Parallel()

	tu := New(solvers.NewRegistry(), perfdb.NewMemory(), Options{Workspace: 16})
	res, err := tu.Find(quiet(), conv3x3(), 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "ConvDirectNaive", res[0].Solver)
}

func TestFindRejectsInvalidProblem(t *testing.T) {
	t.Parallel()

	tu := New(solvers.NewRegistry(), perfdb.NewMemory(), Options{})
	p := conv3x3()
	p.N = 0
	_, err := tu.Find(quiet(), p, 0)
	require.ErrorIs(t, err, problem.ErrInvalidProblem)
}

func TestFindHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(quiet())
	cancel()
	tu := New(solvers.NewRegistry(), perfdb.NewMemory(), Options{})
	_, err := tu.Find(ctx, conv3x3(), 0)
	require.ErrorIs(t, err, context.Canceled)
}

type countingObserver struct {
	started, candidates, done int
}

func (o *countingObserver) SearchStarted(string, int, bool) { o.started++ }
func (o *countingObserver) CandidateMeasured(string, int, perfconfig.Any, time.Duration, error) {
	o.candidates++
}
func (o *countingObserver) SearchDone(string, solver.SearchReport, error) { o.done++ }

func TestTuneStoresRecords(t *testing.T) {
	t.Parallel()

	db := perfdb.NewMemory()
	obs := &countingObserver{}
	tu := New(solvers.NewRegistry(), db, Options{Observer: obs})

	p := pointwise()
	res, err := tu.Tune(quiet(), p)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, "ConvGemm1x1", res[0].Solver)
	require.Equal(t, "ConvIm2ColGemm", res[1].Solver)
	for _, r := range res {
		require.Empty(t, r.Error)
		require.NotNil(t, r.Report, r.Solver)
		require.Equal(t, r.PerfConfig, r.Report.Config)
		value, ok, err := db.Load(r.Solver, p.Key())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, r.PerfConfig, value)
	}
	require.Equal(t, 2, obs.started)
	require.Equal(t, 2, obs.done)
	require.Positive(t, obs.candidates)

	// Records are used by a plain Find afterwards.
	found, err := tu.Find(quiet(), p, 0)
	require.NoError(t, err)
	for _, r := range found {
		if r.Solver == "ConvGemm1x1" {
			require.Equal(t, res[0].PerfConfig, r.PerfConfig)
		}
	}
}

func TestTuneNeedsTunableSolver(t *testing.T) {
	t.Parallel()

	tu := New(solvers.NewRegistry(), perfdb.NewMemory(), Options{})
	p := conv3x3()
	p.DataType = problem.BF16
	_, err := tu.Tune(quiet(), p)
	require.Error(t, err)

	off := New(solvers.NewRegistry(), perfdb.NewMemory(), Options{DisablePerfDb: true})
	_, err = off.Tune(quiet(), conv3x3())
	require.ErrorIs(t, err, ErrPerfDbDisabled)
}

func TestTuneWithoutStoreFails(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	tu := New(solvers.NewRegistry(), nil, Options{Observer: obs})
	res, err := tu.Tune(quiet(), pointwise())
	require.ErrorIs(t, err, ErrPerfDbDisabled)
	require.Nil(t, res)
	require.Zero(t, obs.started)

	// Find still works from heuristic defaults.
	found, err := tu.Find(quiet(), pointwise(), 0)
	require.NoError(t, err)
	require.Len(t, found, 3)
}

// workspaceGemm searches with a workspace tweak although it declares no
// workspace, so every search fails before the first candidate.
type workspaceGemm struct {
	solvers.ConvGemm1x1
}

func (s *workspaceGemm) Search(ctx context.Context, sctx *solver.Context) (perfconfig.Any, error) {
	return solver.GenericSearchFwd(ctx, s, sctx, solver.TweakWorkspaceInsteadOfXBuffer)
}

func TestTuneReportsSearchThatNeverStarted(t *testing.T) {
	t.Parallel()

	reg := solver.NewRegistry()
	_, err := reg.Add(&workspaceGemm{})
	require.NoError(t, err)
	db := perfdb.NewMemory()
	obs := &countingObserver{}
	tu := New(reg, db, Options{Observer: obs})

	p := pointwise()
	res, err := tu.Tune(quiet(), p)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "workspaceGemm", res[0].Solver)
	require.Nil(t, res[0].Report)
	require.Contains(t, res[0].Error, "workspace too small")
	require.NotEmpty(t, res[0].PerfConfig, "falls back to the heuristic default")
	require.Zero(t, obs.started)
	require.Equal(t, 1, obs.done)

	_, ok, err := db.Load("workspaceGemm", p.Key())
	require.NoError(t, err)
	require.False(t, ok)
}
