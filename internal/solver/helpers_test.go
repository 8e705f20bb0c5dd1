package solver

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/perfconfig"
	"github.com/samcharles93/convtune/internal/perfdb"
	"github.com/samcharles93/convtune/internal/problem"
)

func testProblem() problem.Problem {
	return problem.Problem{N: 1, C: 4, H: 6, W: 6, K: 8, Y: 3, X: 3, PadH: 1, PadW: 1}.WithDefaults()
}

func newContext(t *testing.T, p problem.Problem, workspaceBytes int) *Context {
	t.Helper()
	bufs, err := device.Alloc(p, workspaceBytes)
	require.NoError(t, err)
	return &Context{
		Problem: p,
		Handle:  device.NewHandle(device.Info{}),
		Buffers: bufs,
		PerfDb:  perfdb.NewMemory(),
	}
}

func quietCtx() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

// capturedCtx logs JSON lines into the returned buffer.
func capturedCtx() (context.Context, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.WithContext(context.Background(), logger.JSON(&buf, slog.LevelDebug)), &buf
}

// trivialSolver applies to problems of width 1 and has nothing to tune.
type trivialSolver struct{}

func (trivialSolver) IsApplicable(sctx *Context) bool { return sctx.Problem.W == 1 }

func (trivialSolver) GetSolution(*Context) (Solution, error) {
	return Solution{ConstructionParams: []KernelInfo{{KernelFile: "TrivialTestSolver", CompOptions: " "}}}, nil
}

// strConfig is serializable but cannot be walked by generic search.
type strConfig struct{ Str string }

func (c *strConfig) Serialize() string          { return c.Str }
func (c *strConfig) Deserialize(s string) error { c.Str = s; return nil }
func (c *strConfig) Clone() perfconfig.Config   { cp := *c; return &cp }

// searchableSolver always applies. Its default is "NoSearch", its search
// result "Searched".
type searchableSolver struct {
	mu       sync.Mutex
	searches int
	reject   string
}

const (
	searchedKernel = "SearchableTestSolver"
	noSearchKernel = "SearchableTestSolver.NoSearch"
)

func (*searchableSolver) IsApplicable(*Context) bool { return true }

func (*searchableSolver) GetPerformanceConfig(*Context) perfconfig.Any {
	return perfconfig.Of(&strConfig{Str: noSearchKernel})
}

func (*searchableSolver) AllocateConfig() perfconfig.Any { return perfconfig.Of(&strConfig{}) }

func (s *searchableSolver) IsValidPerformanceConfig(_ *Context, cfg perfconfig.Any) bool {
	c, err := perfconfig.As[*strConfig](cfg)
	return err == nil && c.Str != s.reject
}

func (s *searchableSolver) Search(context.Context, *Context) (perfconfig.Any, error) {
	s.mu.Lock()
	s.searches++
	s.mu.Unlock()
	return perfconfig.Of(&strConfig{Str: searchedKernel}), nil
}

func (*searchableSolver) GetSolutionWithConfig(_ *Context, cfg perfconfig.Any) (Solution, error) {
	c, err := perfconfig.As[*strConfig](cfg)
	if err != nil {
		return Solution{}, err
	}
	return Solution{ConstructionParams: []KernelInfo{{KernelFile: c.Str, CompOptions: " "}}}, nil
}

func (s *searchableSolver) searchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches
}

// idxConfig walks Index over [0, mainSize) or, for the spare set,
// [spareBase, spareBase+spareSize).
type idxConfig struct {
	Index int
	spare bool
	valid func(int) bool
}

const (
	mainSize  = 8
	spareBase = 100
	spareSize = 3
)

func (c *idxConfig) bounds() (int, int) {
	if c.spare {
		return spareBase, spareBase + spareSize - 1
	}
	return 0, mainSize - 1
}

func (c *idxConfig) Serialize() string { return perfconfig.EncodeFields(c.Index) }

func (c *idxConfig) Deserialize(s string) error {
	v, err := perfconfig.DecodeFields(s, 1)
	if err != nil {
		return err
	}
	c.Index = v[0]
	return nil
}

func (c *idxConfig) Clone() perfconfig.Config { cp := *c; return &cp }

func (c *idxConfig) SetNextValue() bool {
	lo, hi := c.bounds()
	return !perfconfig.NextLinear(&c.Index, lo, hi)
}

func (c *idxConfig) IsValid(problem.Problem) bool {
	legal := perfconfig.IsLinear(c.Index, 0, mainSize-1) || perfconfig.IsLinear(c.Index, spareBase, spareBase+spareSize-1)
	return legal && (c.valid == nil || c.valid(c.Index))
}

func (c *idxConfig) Equal(other perfconfig.Config) bool {
	return c.Index == other.(*idxConfig).Index
}

// tunableSolver is a GenericSearchable whose measurements come from tables.
type tunableSolver struct {
	valid        func(int) bool
	defaultIndex int
	times        map[int]time.Duration
	// failOn[i] = n fails the n-th measurement (1-based) of index i; n = 0
	// fails all of them.
	failOn    map[int]int
	workspace map[int]int
	tweak     SearchTweak
	dir       problem.Direction

	mu       sync.Mutex
	measured []int
	perIndex map[int]int
	lastArgs InvokeArgs
}

func (s *tunableSolver) IsApplicable(*Context) bool { return true }

func (s *tunableSolver) GetWorkspaceSize(*Context) int { return s.workspace[s.defaultIndex] }

func (s *tunableSolver) config(index int, spare bool) perfconfig.Any {
	return perfconfig.Of(&idxConfig{Index: index, spare: spare, valid: s.valid})
}

func (s *tunableSolver) GetPerformanceConfig(*Context) perfconfig.Any {
	return s.config(s.defaultIndex, false)
}

func (s *tunableSolver) GetGenericSearchStart(spare bool) perfconfig.Any {
	if spare {
		return s.config(spareBase, true)
	}
	return s.config(0, false)
}

func (s *tunableSolver) AllocateConfig() perfconfig.Any { return s.config(0, false) }

func (s *tunableSolver) IsValidPerformanceConfig(sctx *Context, cfg perfconfig.Any) bool {
	ok, err := cfg.IsValid(sctx.Problem)
	return err == nil && ok
}

func (s *tunableSolver) GetSolutionWithConfig(_ *Context, cfg perfconfig.Any) (Solution, error) {
	c, err := perfconfig.As[*idxConfig](cfg)
	if err != nil {
		return Solution{}, err
	}
	return Solution{
		ConstructionParams: []KernelInfo{{KernelFile: "tunable", KernelName: strconv.Itoa(c.Index)}},
		WorkspaceSize:      s.workspace[c.Index],
		PerfConfig:         c.Serialize(),
	}, nil
}

func (s *tunableSolver) Search(ctx context.Context, sctx *Context) (perfconfig.Any, error) {
	switch s.dir {
	case problem.BackwardData:
		return GenericSearchBwd(ctx, s, sctx, s.tweak)
	case problem.BackwardWeights:
		return GenericSearchWrW(ctx, s, sctx, s.tweak)
	default:
		return GenericSearchFwd(ctx, s, sctx, s.tweak)
	}
}

var errMeasure = errors.New("kernel failed")

func (s *tunableSolver) RunAndMeasureSolution(_ *device.Handle, args InvokeArgs, _ *Context, sol Solution) (time.Duration, error) {
	idx, err := strconv.Atoi(sol.PerfConfig)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perIndex == nil {
		s.perIndex = map[int]int{}
	}
	s.perIndex[idx]++
	s.measured = append(s.measured, idx)
	s.lastArgs = args
	if n, ok := s.failOn[idx]; ok && (n == 0 || n == s.perIndex[idx]) {
		return 0, errMeasure
	}
	if t, ok := s.times[idx]; ok {
		return t, nil
	}
	return 50 * time.Millisecond, nil
}

func (s *tunableSolver) measurements() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.measured...)
}

// countingStore wraps a Store and counts calls.
type countingStore struct {
	perfdb.Store
	mu                      sync.Mutex
	loads, updates, removes int
	loadErr, updateErr      error
}

func (c *countingStore) Load(id, key string) (string, bool, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	if c.loadErr != nil {
		return "", false, c.loadErr
	}
	return c.Store.Load(id, key)
}

func (c *countingStore) Update(id, key, value string) error {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
	if c.updateErr != nil {
		return c.updateErr
	}
	return c.Store.Update(id, key, value)
}

func (c *countingStore) Remove(id, key string) (bool, error) {
	c.mu.Lock()
	c.removes++
	c.mu.Unlock()
	return c.Store.Remove(id, key)
}

// recordingObserver keeps every SearchObserver event.
type recordingObserver struct {
	started    int
	spare      bool
	total      int
	candidates []int
	failures   int
	report     SearchReport
	doneErr    error
}

func (o *recordingObserver) SearchStarted(_ string, total int, spare bool) {
	o.started++
	o.total, o.spare = total, spare
}

func (o *recordingObserver) CandidateMeasured(_ string, index int, _ perfconfig.Any, _ time.Duration, err error) {
	o.candidates = append(o.candidates, index)
	if err != nil {
		o.failures++
	}
}

func (o *recordingObserver) SearchDone(_ string, report SearchReport, err error) {
	o.report, o.doneErr = report, err
}
