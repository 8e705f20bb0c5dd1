package solvers

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/kernels"
	"github.com/samcharles93/convtune/internal/perfconfig"
	"github.com/samcharles93/convtune/internal/problem"
	"github.com/samcharles93/convtune/internal/solver"
)

// Ranges of the pointwise blocking. The spare set covers problems too small
// for any main-set tile.
const (
	pwBlockKMin, pwBlockKMax           = 4, 32
	pwBlockHWMin, pwBlockHWMax         = 64, 512
	pwSpareBlockKMin, pwSpareBlockKMax = 1, 2
	pwSpareHWMin, pwSpareHWMax         = 1, 32
)

var pwUnrollC = []int{1, 2, 4}

// Gemm1x1Config blocks the pointwise forward kernel.
type Gemm1x1Config struct {
	BlockK  int
	BlockHW int
	UnrollC int

	spare bool
}

func (c *Gemm1x1Config) Serialize() string {
	return perfconfig.EncodeFields(c.BlockK, c.BlockHW, c.UnrollC)
}

func (c *Gemm1x1Config) Deserialize(s string) error {
	v, err := perfconfig.DecodeFields(s, 3)
	if err != nil {
		return err
	}
	c.BlockK, c.BlockHW, c.UnrollC = v[0], v[1], v[2]
	return nil
}

func (c *Gemm1x1Config) Clone() perfconfig.Config { cp := *c; return &cp }

func (c *Gemm1x1Config) SetNextValue() bool {
	if c.spare {
		if !perfconfig.NextTwoPower(&c.BlockK, pwSpareBlockKMin, pwSpareBlockKMax) {
			return true
		}
		return !perfconfig.NextTwoPower(&c.BlockHW, pwSpareHWMin, pwSpareHWMax)
	}
	if !perfconfig.NextTwoPower(&c.BlockK, pwBlockKMin, pwBlockKMax) {
		return true
	}
	if !perfconfig.NextTwoPower(&c.BlockHW, pwBlockHWMin, pwBlockHWMax) {
		return true
	}
	return !perfconfig.NextInSet(&c.UnrollC, pwUnrollC)
}

func (c *Gemm1x1Config) legal() bool {
	k := perfconfig.IsTwoPower(c.BlockK, pwBlockKMin, pwBlockKMax) || perfconfig.IsTwoPower(c.BlockK, pwSpareBlockKMin, pwSpareBlockKMax)
	hw := perfconfig.IsTwoPower(c.BlockHW, pwBlockHWMin, pwBlockHWMax) || perfconfig.IsTwoPower(c.BlockHW, pwSpareHWMin, pwSpareHWMax)
	return k && hw && perfconfig.InSet(c.UnrollC, pwUnrollC)
}

func (c *Gemm1x1Config) IsValid(p problem.Problem) bool {
	return c.legal() &&
		p.K%c.BlockK == 0 &&
		p.C%c.UnrollC == 0 &&
		c.BlockHW <= perfconfig.NextPow2(p.OutH()*p.OutW())
}

func (c *Gemm1x1Config) Equal(other perfconfig.Config) bool {
	o := other.(*Gemm1x1Config)
	return c.BlockK == o.BlockK && c.BlockHW == o.BlockHW && c.UnrollC == o.UnrollC
}

func (c *Gemm1x1Config) kernel() kernels.PointwiseConfig {
	return kernels.PointwiseConfig{BlockK: c.BlockK, BlockHW: c.BlockHW, UnrollC: c.UnrollC}
}

// ConvGemm1x1 runs forward pointwise convolutions as a blocked
// [K,C] x [C,H*W] product per image.
type ConvGemm1x1 struct{}

func (*ConvGemm1x1) IsApplicable(sctx *solver.Context) bool {
	p := sctx.Problem
	return p.Direction == problem.Forward && p.Is1x1() && p.Groups == 1 && p.IsFp32()
}

func (*ConvGemm1x1) GetWorkspaceSize(*solver.Context) int { return 0 }

// GetPerformanceConfig takes the widest blocks the problem divides into.
func (*ConvGemm1x1) GetPerformanceConfig(sctx *solver.Context) perfconfig.Any {
	p := sctx.Problem
	cfg := &Gemm1x1Config{BlockK: pwBlockKMax, UnrollC: 4}
	for cfg.BlockK > 1 && p.K%cfg.BlockK != 0 {
		cfg.BlockK /= 2
	}
	for cfg.UnrollC > 1 && p.C%cfg.UnrollC != 0 {
		cfg.UnrollC /= 2
	}
	// Below the main range this lands in the spare one.
	cfg.BlockHW = min(pwBlockHWMax, perfconfig.NextPow2(p.OutH()*p.OutW()))
	return perfconfig.Of(cfg)
}

func (*ConvGemm1x1) GetGenericSearchStart(spare bool) perfconfig.Any {
	if spare {
		return perfconfig.Of(&Gemm1x1Config{BlockK: pwSpareBlockKMin, BlockHW: pwSpareHWMin, UnrollC: 1, spare: true})
	}
	return perfconfig.Of(&Gemm1x1Config{BlockK: pwBlockKMin, BlockHW: pwBlockHWMin, UnrollC: pwUnrollC[0]})
}

func (*ConvGemm1x1) AllocateConfig() perfconfig.Any { return perfconfig.Of(&Gemm1x1Config{}) }

func (*ConvGemm1x1) IsValidPerformanceConfig(sctx *solver.Context, cfg perfconfig.Any) bool {
	ok, err := cfg.IsValid(sctx.Problem)
	return err == nil && ok
}

func (*ConvGemm1x1) GetSolutionWithConfig(sctx *solver.Context, cfg perfconfig.Any) (solver.Solution, error) {
	c, err := perfconfig.As[*Gemm1x1Config](cfg)
	if err != nil {
		return solver.Solution{}, err
	}
	p := sctx.Problem
	kc := c.kernel()
	hw := p.OutH() * p.OutW()
	return solver.Solution{
		ConstructionParams: []solver.KernelInfo{{
			KernelFile:  "pointwise.go",
			KernelName:  "PointwiseForward",
			CompOptions: fmt.Sprintf("-DBLOCK_K=%d -DBLOCK_HW=%d -DUNROLL_C=%d", c.BlockK, c.BlockHW, c.UnrollC),
			LocalWork:   []int{c.BlockK, c.BlockHW},
			GlobalWork:  globalWork(ceilDiv(p.K, c.BlockK), ceilDiv(hw, c.BlockHW), p.N),
		}},
		PerfConfig: c.Serialize(),
		Invoker: func(args solver.InvokeArgs) error {
			if err := checkArgs(p, args); err != nil {
				return err
			}
			if err := kernels.PointwiseForward(p, kc, args.Bot, args.Wei, args.Top); err != nil {
				return err
			}
			if p.Bias {
				kernels.AddBias(p, args.Top, args.Bias)
			}
			return nil
		},
	}, nil
}

func (s *ConvGemm1x1) Search(ctx context.Context, sctx *solver.Context) (perfconfig.Any, error) {
	return solver.GenericSearchFwd(ctx, s, sctx, solver.TweakNone)
}

func (*ConvGemm1x1) RunAndMeasureSolution(h *device.Handle, args solver.InvokeArgs, _ *solver.Context, sol solver.Solution) (time.Duration, error) {
	return measure(h, args, sol)
}
