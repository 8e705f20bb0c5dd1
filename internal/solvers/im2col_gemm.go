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

const (
	tileMMin, tileMMax         = 16, 64
	tileNMin, tileNMax         = 16, 128
	tileKMin, tileKMax         = 8, 64
	spareTileMin, spareTileMax = 1, 8
)

// Im2ColGemmConfig is the blocking of the per-image GEMM.
type Im2ColGemmConfig struct {
	TileM int
	TileN int
	TileK int
	PackB bool

	spare bool
}

func (c *Im2ColGemmConfig) Serialize() string {
	return perfconfig.EncodeFields(c.TileM, c.TileN, c.TileK, perfconfig.BoolField(c.PackB))
}

func (c *Im2ColGemmConfig) Deserialize(s string) error {
	v, err := perfconfig.DecodeFields(s, 4)
	if err != nil {
		return err
	}
	pack, err := perfconfig.ParseBoolField(v[3])
	if err != nil {
		return err
	}
	c.TileM, c.TileN, c.TileK, c.PackB = v[0], v[1], v[2], pack
	return nil
}

func (c *Im2ColGemmConfig) Clone() perfconfig.Config { cp := *c; return &cp }

func (c *Im2ColGemmConfig) SetNextValue() bool {
	if c.spare {
		if !perfconfig.NextTwoPower(&c.TileM, spareTileMin, spareTileMax) {
			return true
		}
		if !perfconfig.NextTwoPower(&c.TileN, spareTileMin, spareTileMax) {
			return true
		}
		return !perfconfig.NextTwoPower(&c.TileK, spareTileMin, spareTileMax)
	}
	if !perfconfig.NextTwoPower(&c.TileM, tileMMin, tileMMax) {
		return true
	}
	if !perfconfig.NextTwoPower(&c.TileN, tileNMin, tileNMax) {
		return true
	}
	if !perfconfig.NextTwoPower(&c.TileK, tileKMin, tileKMax) {
		return true
	}
	return !perfconfig.NextFlag(&c.PackB)
}

func legalTile(v, lo, hi int) bool {
	return perfconfig.IsTwoPower(v, lo, hi) || perfconfig.IsTwoPower(v, spareTileMin, spareTileMax)
}

func (c *Im2ColGemmConfig) IsValid(p problem.Problem) bool {
	if !legalTile(c.TileM, tileMMin, tileMMax) || !legalTile(c.TileN, tileNMin, tileNMax) || !legalTile(c.TileK, tileKMin, tileKMax) {
		return false
	}
	m, n, k := p.GemmSize()
	return c.TileM <= m && c.TileN <= n && c.TileK <= k
}

func (c *Im2ColGemmConfig) Equal(other perfconfig.Config) bool {
	o := other.(*Im2ColGemmConfig)
	return c.TileM == o.TileM && c.TileN == o.TileN && c.TileK == o.TileK && c.PackB == o.PackB
}

func (c *Im2ColGemmConfig) gemm() kernels.GemmConfig {
	return kernels.GemmConfig{TileM: c.TileM, TileN: c.TileN, TileK: c.TileK, PackB: c.PackB}
}

// ConvIm2ColGemm unfolds each image into a column matrix in the workspace
// and runs the convolution as a GEMM against it. All three directions are
// supported for ungrouped FP32 problems.
type ConvIm2ColGemm struct{}

func (*ConvIm2ColGemm) IsApplicable(sctx *solver.Context) bool {
	p := sctx.Problem
	return p.Groups == 1 && p.IsFp32() && p.Validate() == nil
}

// GetWorkspaceSize is the column buffer of one image. It does not depend on
// the configuration.
func (*ConvIm2ColGemm) GetWorkspaceSize(sctx *solver.Context) int {
	return kernels.ColElems(sctx.Problem) * device.Float32Bytes
}

// GetPerformanceConfig starts from the shared GEMM heuristic and halves each
// tile until it fits the problem.
func (*ConvIm2ColGemm) GetPerformanceConfig(sctx *solver.Context) perfconfig.Any {
	m, n, k := sctx.Problem.GemmSize()
	g := kernels.SelectGemmConfig(m, n, k)
	cfg := &Im2ColGemmConfig{
		TileM: fitTile(g.TileM, m),
		TileN: fitTile(g.TileN, n),
		TileK: fitTile(g.TileK, k),
		PackB: g.PackB,
	}
	return perfconfig.Of(cfg)
}

// fitTile rounds t down to a power of two and halves it until it is <= dim.
func fitTile(t, dim int) int {
	p := perfconfig.NextPow2(t)
	if p > t {
		p /= 2
	}
	for p > 1 && p > dim {
		p /= 2
	}
	return p
}

func (*ConvIm2ColGemm) GetGenericSearchStart(spare bool) perfconfig.Any {
	if spare {
		return perfconfig.Of(&Im2ColGemmConfig{TileM: spareTileMin, TileN: spareTileMin, TileK: spareTileMin, spare: true})
	}
	return perfconfig.Of(&Im2ColGemmConfig{TileM: tileMMin, TileN: tileNMin, TileK: tileKMin})
}

func (*ConvIm2ColGemm) AllocateConfig() perfconfig.Any { return perfconfig.Of(&Im2ColGemmConfig{}) }

func (*ConvIm2ColGemm) IsValidPerformanceConfig(sctx *solver.Context, cfg perfconfig.Any) bool {
	ok, err := cfg.IsValid(sctx.Problem)
	return err == nil && ok
}

func (s *ConvIm2ColGemm) GetSolutionWithConfig(sctx *solver.Context, cfg perfconfig.Any) (solver.Solution, error) {
	c, err := perfconfig.As[*Im2ColGemmConfig](cfg)
	if err != nil {
		return solver.Solution{}, err
	}
	p := sctx.Problem
	gc := c.gemm()
	m, n, _ := p.GemmSize()

	var run func(args solver.InvokeArgs, col []float32) error
	switch p.Direction {
	case problem.BackwardData:
		run = func(args solver.InvokeArgs, col []float32) error { return im2colBackwardData(p, gc, args, col) }
	case problem.BackwardWeights:
		run = func(args solver.InvokeArgs, col []float32) error { return im2colBackwardWeights(p, gc, args, col) }
	default:
		run = func(args solver.InvokeArgs, col []float32) error { return im2colForward(p, gc, args, col) }
	}
	colElems := kernels.ColElems(p)

	return solver.Solution{
		ConstructionParams: []solver.KernelInfo{
			{KernelFile: "im2col.go", KernelName: im2colKernelName(p.Direction)},
			{
				KernelFile:  "gemm.go",
				KernelName:  "GemmPar",
				CompOptions: fmt.Sprintf("-DTILE_M=%d -DTILE_N=%d -DTILE_K=%d -DPACK_B=%d", c.TileM, c.TileN, c.TileK, perfconfig.BoolField(c.PackB)),
				LocalWork:   []int{c.TileM, c.TileN},
				GlobalWork:  globalWork(ceilDiv(m, c.TileM), ceilDiv(n, c.TileN), p.N),
			},
		},
		WorkspaceSize: s.GetWorkspaceSize(sctx),
		PerfConfig:    c.Serialize(),
		Invoker: func(args solver.InvokeArgs) error {
			if err := checkArgs(p, args); err != nil {
				return err
			}
			if len(args.Workspace) < colElems {
				return fmt.Errorf("%w: workspace has %d elements, want %d", ErrShortBuffer, len(args.Workspace), colElems)
			}
			return run(args, args.Workspace[:colElems])
		},
	}, nil
}

func im2colKernelName(d problem.Direction) string {
	if d == problem.BackwardData {
		return "Col2Im"
	}
	return "Im2Col"
}

func (s *ConvIm2ColGemm) Search(ctx context.Context, sctx *solver.Context) (perfconfig.Any, error) {
	switch sctx.Problem.Direction {
	case problem.BackwardData:
		return solver.GenericSearchBwd(ctx, s, sctx, solver.TweakNone)
	case problem.BackwardWeights:
		return solver.GenericSearchWrW(ctx, s, sctx, solver.TweakNone)
	default:
		return solver.GenericSearchFwd(ctx, s, sctx, solver.TweakNone)
	}
}

func (*ConvIm2ColGemm) RunAndMeasureSolution(h *device.Handle, args solver.InvokeArgs, _ *solver.Context, sol solver.Solution) (time.Duration, error) {
	return measure(h, args, sol)
}

// y_n[K,HW] = w[K,CYX] * col_n[CYX,HW]
func im2colForward(p problem.Problem, gc kernels.GemmConfig, args solver.InvokeArgs, col []float32) error {
	cyx, hw := p.C*p.Y*p.X, p.OutH()*p.OutW()
	inImg, outImg := p.C*p.H*p.W, p.K*hw
	w := kernels.NewMat(p.K, cyx, args.Wei)
	for n := range p.N {
		kernels.Im2Col(p, args.Bot[n*inImg:(n+1)*inImg], col)
		y := kernels.NewMat(p.K, hw, args.Top[n*outImg:(n+1)*outImg])
		if err := kernels.GemmPar(gc, y, w, kernels.NewMat(cyx, hw, col), 1, 0, 0); err != nil {
			return err
		}
	}
	if p.Bias {
		kernels.AddBias(p, args.Top, args.Bias)
	}
	return nil
}

// col_n[CYX,HW] = w^T[CYX,K] * dy_n[K,HW], then dx_n = col2im(col_n)
func im2colBackwardData(p problem.Problem, gc kernels.GemmConfig, args solver.InvokeArgs, col []float32) error {
	cyx, hw := p.C*p.Y*p.X, p.OutH()*p.OutW()
	inImg, outImg := p.C*p.H*p.W, p.K*hw
	wT := kernels.NewMat(p.K, cyx, args.Wei).T()
	for n := range p.N {
		dy := kernels.NewMat(p.K, hw, args.Bot[n*outImg:(n+1)*outImg])
		if err := kernels.GemmPar(gc, kernels.NewMat(cyx, hw, col), wT, dy, 1, 0, 0); err != nil {
			return err
		}
		dx := args.Top[n*inImg : (n+1)*inImg]
		clear(dx)
		kernels.Col2Im(p, col, dx)
	}
	return nil
}

// dw[K,CYX] = sum_n dy_n[K,HW] * col_n^T[HW,CYX]
func im2colBackwardWeights(p problem.Problem, gc kernels.GemmConfig, args solver.InvokeArgs, col []float32) error {
	cyx, hw := p.C*p.Y*p.X, p.OutH()*p.OutW()
	inImg, outImg := p.C*p.H*p.W, p.K*hw
	dw := kernels.NewMat(p.K, cyx, args.Wei)
	colT := kernels.NewMat(cyx, hw, col).T()
	for n := range p.N {
		kernels.Im2Col(p, args.Top[n*inImg:(n+1)*inImg], col)
		dy := kernels.NewMat(p.K, hw, args.Bot[n*outImg:(n+1)*outImg])
		beta := float32(1)
		if n == 0 {
			beta = 0
		}
		if err := kernels.GemmPar(gc, dw, dy, colT, 1, beta, 0); err != nil {
			return err
		}
	}
	return nil
}
