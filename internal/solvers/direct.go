package solvers

import (
	"github.com/samcharles93/convtune/internal/kernels"
	"github.com/samcharles93/convtune/internal/problem"
	"github.com/samcharles93/convtune/internal/solver"
)

// directFastMACs is the size above which the reference kernel is not
// considered fast.
const directFastMACs = 1 << 24

// ConvDirectNaive is the reference loop nest. It applies to every valid
// problem, including grouped and reduced-precision ones, and has nothing to
// tune.
type ConvDirectNaive struct{}

func (*ConvDirectNaive) IsApplicable(sctx *solver.Context) bool {
	return sctx.Problem.Validate() == nil
}

func (*ConvDirectNaive) IsFast(sctx *solver.Context) bool {
	return sctx.Problem.MACs() <= directFastMACs
}

func (*ConvDirectNaive) GetWorkspaceSize(*solver.Context) int { return 0 }

func (*ConvDirectNaive) GetSolution(sctx *solver.Context) (solver.Solution, error) {
	p := sctx.Problem
	var (
		name   string
		invoke func(args solver.InvokeArgs)
	)
	switch p.Direction {
	case problem.BackwardData:
		name = "DirectBackwardData"
		invoke = func(a solver.InvokeArgs) { kernels.DirectBackwardData(p, a.Bot, a.Wei, a.Top) }
	case problem.BackwardWeights:
		name = "DirectBackwardWeights"
		invoke = func(a solver.InvokeArgs) { kernels.DirectBackwardWeights(p, a.Top, a.Bot, a.Wei) }
	default:
		name = "DirectForward"
		invoke = func(a solver.InvokeArgs) { kernels.DirectForward(p, a.Bot, a.Wei, a.Bias, a.Top) }
	}
	return solver.Solution{
		ConstructionParams: []solver.KernelInfo{{
			KernelFile:  "direct.go",
			KernelName:  name,
			CompOptions: "-DDATA_TYPE=" + p.DataType.String(),
			GlobalWork:  globalWork(p.N, p.K, p.OutH()*p.OutW()),
		}},
		Invoker: func(args solver.InvokeArgs) error {
			if err := checkArgs(p, args); err != nil {
				return err
			}
			invoke(args)
			return nil
		},
	}, nil
}
