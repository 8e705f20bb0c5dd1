// Package solvers holds the concrete CPU convolution solvers and the default
// registry that orders them for dispatch.
package solvers

import (
	"errors"
	"fmt"
	"time"

	"github.com/janpfeifer/must"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/problem"
	"github.com/samcharles93/convtune/internal/solver"
)

// NewRegistry returns the built-in solvers in dispatch order: the most
// specialized first, the reference kernel last.
func NewRegistry() *solver.Registry {
	reg := solver.NewRegistry()
	for _, s := range []solver.Solver{
		&ConvGemm1x1{},
		&ConvIm2ColGemm{},
		&ConvDirectNaive{},
	} {
		must.M1(reg.Add(s))
	}
	return reg
}

// ErrShortBuffer is returned by invokers whose buffers do not fit the
// problem.
var ErrShortBuffer = errors.New("solvers: buffer shorter than the problem needs")

// checkArgs verifies the role buffers of args against p.
func checkArgs(p problem.Problem, args solver.InvokeArgs) error {
	var top, bot int
	switch p.Direction {
	case problem.Forward:
		bot, top = p.InputElems(), p.OutputElems()
	default:
		bot, top = p.OutputElems(), p.InputElems()
	}
	switch {
	case len(args.Bot) < bot:
		return fmt.Errorf("%w: bot has %d elements, want %d", ErrShortBuffer, len(args.Bot), bot)
	case len(args.Top) < top:
		return fmt.Errorf("%w: top has %d elements, want %d", ErrShortBuffer, len(args.Top), top)
	case len(args.Wei) < p.FilterElems():
		return fmt.Errorf("%w: wei has %d elements, want %d", ErrShortBuffer, len(args.Wei), p.FilterElems())
	case p.Bias && p.Direction == problem.Forward && len(args.Bias) < p.K:
		return fmt.Errorf("%w: bias has %d elements, want %d", ErrShortBuffer, len(args.Bias), p.K)
	}
	return nil
}

// measure is the RunAndMeasureSolution shared by the tunable solvers.
func measure(h *device.Handle, args solver.InvokeArgs, sol solver.Solution) (time.Duration, error) {
	return sol.Run(h, args)
}

// globalWork reports the launch grid the way the kernel blocks it.
func globalWork(dims ...int) []int { return dims }

func ceilDiv(a, b int) int { return (a + b - 1) / b }
