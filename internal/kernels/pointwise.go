package kernels

import (
	"fmt"

	"github.com/samcharles93/convtune/internal/problem"
)

// PointwiseConfig blocks the 1x1 forward kernel: BlockK output channels by
// BlockHW pixels per tile, with the channel loop unrolled by UnrollC.
type PointwiseConfig struct {
	BlockK  int
	BlockHW int
	UnrollC int
}

// PointwiseForward computes y_n[K, HW] = w[K, C] * x_n[C, HW] for a 1x1,
// unit-stride, unpadded problem.
func PointwiseForward(p problem.Problem, cfg PointwiseConfig, x, w, y []float32) error {
	if !p.Is1x1() || p.Groups != 1 {
		return fmt.Errorf("%w: pointwise kernel needs a 1x1 ungrouped problem", ErrShape)
	}
	if cfg.BlockK <= 0 || cfg.BlockHW <= 0 || cfg.UnrollC <= 0 || p.C%cfg.UnrollC != 0 {
		return fmt.Errorf("%w: pointwise config %+v for c=%d", ErrShape, cfg, p.C)
	}
	hw := p.H * p.W
	for n := range p.N {
		xn := x[n*p.C*hw : (n+1)*p.C*hw]
		yn := y[n*p.K*hw : (n+1)*p.K*hw]
		clear(yn)
		for k0 := 0; k0 < p.K; k0 += cfg.BlockK {
			kMax := min(k0+cfg.BlockK, p.K)
			for j0 := 0; j0 < hw; j0 += cfg.BlockHW {
				jMax := min(j0+cfg.BlockHW, hw)
				for k := k0; k < kMax; k++ {
					out := yn[k*hw+j0 : k*hw+jMax]
					wRow := w[k*p.C : (k+1)*p.C]
					for c := 0; c < p.C; c += cfg.UnrollC {
						for u := range cfg.UnrollC {
							off := (c+u)*hw + j0
							axpy(out, xn[off:off+len(out)], wRow[c+u])
						}
					}
				}
			}
		}
	}
	return nil
}
