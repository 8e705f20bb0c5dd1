package kernels

import "github.com/samcharles93/convtune/internal/problem"

// The direct kernels are the reference algorithm: one output element per
// loop nest, any groups, dilation and stride. All tensors are NCHW; the
// filter is [K, C/G, Y, X].

type geometry struct {
	n, c, h, w, k, y, x int
	ho, wo              int
	cpg, kpg            int
	p                   problem.Problem
}

func geometryOf(p problem.Problem) geometry {
	g := max(p.Groups, 1)
	return geometry{
		n: p.N, c: p.C, h: p.H, w: p.W, k: p.K, y: p.Y, x: p.X,
		ho: p.OutH(), wo: p.OutW(),
		cpg: p.C / g, kpg: p.K / g,
		p: p,
	}
}

// inputIndex maps an output position and filter tap to an input offset, or
// -1 for padding.
func (g geometry) inputIndex(n, c, oy, ox, fy, fx int) int {
	iy := oy*g.p.StrideH - g.p.PadH + fy*g.p.DilationH
	ix := ox*g.p.StrideW - g.p.PadW + fx*g.p.DilationW
	if iy < 0 || iy >= g.h || ix < 0 || ix >= g.w {
		return -1
	}
	return ((n*g.c+c)*g.h+iy)*g.w + ix
}

// DirectForward computes y = conv(x, w) (+ bias).
func DirectForward(p problem.Problem, x, w, bias, y []float32) {
	g := geometryOf(p)
	round := Rounder(p.DataType)
	for n := range g.n {
		for k := range g.k {
			c0 := (k / g.kpg) * g.cpg
			for oy := range g.ho {
				for ox := range g.wo {
					var acc float32
					for cc := range g.cpg {
						wBase := (k*g.cpg + cc) * g.y * g.x
						for fy := range g.y {
							for fx := range g.x {
								if i := g.inputIndex(n, c0+cc, oy, ox, fy, fx); i >= 0 {
									acc += x[i] * w[wBase+fy*g.x+fx]
								}
							}
						}
					}
					if p.Bias && len(bias) > k {
						acc += bias[k]
					}
					if round != nil {
						acc = round(acc)
					}
					y[((n*g.k+k)*g.ho+oy)*g.wo+ox] = acc
				}
			}
		}
	}
}

// DirectBackwardData computes dx from dy and w. dx is overwritten.
func DirectBackwardData(p problem.Problem, dy, w, dx []float32) {
	g := geometryOf(p)
	clear(dx[:p.InputElems()])
	for n := range g.n {
		for k := range g.k {
			c0 := (k / g.kpg) * g.cpg
			for oy := range g.ho {
				for ox := range g.wo {
					d := dy[((n*g.k+k)*g.ho+oy)*g.wo+ox]
					if d == 0 {
						continue
					}
					for cc := range g.cpg {
						wBase := (k*g.cpg + cc) * g.y * g.x
						for fy := range g.y {
							for fx := range g.x {
								if i := g.inputIndex(n, c0+cc, oy, ox, fy, fx); i >= 0 {
									dx[i] += d * w[wBase+fy*g.x+fx]
								}
							}
						}
					}
				}
			}
		}
	}
	RoundSlice(p.DataType, dx[:p.InputElems()])
}

// DirectBackwardWeights computes dw from x and dy. dw is overwritten.
func DirectBackwardWeights(p problem.Problem, x, dy, dw []float32) {
	g := geometryOf(p)
	clear(dw[:p.FilterElems()])
	for n := range g.n {
		for k := range g.k {
			c0 := (k / g.kpg) * g.cpg
			for oy := range g.ho {
				for ox := range g.wo {
					d := dy[((n*g.k+k)*g.ho+oy)*g.wo+ox]
					if d == 0 {
						continue
					}
					for cc := range g.cpg {
						wBase := (k*g.cpg + cc) * g.y * g.x
						for fy := range g.y {
							for fx := range g.x {
								if i := g.inputIndex(n, c0+cc, oy, ox, fy, fx); i >= 0 {
									dw[wBase+fy*g.x+fx] += d * x[i]
								}
							}
						}
					}
				}
			}
		}
	}
	RoundSlice(p.DataType, dw[:p.FilterElems()])
}

// AddBias adds bias[k] to every element of output channel k.
func AddBias(p problem.Problem, y, bias []float32) {
	hw := p.OutH() * p.OutW()
	for n := range p.N {
		for k := range p.K {
			out := y[(n*p.K+k)*hw : (n*p.K+k+1)*hw]
			b := bias[k]
			for i := range out {
				out[i] += b
			}
		}
	}
}
