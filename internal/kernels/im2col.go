package kernels

import "github.com/samcharles93/convtune/internal/problem"

// Im2Col unfolds one image x[C,H,W] into col[C*Y*X, Ho*Wo]. Padding taps are
// written as zero.
func Im2Col(p problem.Problem, x, col []float32) {
	ho, wo := p.OutH(), p.OutW()
	hw := ho * wo
	row := 0
	for c := range p.C {
		plane := x[c*p.H*p.W : (c+1)*p.H*p.W]
		for fy := range p.Y {
			for fx := range p.X {
				dst := col[row*hw : (row+1)*hw]
				row++
				for oy := range ho {
					iy := oy*p.StrideH - p.PadH + fy*p.DilationH
					out := dst[oy*wo : (oy+1)*wo]
					if iy < 0 || iy >= p.H {
						clear(out)
						continue
					}
					src := plane[iy*p.W : (iy+1)*p.W]
					for ox := range wo {
						ix := ox*p.StrideW - p.PadW + fx*p.DilationW
						if ix < 0 || ix >= p.W {
							out[ox] = 0
						} else {
							out[ox] = src[ix]
						}
					}
				}
			}
		}
	}
}

// Col2Im is the adjoint of Im2Col: it scatters col back onto x, accumulating
// overlapping taps. x is not cleared first.
func Col2Im(p problem.Problem, col, x []float32) {
	ho, wo := p.OutH(), p.OutW()
	hw := ho * wo
	row := 0
	for c := range p.C {
		plane := x[c*p.H*p.W : (c+1)*p.H*p.W]
		for fy := range p.Y {
			for fx := range p.X {
				src := col[row*hw : (row+1)*hw]
				row++
				for oy := range ho {
					iy := oy*p.StrideH - p.PadH + fy*p.DilationH
					if iy < 0 || iy >= p.H {
						continue
					}
					dst := plane[iy*p.W : (iy+1)*p.W]
					for ox := range wo {
						ix := ox*p.StrideW - p.PadW + fx*p.DilationW
						if ix >= 0 && ix < p.W {
							dst[ix] += src[oy*wo+ox]
						}
					}
				}
			}
		}
	}
}

// ColElems is the element count of one image's column buffer.
func ColElems(p problem.Problem) int {
	return p.C / max(p.Groups, 1) * p.Y * p.X * p.OutH() * p.OutW()
}
