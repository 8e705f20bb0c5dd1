// Package kernels holds the CPU kernel bodies the convolution solvers launch:
// a blocked GEMM, im2col/col2im, a pointwise kernel and the direct reference
// convolution.
package kernels

import (
	"errors"
	"fmt"
	"runtime"
)

const (
	defaultTileM = 32
	defaultTileN = 32
	defaultTileK = 16

	MaxTileM = 128
	MaxTileN = 128
	MaxTileK = 128
)

var ErrShape = errors.New("kernels: dimension mismatch")

// GemmConfig selects the blocking of GemmPar.
type GemmConfig struct {
	TileM int
	TileN int
	TileK int
	// PackB copies each TileK x TileN block of B into a contiguous scratch
	// buffer before the row sweep.
	PackB bool
}

func DefaultGemmConfig() GemmConfig {
	return GemmConfig{
		TileM: defaultTileM,
		TileN: defaultTileN,
		TileK: defaultTileK,
		PackB: true,
	}
}

// SelectGemmConfig is the shape heuristic: deeper K gets a deeper TileK.
func SelectGemmConfig(m, n, k int) GemmConfig {
	cfg := DefaultGemmConfig()

	switch {
	case k >= 192:
		cfg.TileK = 32
	case k >= 96:
		cfg.TileK = 24
	}

	return cfg.clamp()
}

func (c GemmConfig) clamp() GemmConfig {
	c.TileM = clampTile(c.TileM, MaxTileM)
	c.TileN = clampTile(c.TileN, MaxTileN)
	c.TileK = clampTile(c.TileK, MaxTileK)
	return c
}

func clampTile(value, max int) int {
	if value < 1 {
		return 1
	}
	if value > max {
		return max
	}
	return value
}

// Mat is a row-major view. Rows and Cols are the logical dimensions; when
// Trans is set the backing data is stored transposed, i.e. element (i, j)
// lives at Data[j*Stride+i].
type Mat struct {
	Rows, Cols int
	Stride     int
	Data       []float32
	Trans      bool
}

// NewMat wraps data as a dense rows x cols matrix.
func NewMat(rows, cols int, data []float32) Mat {
	return Mat{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// T returns the transposed view of m without copying.
func (m Mat) T() Mat {
	return Mat{Rows: m.Cols, Cols: m.Rows, Stride: m.Stride, Data: m.Data, Trans: !m.Trans}
}

func (m Mat) At(i, j int) float32 {
	if m.Trans {
		return m.Data[j*m.Stride+i]
	}
	return m.Data[i*m.Stride+j]
}

func (m Mat) valid() bool {
	if m.Rows == 0 || m.Cols == 0 {
		return true
	}
	r, c := m.Rows, m.Cols
	if m.Trans {
		r, c = c, r
	}
	return m.Stride >= c && len(m.Data) >= (r-1)*m.Stride+c
}

type gemmTask struct {
	c, a, b     Mat
	alpha, beta float32
	rs, re      int
	cfg         GemmConfig
	done        chan struct{}
}

type gemmPool struct {
	size      int
	tasks     chan gemmTask
	doneSlots chan chan struct{}
}

func newGemmPool() *gemmPool {
	size := max(runtime.GOMAXPROCS(0), 1)
	p := &gemmPool{
		size:      size,
		tasks:     make(chan gemmTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for range size {
		p.doneSlots <- make(chan struct{}, size)
	}
	for range size {
		packB := make([]float32, MaxTileK*MaxTileN)
		go func(packB []float32) {
			for task := range p.tasks {
				gemmRangeRows(task.c, task.a, task.b, task.alpha, task.beta, task.rs, task.re, packB, task.cfg)
				task.done <- struct{}{}
			}
		}(packB)
	}
	return p
}

var gemmWorkPool = newGemmPool()

// GemmPar computes C = alpha*A*B + beta*C with cfg's blocking, splitting the
// rows of C across at most workers goroutines. workers <= 0 uses GOMAXPROCS.
func GemmPar(cfg GemmConfig, c, a, b Mat, alpha, beta float32, workers int) error {
	if a.Cols != b.Rows || c.Rows != a.Rows || c.Cols != b.Cols {
		return fmt.Errorf("%w: C %dx%d = A %dx%d * B %dx%d", ErrShape, c.Rows, c.Cols, a.Rows, a.Cols, b.Rows, b.Cols)
	}
	if c.Trans {
		return fmt.Errorf("%w: transposed output", ErrShape)
	}
	if !a.valid() || !b.valid() || !c.valid() {
		return fmt.Errorf("%w: buffer too small for view", ErrShape)
	}
	if c.Rows == 0 || c.Cols == 0 {
		return nil
	}
	cfg = cfg.clamp()

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, c.Rows, gemmWorkPool.size)
	if workers <= 1 {
		var packB []float32
		if cfg.PackB {
			packB = make([]float32, cfg.TileK*cfg.TileN)
		}
		gemmRangeRows(c, a, b, alpha, beta, 0, c.Rows, packB, cfg)
		return nil
	}

	chunk := (c.Rows + workers - 1) / workers

	done := <-gemmWorkPool.doneSlots
	sent := 0
	for rs := 0; rs < c.Rows; rs += chunk {
		gemmWorkPool.tasks <- gemmTask{
			c: c, a: a, b: b,
			alpha: alpha, beta: beta,
			rs: rs, re: min(rs+chunk, c.Rows),
			cfg:  cfg,
			done: done,
		}
		sent++
	}
	for range sent {
		<-done
	}
	gemmWorkPool.doneSlots <- done
	return nil
}

// gemmRangeRows performs a blocked GEMM on a contiguous range of rows of C.
func gemmRangeRows(c, a, b Mat, alpha, beta float32, rs, re int, packB []float32, cfg GemmConfig) {
	n := c.Cols
	for i := rs; i < re; i++ {
		row := c.Data[i*c.Stride : i*c.Stride+n]
		switch beta {
		case 0:
			clear(row)
		case 1:
		default:
			for j := range row {
				row[j] *= beta
			}
		}
	}

	k := a.Cols
	tm, tn, tk := cfg.TileM, cfg.TileN, cfg.TileK

	if cfg.PackB && len(packB) >= tk*tn {
		for k0 := 0; k0 < k; k0 += tk {
			kMax := min(k0+tk, k)
			for j0 := 0; j0 < n; j0 += tn {
				jMax := min(j0+tn, n)
				packBTile(packB, b, k0, kMax, j0, jMax)
				for i0 := rs; i0 < re; i0 += tm {
					blockUpdatePacked(c, a, packB, alpha, i0, min(i0+tm, re), j0, jMax-j0, k0, kMax-k0)
				}
			}
		}
		return
	}

	for i0 := rs; i0 < re; i0 += tm {
		iMax := min(i0+tm, re)
		for k0 := 0; k0 < k; k0 += tk {
			kMax := min(k0+tk, k)
			for j0 := 0; j0 < n; j0 += tn {
				blockUpdate(c, a, b, alpha, i0, iMax, j0, min(j0+tn, n), k0, kMax)
			}
		}
	}
}

// packBTile lays out B[k0:kMax, j0:jMax] as kInner contiguous rows of width.
func packBTile(dst []float32, b Mat, k0, kMax, j0, jMax int) {
	width := jMax - j0
	for kk := k0; kk < kMax; kk++ {
		row := dst[(kk-k0)*width : (kk-k0+1)*width]
		if !b.Trans {
			off := kk*b.Stride + j0
			copy(row, b.Data[off:off+width])
			continue
		}
		for j := range row {
			row[j] = b.Data[(j0+j)*b.Stride+kk]
		}
	}
}

func blockUpdatePacked(c, a Mat, packB []float32, alpha float32, i0, iMax, j0, width, k0, kInner int) {
	for i := i0; i < iMax; i++ {
		cOff := i*c.Stride + j0
		cRow := c.Data[cOff : cOff+width]
		for kk := range kInner {
			axpy(cRow, packB[kk*width:(kk+1)*width], alpha*a.At(i, k0+kk))
		}
	}
}

func blockUpdate(c, a, b Mat, alpha float32, i0, iMax, j0, jMax, k0, kMax int) {
	width := jMax - j0
	for i := i0; i < iMax; i++ {
		cOff := i*c.Stride + j0
		cRow := c.Data[cOff : cOff+width]
		for kk := k0; kk < kMax; kk++ {
			aik := alpha * a.At(i, kk)
			if !b.Trans {
				bOff := kk*b.Stride + j0
				axpy(cRow, b.Data[bOff:bOff+width], aik)
				continue
			}
			for j := range cRow {
				cRow[j] += aik * b.Data[(j0+j)*b.Stride+kk]
			}
		}
	}
}

// axpy computes dst += s*src over len(dst) elements.
func axpy(dst, src []float32, s float32) {
	src = src[:len(dst)]
	j := 0
	for ; j+7 < len(dst); j += 8 {
		dst[j+0] += s * src[j+0]
		dst[j+1] += s * src[j+1]
		dst[j+2] += s * src[j+2]
		dst[j+3] += s * src[j+3]
		dst[j+4] += s * src[j+4]
		dst[j+5] += s * src[j+5]
		dst[j+6] += s * src[j+6]
		dst[j+7] += s * src[j+7]
	}
	for ; j < len(dst); j++ {
		dst[j] += s * src[j]
	}
}
