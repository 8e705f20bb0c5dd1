package kernels

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/samcharles93/convtune/internal/problem"
)

func fillRand(buf []float32, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, 1))
	for i := range buf {
		buf[i] = rng.Float32()*2 - 1
	}
}

func gemmNaive(c, a, b Mat) {
	for i := range c.Rows {
		for j := range c.Cols {
			var sum float32
			for kk := range a.Cols {
				sum += a.At(i, kk) * b.At(kk, j)
			}
			c.Data[i*c.Stride+j] = sum
		}
	}
}

func maxAbsDiff(a, b []float32) float64 {
	var maxAbs float64
	for i := range a {
		d := math.Abs(float64(a[i] - b[i]))
		if d > maxAbs {
			maxAbs = d
		}
	}
	return maxAbs
}

func TestGemmParMatchesNaive(t *testing.T) {
	t.Parallel()

	const m, k, n = 50, 70, 45
	aData := make([]float32, m*k)
	bData := make([]float32, k*n)
	fillRand(aData, 1)
	fillRand(bData, 2)

	cases := []struct {
		name   string
		a, b   Mat
		cfg    GemmConfig
		worker int
	}{
		{"plain", NewMat(m, k, aData), NewMat(k, n, bData), SelectGemmConfig(m, n, k), 4},
		{"unpacked", NewMat(m, k, aData), NewMat(k, n, bData), GemmConfig{TileM: 8, TileN: 16, TileK: 4}, 1},
		{"transA", NewMat(k, m, aData).T(), NewMat(k, n, bData), GemmConfig{TileM: 16, TileN: 16, TileK: 8, PackB: true}, 3},
		{"transB packed", NewMat(m, k, aData), NewMat(n, k, bData).T(), GemmConfig{TileM: 4, TileN: 8, TileK: 8, PackB: true}, 2},
		{"transB unpacked", NewMat(m, k, aData), NewMat(n, k, bData).T(), GemmConfig{TileM: 64, TileN: 64, TileK: 64}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			want := NewMat(m, n, make([]float32, m*n))
			got := NewMat(m, n, make([]float32, m*n))
			gemmNaive(want, tc.a, tc.b)
			if err := GemmPar(tc.cfg, got, tc.a, tc.b, 1, 0, tc.worker); err != nil {
				t.Fatalf("GemmPar: %v", err)
			}
			if d := maxAbsDiff(want.Data, got.Data); d > 1e-3 {
				t.Fatalf("max abs diff %g", d)
			}
		})
	}
}

func TestGemmParAlphaBeta(t *testing.T) {
	t.Parallel()

	a := NewMat(3, 2, []float32{1, 2, 3, 4, 5, 6})
	b := NewMat(2, 2, []float32{1, 0, 0, 1})
	c := NewMat(3, 2, []float32{1, 1, 1, 1, 1, 1})
	if err := GemmPar(DefaultGemmConfig(), c, a, b, 2, 1, 1); err != nil {
		t.Fatal(err)
	}
	want := []float32{3, 5, 7, 9, 11, 13}
	if d := maxAbsDiff(want, c.Data); d != 0 {
		t.Fatalf("got %v, want %v", c.Data, want)
	}
}

func TestGemmParShapeMismatch(t *testing.T) {
	t.Parallel()

	a := NewMat(2, 3, make([]float32, 6))
	b := NewMat(2, 2, make([]float32, 4))
	c := NewMat(2, 2, make([]float32, 4))
	if err := GemmPar(DefaultGemmConfig(), c, a, b, 1, 0, 1); err == nil {
		t.Fatal("expected shape error")
	}
	short := NewMat(3, 2, make([]float32, 5))
	if err := GemmPar(DefaultGemmConfig(), c, NewMat(2, 3, make([]float32, 6)), short, 1, 0, 1); err == nil {
		t.Fatal("expected buffer size error")
	}
}

func TestSelectGemmConfig(t *testing.T) {
	t.Parallel()

	if got := SelectGemmConfig(64, 64, 256).TileK; got != 32 {
		t.Fatalf("TileK for k=256: %d", got)
	}
	if got := SelectGemmConfig(64, 64, 100).TileK; got != 24 {
		t.Fatalf("TileK for k=100: %d", got)
	}
	if got := SelectGemmConfig(64, 64, 8).TileK; got != defaultTileK {
		t.Fatalf("TileK for k=8: %d", got)
	}
}

func testProblem() problem.Problem {
	return problem.Problem{N: 2, C: 3, H: 7, W: 6, K: 4, Y: 3, X: 2, PadH: 1, PadW: 1, StrideH: 2, DilationW: 2}.WithDefaults()
}

func TestIm2ColGemmMatchesDirect(t *testing.T) {
	t.Parallel()

	p := testProblem()
	x := make([]float32, p.InputElems())
	w := make([]float32, p.FilterElems())
	fillRand(x, 3)
	fillRand(w, 4)

	want := make([]float32, p.OutputElems())
	DirectForward(p, x, w, nil, want)

	got := make([]float32, p.OutputElems())
	col := make([]float32, ColElems(p))
	m, n, k := p.GemmSize()
	for img := range p.N {
		Im2Col(p, x[img*p.C*p.H*p.W:], col)
		out := NewMat(m, n, got[img*m*n:(img+1)*m*n])
		if err := GemmPar(DefaultGemmConfig(), out, NewMat(m, k, w), NewMat(k, n, col), 1, 0, 1); err != nil {
			t.Fatal(err)
		}
	}
	if d := maxAbsDiff(want, got); d > 1e-4 {
		t.Fatalf("max abs diff %g", d)
	}
}

func TestCol2ImIsAdjoint(t *testing.T) {
	t.Parallel()

	p := testProblem()
	x := make([]float32, p.C*p.H*p.W)
	c := make([]float32, ColElems(p))
	fillRand(x, 5)
	fillRand(c, 6)

	col := make([]float32, len(c))
	Im2Col(p, x, col)
	back := make([]float32, len(x))
	Col2Im(p, c, back)

	var lhs, rhs float64
	for i := range col {
		lhs += float64(col[i]) * float64(c[i])
	}
	for i := range x {
		rhs += float64(x[i]) * float64(back[i])
	}
	if math.Abs(lhs-rhs) > 1e-3 {
		t.Fatalf("<im2col(x), c> = %g, <x, col2im(c)> = %g", lhs, rhs)
	}
}

func TestDirectBackwardIsAdjoint(t *testing.T) {
	t.Parallel()

	p := testProblem()
	p.C, p.K, p.Groups = 4, 6, 2
	x := make([]float32, p.InputElems())
	w := make([]float32, p.FilterElems())
	dy := make([]float32, p.OutputElems())
	fillRand(x, 7)
	fillRand(w, 8)
	fillRand(dy, 9)

	y := make([]float32, p.OutputElems())
	DirectForward(p, x, w, nil, y)
	dx := make([]float32, p.InputElems())
	DirectBackwardData(p, dy, w, dx)
	dw := make([]float32, p.FilterElems())
	DirectBackwardWeights(p, x, dy, dw)

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}
	// <conv(x,w), dy> is bilinear, so it equals both <x, dx> and <w, dw>.
	ref := dot(y, dy)
	if math.Abs(ref-dot(x, dx)) > 1e-3 {
		t.Fatalf("backward data: %g vs %g", ref, dot(x, dx))
	}
	if math.Abs(ref-dot(w, dw)) > 1e-3 {
		t.Fatalf("backward weights: %g vs %g", ref, dot(w, dw))
	}
}

func TestBias(t *testing.T) {
	t.Parallel()

	p := problem.Problem{N: 1, C: 1, H: 2, W: 2, K: 2, Y: 1, X: 1, Bias: true}.WithDefaults()
	x := []float32{1, 2, 3, 4}
	w := []float32{1, 2}
	bias := []float32{10, 20}
	y := make([]float32, p.OutputElems())
	DirectForward(p, x, w, bias, y)
	want := []float32{11, 12, 13, 14, 22, 24, 26, 28}
	if maxAbsDiff(want, y) != 0 {
		t.Fatalf("got %v, want %v", y, want)
	}

	y2 := make([]float32, p.OutputElems())
	AddBias(p, y2, bias)
	if y2[0] != 10 || y2[7] != 20 {
		t.Fatalf("AddBias: %v", y2)
	}
}

func TestPointwiseMatchesDirect(t *testing.T) {
	t.Parallel()

	p := problem.Problem{N: 2, C: 8, H: 5, W: 7, K: 12, Y: 1, X: 1}.WithDefaults()
	x := make([]float32, p.InputElems())
	w := make([]float32, p.FilterElems())
	fillRand(x, 10)
	fillRand(w, 11)

	want := make([]float32, p.OutputElems())
	DirectForward(p, x, w, nil, want)

	for _, cfg := range []PointwiseConfig{{4, 16, 1}, {12, 64, 4}, {1, 1, 2}} {
		got := make([]float32, p.OutputElems())
		if err := PointwiseForward(p, cfg, x, w, got); err != nil {
			t.Fatalf("%+v: %v", cfg, err)
		}
		if d := maxAbsDiff(want, got); d > 1e-4 {
			t.Fatalf("%+v: max abs diff %g", cfg, d)
		}
	}

	if err := PointwiseForward(p, PointwiseConfig{4, 16, 3}, x, w, want); err == nil {
		t.Fatal("expected error for UnrollC not dividing C")
	}
	if err := PointwiseForward(testProblem(), PointwiseConfig{1, 1, 1}, x, w, want); err == nil {
		t.Fatal("expected error for non-1x1 problem")
	}
}

func TestRounding(t *testing.T) {
	t.Parallel()

	if Rounder(problem.FP32) != nil {
		t.Fatal("FP32 should not round")
	}
	v := float32(1.0009765625 + 1e-6) // just above 1 + 2^-10
	if got := Rounder(problem.FP16)(v); got != 1.0009765625 {
		t.Fatalf("fp16 round: %v", got)
	}
	if got := Rounder(problem.BF16)(1.0078125 + 1e-4); got != 1.0078125 {
		t.Fatalf("bf16 truncate: %v", got)
	}
	nan := Rounder(problem.BF16)(float32(math.NaN()))
	if !math.IsNaN(float64(nan)) {
		t.Fatal("bf16 should keep NaN")
	}

	buf := []float32{1.0078125 + 1e-4, 2}
	RoundSlice(problem.BF16, buf)
	if buf[0] != 1.0078125 || buf[1] != 2 {
		t.Fatalf("RoundSlice: %v", buf)
	}
}
