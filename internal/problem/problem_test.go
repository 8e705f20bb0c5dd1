package problem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func conv3x3() Problem {
	return Problem{
		N: 8, C: 3, H: 32, W: 32,
		K: 64, Y: 3, X: 3,
		PadH: 1, PadW: 1,
	}.WithDefaults()
}

func TestOutputDims(t *testing.T) {
	t.Parallel()

	p := conv3x3()
	require.Equal(t, 32, p.OutH())
	require.Equal(t, 32, p.OutW())

	p.StrideH, p.StrideW = 2, 2
	require.Equal(t, 16, p.OutH())
	require.Equal(t, 16, p.OutW())

	p = conv3x3()
	p.PadH, p.PadW = 0, 0
	p.DilationH, p.DilationW = 2, 2
	require.Equal(t, 28, p.OutH())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, conv3x3().Validate())

	cases := map[string]func(p *Problem){
		"zero batch":     func(p *Problem) { p.N = 0 },
		"bad groups":     func(p *Problem) { p.Groups = 2 },
		"filter too big": func(p *Problem) { p.Y = 40; p.PadH = 0 },
		"unknown layout": func(p *Problem) { p.Layout = "NHWC" },
		"zero stride":    func(p *Problem) { p.StrideW = 0 },
		"negative pad":   func(p *Problem) { p.PadW = -1 },
		"bad direction":  func(p *Problem) { p.Direction = Direction(7) },
		"zero dilation":  func(p *Problem) { p.DilationH = 0 },
		"zero out chans": func(p *Problem) { p.K = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := conv3x3()
			mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidProblem))
		})
	}
}

func TestGemmSizeByDirection(t *testing.T) {
	t.Parallel()

	p := conv3x3()
	m, n, k := p.GemmSize()
	require.Equal(t, [3]int{64, 32 * 32, 27}, [3]int{m, n, k})

	p.Direction = BackwardData
	m, n, k = p.GemmSize()
	require.Equal(t, [3]int{27, 32 * 32, 64}, [3]int{m, n, k})

	p.Direction = BackwardWeights
	m, n, k = p.GemmSize()
	require.Equal(t, [3]int{64, 27, 32 * 32}, [3]int{m, n, k})
}

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()

	p := conv3x3()
	require.Equal(t, "3-32-32-3x3-64-32-32-8-1x1-1x1-1x1-1-0-NCHW-FP32-F", p.Key())

	variants := []Problem{
		p,
		func() Problem { q := p; q.Direction = BackwardWeights; q.Bias = true; return q }(),
		func() Problem { q := p; q.DataType = BF16; q.StrideH = 2; q.DilationW = 3; return q }(),
		func() Problem { q := p; q.C, q.K, q.Groups = 8, 16, 4; q.Direction = BackwardData; return q }(),
	}
	for _, want := range variants {
		got, err := ParseKey(want.Key())
		require.NoError(t, err, want.Key())
		require.Equal(t, want, got)
	}
}

func TestParseKeyRejectsMalformed(t *testing.T) {
	t.Parallel()

	bad := []string{
		"",
		"3-32-32",
		"3-32-32-3x3-64-32-32-8-1x1-1x1-1x1-1-0-NCHW-FP32-Q",
		"3-32-32-3y3-64-32-32-8-1x1-1x1-1x1-1-0-NCHW-FP32-F",
		"3-32-32-3x3-64-31-32-8-1x1-1x1-1x1-1-0-NCHW-FP32-F",
		"3-32-32-3x3-64-32-32-8-1x1-1x1-1x1-1-2-NCHW-FP32-F",
		"3-32-32-3x3-64-32-32-8-1x1-1x1-1x1-1-0-NCHW-FP64-F",
	}
	for _, key := range bad {
		_, err := ParseKey(key)
		require.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	d, err := ParseDirection("wrw")
	require.NoError(t, err)
	require.Equal(t, BackwardWeights, d)
	_, err = ParseDirection("sideways")
	require.Error(t, err)

	dt, err := ParseDataType("half")
	require.NoError(t, err)
	require.Equal(t, FP16, dt)
	_, err = ParseDataType("int8")
	require.Error(t, err)
}
