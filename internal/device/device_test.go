package device

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/convtune/internal/problem"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	info := Detect()
	require.Positive(t, info.CPUs)
	require.NotEmpty(t, info.GoArch)
	require.GreaterOrEqual(t, info.SIMDWidth(), 1)

	name := info.Name()
	require.True(t, strings.HasPrefix(name, info.GoOS+"-"+info.GoArch+"-"), name)
	require.Equal(t, name, Detect().Name())
}

func TestNameAndFeatures(t *testing.T) {
	t.Parallel()

	info := Info{GoOS: "linux", GoArch: "amd64", CPUs: 8, Features: map[string]bool{"AVX": true, "AVX2": true, "FMA": false}}
	require.Equal(t, "linux-amd64-avx2-8c", info.Name())
	require.Equal(t, 8, info.SIMDWidth())
	require.Equal(t, []string{"AVX", "AVX2"}, info.FeatureList())
}

func TestAlloc(t *testing.T) {
	t.Parallel()

	p := problem.Problem{N: 2, C: 3, H: 5, W: 5, K: 4, Y: 3, X: 3, Bias: true}.WithDefaults()
	b, err := Alloc(p, 10)
	require.NoError(t, err)
	require.Len(t, b.X, 2*3*5*5)
	require.Len(t, b.W, 4*3*3*3)
	require.Len(t, b.Y, 2*4*3*3)
	require.Len(t, b.Bias, 4)
	require.Equal(t, 12, b.WorkspaceBytes())

	b2, err := Alloc(p, 0)
	require.NoError(t, err)
	require.Nil(t, b2.Workspace)

	_, err = Alloc(problem.Problem{}, 0)
	require.ErrorIs(t, err, problem.ErrInvalidProblem)
}

func TestFillRandomIsSeeded(t *testing.T) {
	t.Parallel()

	p := problem.Problem{N: 1, C: 2, H: 4, W: 4, K: 2, Y: 1, X: 1}.WithDefaults()
	a, _ := Alloc(p, 0)
	b, _ := Alloc(p, 0)
	a.FillRandom(7)
	b.FillRandom(7)
	require.Equal(t, a.X, b.X)
	for _, v := range a.W {
		require.GreaterOrEqual(t, v, float32(-1))
		require.Less(t, v, float32(1))
	}
}

func TestHandleTime(t *testing.T) {
	t.Parallel()

	h := NewHandle(Detect())
	d, err := h.Time(func() error { return nil })
	require.NoError(t, err)
	require.Zero(t, d)

	h.EnableProfiling(true)
	require.True(t, h.Profiling())
	_, err = h.Time(func() error { return nil })
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = h.Time(func() error { return boom })
	require.ErrorIs(t, err, boom)

	_, err = h.Time(func() error { panic("bad index") })
	require.ErrorContains(t, err, "bad index")
}
