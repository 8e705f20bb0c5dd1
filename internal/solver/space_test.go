package solver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/convtune/internal/perfconfig"
)

func collect(t *testing.T, sp *Space) []int {
	t.Helper()
	var out []int
	for cfg := range sp.All() {
		out = append(out, bestIndex(t, cfg))
	}
	return out
}

func TestSpaceYieldsValidOnly(t *testing.T) {
	t.Parallel()

	s := &tunableSolver{valid: func(i int) bool { return i%3 == 0 || i >= spareBase }}
	sp, err := NewSpace(s, testProblem(), false)
	require.NoError(t, err)
	require.False(t, sp.Spare())
	require.Equal(t, []int{0, 3, 6}, collect(t, sp))
	require.Equal(t, 3, sp.Count())

	spare, err := NewSpace(s, testProblem(), true)
	require.NoError(t, err)
	require.True(t, spare.Spare())
	require.Equal(t, []int{100, 101, 102}, collect(t, spare))
}

func TestSpaceIsRestartable(t *testing.T) {
	t.Parallel()

	sp, err := NewSpace(&tunableSolver{}, testProblem(), false)
	require.NoError(t, err)
	require.Equal(t, mainSize, sp.Count())
	require.Equal(t, collect(t, sp), collect(t, sp))
}

func TestSpaceYieldsIndependentCopies(t *testing.T) {
	t.Parallel()

	sp, err := NewSpace(&tunableSolver{}, testProblem(), false)
	require.NoError(t, err)

	var kept []perfconfig.Any
	for cfg := range sp.All() {
		kept = append(kept, cfg)
	}
	_, err = kept[0].SetNextValue()
	require.NoError(t, err)
	require.Equal(t, 1, bestIndex(t, kept[0]))
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, collect(t, sp))
	require.Equal(t, 1, bestIndex(t, kept[1]))
}

func TestSpaceEarlyBreak(t *testing.T) {
	t.Parallel()

	sp, err := NewSpace(&tunableSolver{}, testProblem(), false)
	require.NoError(t, err)
	n := 0
	for range sp.All() {
		n++
		if n == 2 {
			break
		}
	}
	require.Equal(t, 2, n)
}

func TestSpaceEmpty(t *testing.T) {
	t.Parallel()

	sp, err := NewSpace(&tunableSolver{valid: func(int) bool { return false }}, testProblem(), false)
	require.NoError(t, err)
	require.Zero(t, sp.Count())
}

// plainStartSolver starts its search on a config that cannot be walked.
type plainStartSolver struct{ tunableSolver }

func (*plainStartSolver) GetGenericSearchStart(bool) perfconfig.Any {
	return perfconfig.Of(&strConfig{Str: "x"})
}

// emptyStartSolver has no search start at all.
type emptyStartSolver struct{ tunableSolver }

func (*emptyStartSolver) GetGenericSearchStart(bool) perfconfig.Any { return perfconfig.Empty() }

func TestNewSpaceRejectsUntunableStart(t *testing.T) {
	t.Parallel()

	_, err := NewSpace(&plainStartSolver{}, testProblem(), false)
	require.ErrorIs(t, err, perfconfig.ErrNotTunable)

	_, err = NewSpace(&emptyStartSolver{}, testProblem(), false)
	require.ErrorIs(t, err, perfconfig.ErrNotTunable)
}
