package device

import (
	"fmt"
	"math/rand/v2"

	"github.com/samcharles93/convtune/internal/problem"
)

// Float32Bytes is the element size of every buffer on this device. Reduced
// precision types are stored widened and rounded by the kernels.
const Float32Bytes = 4

// Buffers holds the tensors of one convolution problem. Which of them are
// read and which are written depends on the direction.
type Buffers struct {
	X         []float32
	W         []float32
	Y         []float32
	Bias      []float32
	Workspace []float32
}

// Alloc sizes buffers for p. workspaceBytes is rounded up to whole elements;
// zero leaves Workspace nil.
func Alloc(p problem.Problem, workspaceBytes int) (*Buffers, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if workspaceBytes < 0 {
		return nil, fmt.Errorf("negative workspace size %d", workspaceBytes)
	}
	b := &Buffers{
		X: make([]float32, p.InputElems()),
		W: make([]float32, p.FilterElems()),
		Y: make([]float32, p.OutputElems()),
	}
	if p.Bias {
		b.Bias = make([]float32, p.K)
	}
	if workspaceBytes > 0 {
		b.Workspace = make([]float32, (workspaceBytes+Float32Bytes-1)/Float32Bytes)
	}
	return b, nil
}

// WorkspaceBytes is the usable size of the workspace buffer.
func (b *Buffers) WorkspaceBytes() int {
	return len(b.Workspace) * Float32Bytes
}

// FillRandom fills every buffer with values in [-1, 1) from a seeded source so
// repeated runs see identical data.
func (b *Buffers) FillRandom(seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, buf := range [][]float32{b.X, b.W, b.Y, b.Bias} {
		for i := range buf {
			buf[i] = rng.Float32()*2 - 1
		}
	}
}
