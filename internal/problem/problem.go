package problem

import (
	"errors"
	"fmt"
	"strings"
)

// Direction selects which tensors a convolution reads and writes.
type Direction int

const (
	Forward Direction = iota
	BackwardData
	BackwardWeights
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "fwd"
	case BackwardData:
		return "bwd"
	case BackwardWeights:
		return "wrw"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// keyCode is the single letter used for the direction in problem keys.
func (d Direction) keyCode() string {
	switch d {
	case Forward:
		return "F"
	case BackwardData:
		return "B"
	default:
		return "W"
	}
}

// ParseDirection accepts the short names used on the command line.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fwd", "forward", "f", "1":
		return Forward, nil
	case "bwd", "backward", "backward-data", "b", "2":
		return BackwardData, nil
	case "wrw", "weights", "backward-weights", "w", "4":
		return BackwardWeights, nil
	default:
		return Forward, fmt.Errorf("unknown direction %q (expected fwd, bwd or wrw)", s)
	}
}

// DataType is the element type of every tensor of the problem.
type DataType int

const (
	FP32 DataType = iota
	FP16
	BF16
)

func (t DataType) String() string {
	switch t {
	case FP32:
		return "FP32"
	case FP16:
		return "FP16"
	case BF16:
		return "BF16"
	default:
		return fmt.Sprintf("dtype(%d)", int(t))
	}
}

// ParseDataType accepts "fp32", "fp16" and "bf16" in any case.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FP32", "FLOAT", "F32", "":
		return FP32, nil
	case "FP16", "HALF", "F16":
		return FP16, nil
	case "BF16", "BFP16", "BFLOAT16":
		return BF16, nil
	default:
		return FP32, fmt.Errorf("unknown data type %q (expected fp32, fp16 or bf16)", s)
	}
}

// LayoutNCHW is the only tensor layout the CPU device understands.
const LayoutNCHW = "NCHW"

var (
	ErrInvalidProblem = errors.New("problem: invalid descriptor")
	ErrInvalidKey     = errors.New("problem: malformed key")
)

// Problem describes one 2-D convolution instance. It is a plain value:
// everything that receives a Problem receives its own copy.
type Problem struct {
	N, C, H, W int
	K, Y, X    int

	PadH, PadW           int
	StrideH, StrideW     int
	DilationH, DilationW int
	Groups               int

	Bias      bool
	DataType  DataType
	Layout    string
	Direction Direction
}

// WithDefaults fills zero strides, dilations, groups and layout with their
// neutral values.
func (p Problem) WithDefaults() Problem {
	if p.StrideH == 0 {
		p.StrideH = 1
	}
	if p.StrideW == 0 {
		p.StrideW = 1
	}
	if p.DilationH == 0 {
		p.DilationH = 1
	}
	if p.DilationW == 0 {
		p.DilationW = 1
	}
	if p.Groups == 0 {
		p.Groups = 1
	}
	if p.Layout == "" {
		p.Layout = LayoutNCHW
	}
	return p
}

func (p Problem) Validate() error {
	switch {
	case p.N <= 0 || p.C <= 0 || p.H <= 0 || p.W <= 0:
		return fmt.Errorf("%w: input dims must be positive (n=%d c=%d h=%d w=%d)", ErrInvalidProblem, p.N, p.C, p.H, p.W)
	case p.K <= 0 || p.Y <= 0 || p.X <= 0:
		return fmt.Errorf("%w: filter dims must be positive (k=%d y=%d x=%d)", ErrInvalidProblem, p.K, p.Y, p.X)
	case p.PadH < 0 || p.PadW < 0:
		return fmt.Errorf("%w: negative padding", ErrInvalidProblem)
	case p.StrideH <= 0 || p.StrideW <= 0:
		return fmt.Errorf("%w: strides must be positive", ErrInvalidProblem)
	case p.DilationH <= 0 || p.DilationW <= 0:
		return fmt.Errorf("%w: dilations must be positive", ErrInvalidProblem)
	case p.Groups <= 0 || p.C%p.Groups != 0 || p.K%p.Groups != 0:
		return fmt.Errorf("%w: groups=%d must divide c=%d and k=%d", ErrInvalidProblem, p.Groups, p.C, p.K)
	case p.Layout != LayoutNCHW:
		return fmt.Errorf("%w: unsupported layout %q", ErrInvalidProblem, p.Layout)
	case p.Direction < Forward || p.Direction > BackwardWeights:
		return fmt.Errorf("%w: unknown direction %d", ErrInvalidProblem, int(p.Direction))
	case p.DataType < FP32 || p.DataType > BF16:
		return fmt.Errorf("%w: unknown data type %d", ErrInvalidProblem, int(p.DataType))
	case p.OutH() <= 0 || p.OutW() <= 0:
		return fmt.Errorf("%w: empty output %dx%d", ErrInvalidProblem, p.OutH(), p.OutW())
	}
	return nil
}

// OutH is the output height Ho.
func (p Problem) OutH() int {
	return outDim(p.H, p.Y, p.PadH, p.StrideH, p.DilationH)
}

// OutW is the output width Wo.
func (p Problem) OutW() int {
	return outDim(p.W, p.X, p.PadW, p.StrideW, p.DilationW)
}

func outDim(in, filter, pad, stride, dilation int) int {
	if stride <= 0 || dilation <= 0 {
		return 0
	}
	span := (filter-1)*dilation + 1
	if in+2*pad < span {
		return 0
	}
	return (in+2*pad-span)/stride + 1
}

func (p Problem) InputElems() int  { return p.N * p.C * p.H * p.W }
func (p Problem) FilterElems() int { return p.K * (p.C / max(p.Groups, 1)) * p.Y * p.X }
func (p Problem) OutputElems() int { return p.N * p.K * p.OutH() * p.OutW() }

func (p Problem) IsFp32() bool { return p.DataType == FP32 }

// Is1x1 reports a pointwise convolution: 1x1 filter, unit stride and
// dilation, no padding.
func (p Problem) Is1x1() bool {
	return p.Y == 1 && p.X == 1 &&
		p.PadH == 0 && p.PadW == 0 &&
		p.StrideH == 1 && p.StrideW == 1 &&
		p.DilationH == 1 && p.DilationW == 1
}

// MACs is the number of multiply-accumulates of the direct algorithm.
func (p Problem) MACs() int64 {
	cpg := int64(p.C / max(p.Groups, 1))
	return int64(p.N) * int64(p.K) * int64(p.OutH()) * int64(p.OutW()) * cpg * int64(p.Y) * int64(p.X)
}

// GemmSize returns the implicit-GEMM shape for a single image.
//
//	forward:          M = K,     N = Ho*Wo, K = C*Y*X
//	backward data:    M = C*Y*X, N = Ho*Wo, K = K
//	backward weights: M = K,     N = C*Y*X, K = Ho*Wo
func (p Problem) GemmSize() (m, n, k int) {
	cyx := p.C / max(p.Groups, 1) * p.Y * p.X
	hw := p.OutH() * p.OutW()
	switch p.Direction {
	case BackwardData:
		return cyx, hw, p.K
	case BackwardWeights:
		return p.K, cyx, hw
	default:
		return p.K, hw, cyx
	}
}

func (p Problem) String() string {
	return p.Key()
}
