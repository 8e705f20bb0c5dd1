package solver

import (
	"time"

	"github.com/pkg/errors"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/problem"
)

// Status is the outcome of building a Solution.
type Status int

const (
	StatusSuccess Status = iota
	StatusUnsupported
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnsupported:
		return "unsupported"
	default:
		return "failed"
	}
}

// KernelInfo describes one kernel launch of a Solution.
type KernelInfo struct {
	KernelFile  string `json:"kernel_file"`
	KernelName  string `json:"kernel_name"`
	CompOptions string `json:"comp_options,omitempty"`
	LocalWork   []int  `json:"local_work,omitempty"`
	GlobalWork  []int  `json:"global_work,omitempty"`
}

// InvokeArgs binds buffers to tensor roles for one launch. Bot is read, Top
// is written in forward and backward-data, Wei is written in
// backward-weights.
type InvokeArgs struct {
	Bot       []float32
	Top       []float32
	Wei       []float32
	Bias      []float32
	Workspace []float32
}

// Invoker runs a built Solution.
type Invoker func(args InvokeArgs) error

// Solution is a ready-to-run artifact for one problem.
type Solution struct {
	Solver             string       `json:"solver"`
	Status             Status       `json:"status"`
	ConstructionParams []KernelInfo `json:"construction_params"`
	// WorkspaceSize is in bytes.
	WorkspaceSize int     `json:"workspace_size"`
	PerfConfig    string  `json:"perf_config,omitempty"`
	Invoker       Invoker `json:"-"`
}

// Succeeded reports the status only. A usable Solution also needs
// construction params, which dispatch checks.
func (s Solution) Succeeded() bool { return s.Status == StatusSuccess }

// Run launches the solution on h and returns the measured time.
func (s Solution) Run(h *device.Handle, args InvokeArgs) (time.Duration, error) {
	if s.Invoker == nil {
		return 0, internal(s.Solver, errors.New("solution has no invoker"))
	}
	return h.Time(func() error { return s.Invoker(args) })
}

// RoleBuffers maps the problem tensors to (top, bot, wei) for a direction:
//
//	forward:          bot = x,  top = y,  wei = w
//	backward data:    bot = dy, top = dx, wei = w
//	backward weights: bot = dy, top = x,  wei = dw
func RoleBuffers(dir problem.Direction, b *device.Buffers) (top, bot, wei []float32) {
	if b == nil {
		return nil, nil, nil
	}
	if dir == problem.Forward {
		return b.Y, b.X, b.W
	}
	return b.X, b.Y, b.W
}

// ArgsFor builds InvokeArgs for running a solution of dir on b.
func ArgsFor(dir problem.Direction, b *device.Buffers) InvokeArgs {
	top, bot, wei := RoleBuffers(dir, b)
	args := InvokeArgs{Top: top, Bot: bot, Wei: wei}
	if b != nil {
		args.Bias = b.Bias
		args.Workspace = b.Workspace
	}
	return args
}
