package device

import (
	"fmt"
	"time"
)

// Handle is the execution context kernels are launched on. On the CPU it
// only carries the profiling switch and the host description.
type Handle struct {
	info      Info
	profiling bool
}

func NewHandle(info Info) *Handle {
	return &Handle{info: info}
}

func (h *Handle) Info() Info { return h.info }

// EnableProfiling toggles timing of launches. Measurement callbacks turn it
// on for the duration of one measurement.
func (h *Handle) EnableProfiling(on bool) { h.profiling = on }

func (h *Handle) Profiling() bool { return h.profiling }

// Time runs launch and returns its elapsed wall time. The elapsed time is zero
// when profiling is off. A panic inside launch is reported as an error so a
// broken candidate cannot take the search down.
func (h *Handle) Time(launch func() error) (elapsed time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			elapsed, err = 0, fmt.Errorf("kernel launch panicked: %v", r)
		}
	}()
	start := time.Now()
	if err := launch(); err != nil {
		return 0, err
	}
	if !h.profiling {
		return 0, nil
	}
	return time.Since(start), nil
}
