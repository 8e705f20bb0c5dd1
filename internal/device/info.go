// Package device is the CPU stand-in for an accelerator runtime: it describes
// the host, owns the tensor buffers of a problem and times kernel launches.
package device

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sys/cpu"
)

// Info describes the host the kernels run on.
type Info struct {
	GoVersion string          `json:"go_version" yaml:"go_version"`
	GoOS      string          `json:"go_os" yaml:"go_os"`
	GoArch    string          `json:"go_arch" yaml:"go_arch"`
	CPUs      int             `json:"cpus" yaml:"cpus"`
	Features  map[string]bool `json:"features" yaml:"features"`
}

// Detect reads the runtime and CPU feature flags.
func Detect() Info {
	features := map[string]bool{}
	switch runtime.GOARCH {
	case "amd64", "386":
		features["AVX"] = cpu.X86.HasAVX
		features["AVX2"] = cpu.X86.HasAVX2
		features["FMA"] = cpu.X86.HasFMA
		features["AVX512F"] = cpu.X86.HasAVX512F
		features["AVX512BF16"] = cpu.X86.HasAVX512BF16
		features["AVX512VNNI"] = cpu.X86.HasAVX512VNNI
	case "arm64":
		features["ASIMD"] = cpu.ARM64.HasASIMD
		features["FPHP"] = cpu.ARM64.HasFPHP
		features["ASIMDHP"] = cpu.ARM64.HasASIMDHP
		features["SVE"] = cpu.ARM64.HasSVE
	}
	return Info{
		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		Features:  features,
	}
}

// Has reports a detected feature by name.
func (i Info) Has(feature string) bool {
	return i.Features[feature]
}

// SIMDWidth is the float32 lane count of the widest vector unit found.
func (i Info) SIMDWidth() int {
	switch {
	case i.Has("AVX512F"):
		return 16
	case i.Has("AVX2"), i.Has("AVX"):
		return 8
	case i.Has("ASIMD"):
		return 4
	default:
		return 1
	}
}

// Name is a stable identifier for the perf-db namespace. Tuned configs are
// only meaningful on a host with the same ISA and core count.
func (i Info) Name() string {
	isa := "generic"
	for _, f := range []string{"AVX512F", "AVX2", "AVX", "SVE", "ASIMD"} {
		if i.Has(f) {
			isa = strings.ToLower(f)
			break
		}
	}
	return fmt.Sprintf("%s-%s-%s-%dc", i.GoOS, i.GoArch, isa, i.CPUs)
}

// FeatureList returns the enabled features in sorted order.
func (i Info) FeatureList() []string {
	out := make([]string, 0, len(i.Features))
	for name, ok := range i.Features {
		if ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
