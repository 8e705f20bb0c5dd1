package problem

import (
	"fmt"
	"strconv"
	"strings"
)

const keyParts = 16

// Key is the problem fingerprint used by the perf-db:
//
//	C-H-W-YxX-K-Ho-Wo-N-PadHxPadW-StrideHxStrideW-DilHxDilW-G-Bias-Layout-Type-Dir
func (p Problem) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d-%d-%d-%dx%d-%d-%d-%d-%d-%dx%d-%dx%d-%dx%d-%d-%d-%s-%s-%s",
		p.C, p.H, p.W, p.Y, p.X, p.K, p.OutH(), p.OutW(), p.N,
		p.PadH, p.PadW, p.StrideH, p.StrideW, p.DilationH, p.DilationW,
		p.Groups, boolDigit(p.Bias), p.Layout, p.DataType, p.Direction.keyCode())
	return b.String()
}

// ParseKey is the inverse of Key. The stored output dims must agree with the
// ones derived from the rest of the key.
func ParseKey(key string) (Problem, error) {
	parts := strings.Split(key, "-")
	if len(parts) != keyParts {
		return Problem{}, fmt.Errorf("%w: %q has %d fields, want %d", ErrInvalidKey, key, len(parts), keyParts)
	}

	var p Problem
	ints := []struct {
		field string
		dst   *int
	}{
		{parts[0], &p.C},
		{parts[1], &p.H},
		{parts[2], &p.W},
		{parts[4], &p.K},
		{parts[7], &p.N},
		{parts[11], &p.Groups},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(f.field)
		if err != nil {
			return Problem{}, fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
		}
		*f.dst = v
	}

	pairs := []struct {
		field string
		h, w  *int
		name  string
	}{
		{parts[3], &p.Y, &p.X, "filter"},
		{parts[8], &p.PadH, &p.PadW, "padding"},
		{parts[9], &p.StrideH, &p.StrideW, "stride"},
		{parts[10], &p.DilationH, &p.DilationW, "dilation"},
	}
	for _, f := range pairs {
		h, w, err := parsePair(f.field)
		if err != nil {
			return Problem{}, fmt.Errorf("%w: %q: %s: %v", ErrInvalidKey, key, f.name, err)
		}
		*f.h, *f.w = h, w
	}

	switch parts[12] {
	case "0":
	case "1":
		p.Bias = true
	default:
		return Problem{}, fmt.Errorf("%w: %q: bias flag %q", ErrInvalidKey, key, parts[12])
	}
	p.Layout = parts[13]

	dt, err := ParseDataType(parts[14])
	if err != nil || parts[14] == "" {
		return Problem{}, fmt.Errorf("%w: %q: data type %q", ErrInvalidKey, key, parts[14])
	}
	p.DataType = dt

	switch parts[15] {
	case "F":
		p.Direction = Forward
	case "B":
		p.Direction = BackwardData
	case "W":
		p.Direction = BackwardWeights
	default:
		return Problem{}, fmt.Errorf("%w: %q: direction %q", ErrInvalidKey, key, parts[15])
	}

	if err := p.Validate(); err != nil {
		return Problem{}, fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	ho, errH := strconv.Atoi(parts[5])
	wo, errW := strconv.Atoi(parts[6])
	if errH != nil || errW != nil || ho != p.OutH() || wo != p.OutW() {
		return Problem{}, fmt.Errorf("%w: %q: output %sx%s does not match derived %dx%d", ErrInvalidKey, key, parts[5], parts[6], p.OutH(), p.OutW())
	}
	return p, nil
}

func parsePair(s string) (int, int, error) {
	a, b, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, fmt.Errorf("missing 'x' in %q", s)
	}
	h, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, err
	}
	w, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, err
	}
	return h, w, nil
}

func boolDigit(b bool) int {
	if b {
		return 1
	}
	return 0
}
