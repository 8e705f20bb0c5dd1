package perfconfig

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// The Next* helpers advance a single field of an odometer. Each returns true
// when the field wrapped to its minimum, i.e. the carry has to propagate to
// the next field. A value outside the range restarts at the minimum and also
// reports a wrap.

// NextTwoPower steps v through the powers of two in [lo, hi].
func NextTwoPower(v *int, lo, hi int) bool {
	if *v < lo || *v >= hi || !isPow2(*v) {
		*v = lo
		return true
	}
	*v *= 2
	return false
}

// NextLinear steps v through every integer in [lo, hi].
func NextLinear(v *int, lo, hi int) bool {
	if *v < lo || *v >= hi {
		*v = lo
		return true
	}
	*v++
	return false
}

// NextInSet steps v through set in order.
func NextInSet(v *int, set []int) bool {
	for i, s := range set {
		if s == *v && i+1 < len(set) {
			*v = set[i+1]
			return false
		}
	}
	*v = set[0]
	return true
}

// NextFlag steps v through false, true.
func NextFlag(v *bool) bool {
	if !*v {
		*v = true
		return false
	}
	*v = false
	return true
}

func IsTwoPower(v, lo, hi int) bool {
	return v >= lo && v <= hi && isPow2(v)
}

func IsLinear(v, lo, hi int) bool {
	return v >= lo && v <= hi
}

func InSet(v int, set []int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func isPow2(v int) bool {
	return v > 0 && v&(v-1) == 0
}

// NextPow2 returns the smallest power of two >= v.
func NextPow2(v int) int {
	p := 1
	for p < v {
		p <<= 1
	}
	return p
}

const fieldSep = ","

// EncodeFields renders an ordered list of integral fields.
func EncodeFields(vals ...int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, fieldSep)
}

// DecodeFields parses exactly n fields written by EncodeFields.
func DecodeFields(s string, n int) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.Wrap(ErrMalformed, "empty input")
	}
	parts := strings.Split(s, fieldSep)
	if len(parts) != n {
		return nil, errors.Wrapf(ErrMalformed, "%q has %d fields, want %d", s, len(parts), n)
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "field %d of %q: %v", i, s, err)
		}
		out[i] = v
	}
	return out, nil
}

// BoolField encodes a flag as 0 or 1.
func BoolField(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ParseBoolField accepts only 0 and 1.
func ParseBoolField(v int) (bool, error) {
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.Wrapf(ErrMalformed, "flag value %d", v)
	}
}
