package kernels

import (
	"math"

	"github.com/x448/float16"

	"github.com/samcharles93/convtune/internal/problem"
)

// RoundFunc narrows a float32 to the storage precision of a data type and
// widens it back.
type RoundFunc func(float32) float32

// Rounder returns the RoundFunc for dt, or nil for FP32.
func Rounder(dt problem.DataType) RoundFunc {
	switch dt {
	case problem.FP16:
		return roundFP16
	case problem.BF16:
		return roundBF16
	default:
		return nil
	}
}

func roundFP16(v float32) float32 {
	return float16.Fromfloat32(v).Float32()
}

// roundBF16 truncates the low mantissa half. NaN payloads are kept quiet.
func roundBF16(v float32) float32 {
	bits := math.Float32bits(v)
	if math.IsNaN(float64(v)) {
		return math.Float32frombits(bits | 0x00400000)
	}
	return math.Float32frombits(bits &^ 0xffff)
}

// RoundSlice applies the storage precision of dt to buf in place.
func RoundSlice(dt problem.DataType, buf []float32) {
	round := Rounder(dt)
	if round == nil {
		return
	}
	for i, v := range buf {
		buf[i] = round(v)
	}
}
