// Package mathx holds small numeric helpers for converting between physical and device units.
package mathx

import "math"

// Round rounds x to the nearest "unit" (0.1 for tenth, 0.01 for hundredth, and so on).
// Halves round away from zero.
func Round(x, unit float64) float64 {
	return math.Round(x/unit) * unit
}

// ToCounts converts a physical quantity to integer device counts
// given a scale in counts per physical unit
func ToCounts(x, scale float64) int32 {
	return int32(math.Round(x * scale))
}

// FromCounts converts integer device counts to a physical quantity
func FromCounts(c int32, scale float64) float64 {
	return float64(c) / scale
}
