package utils

import "math"

// NormEpsilon is the smallest norm used as a divisor during L2 normalization.
// Rows whose norm falls below it are scaled by 1/NormEpsilon instead of producing NaN.
const NormEpsilon = 1e-7

// L2Norm returns the Euclidean length of x.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// NormalizeL2 scales x in place to unit L2 norm, clamping the divisor to NormEpsilon.
func NormalizeL2(x []float32) {
	norm := math.Max(L2Norm(x), NormEpsilon)
	inv := 1.0 / norm
	for i := range x {
		x[i] = float32(float64(x[i]) * inv)
	}
}

// IsUnit reports whether x has unit L2 norm within tol.
func IsUnit(x []float32, tol float64) bool {
	return math.Abs(L2Norm(x)-1) <= tol
}

// FirstNonFinite returns the index of the first NaN or infinite value in x, or -1.
func FirstNonFinite(x []float32) int {
	for i, v := range x {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}
