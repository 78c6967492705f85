package utils

import "math"

// Square returns n*n; math.Pow(n, 2) is slow.
func Square(n float64) float64 {
	return n * n
}

// Float64AlmostEqual reports whether a and b differ by at most epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}
