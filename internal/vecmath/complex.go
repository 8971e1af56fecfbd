// internal/vecmath/complex.go

// Package vecmath holds the scalar complex helpers and element-wise array
// operations shared by the DSP stages.
//
// Complex values are Go's complex128, so they live on the stack and never
// allocate. Real array operations delegate to gonum/floats where it has an
// equivalent; like gonum, every function panics when slice lengths do not
// match, since a mismatch is always a programming error.
package vecmath

import "math"

// Real lifts a real number into the complex plane.
func Real(x float64) complex128 {
	return complex(x, 0)
}

// Abs returns |z| without intermediate overflow.
func Abs(z complex128) float64 {
	return math.Hypot(real(z), imag(z))
}

// Exp returns e^z using Euler's identity: e^(a+ib) = e^a (cos b + i sin b).
func Exp(z complex128) complex128 {
	ea := math.Exp(real(z))
	s, c := math.Sincos(imag(z))
	return complex(ea*c, ea*s)
}

// UnitCircle returns e^(i*theta).
func UnitCircle(theta float64) complex128 {
	s, c := math.Sincos(theta)
	return complex(c, s)
}

// Div divides a by b. Division by zero yields the IEEE result (Inf/NaN
// components) rather than panicking.
func Div(a, b complex128) complex128 {
	return a / b
}

// Reciprocal returns 1/z.
func Reciprocal(z complex128) complex128 {
	return 1 / z
}
