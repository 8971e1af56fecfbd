// internal/vecmath/vector.go
package vecmath

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const lengthMismatch = "vecmath: slice lengths do not match"

func checkLen(a, b int) {
	if a != b {
		panic(lengthMismatch)
	}
}

// MulTo sets dst = a * b element-wise and returns dst.
func MulTo(dst, a, b []float64) []float64 {
	return floats.MulTo(dst, a, b)
}

// Scale multiplies every element of dst by c, in place.
func Scale(c float64, dst []float64) {
	floats.Scale(c, dst)
}

// AddConst adds c to every element of dst, in place.
func AddConst(c float64, dst []float64) {
	floats.AddConst(c, dst)
}

// Dot returns the inner product of a and b.
func Dot(a, b []float64) float64 {
	return floats.Dot(a, b)
}

// Max returns the largest element of s. It panics if s is empty.
func Max(s []float64) float64 {
	return floats.Max(s)
}

// ArgMax32 returns the index of the first maximal element of s, a model
// output. It panics if s is empty.
func ArgMax32(s []float32) int {
	if len(s) == 0 {
		panic("vecmath: zero length slice")
	}
	idx := 0
	for i, v := range s {
		if v > s[idx] {
			idx = i
		}
	}
	return idx
}

// Maximum raises every element of dst to at least c, in place.
func Maximum(dst []float64, c float64) {
	for i, v := range dst {
		if v < c {
			dst[i] = c
		}
	}
}

// MinimumOf sets dst[i] = min(a[i], b[i]) and returns dst.
func MinimumOf(dst, a, b []float64) []float64 {
	checkLen(len(dst), len(a))
	checkLen(len(a), len(b))
	for i := range dst {
		dst[i] = math.Min(a[i], b[i])
	}
	return dst
}

// Linspace returns n evenly spaced values over [start, end], endpoints
// included. n == 1 yields {start}, n == 0 an empty slice.
func Linspace(start, end float64, n int) []float64 {
	switch {
	case n < 0:
		panic("vecmath: negative length")
	case n == 0:
		return []float64{}
	case n == 1:
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, end)
}

// Diff returns the differences between neighbouring elements,
// out[i] = s[i+1] - s[i]. The result has len(s)-1 elements.
func Diff(s []float64) []float64 {
	if len(s) < 2 {
		return []float64{}
	}
	out := make([]float64, len(s)-1)
	return floats.SubTo(out, s[1:], s[:len(s)-1])
}

// OuterDiff returns the matrix m[i][j] = a[i] - b[j].
func OuterDiff(a, b []float64) [][]float64 {
	out := make([][]float64, len(a))
	for i, av := range a {
		row := make([]float64, len(b))
		for j, bv := range b {
			row[j] = av - bv
		}
		out[i] = row
	}
	return out
}

// Flip returns a reversed copy of s.
func Flip(s []float64) []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	floats.Reverse(out)
	return out
}

// ReflectPadTo mirrors s by pad samples at both ends into dst, without
// repeating the edge sample: [s3 s2 s1 | s0 s1 s2 s3 ... ]. dst must have
// len(s)+2*pad elements and pad must be smaller than len(s).
func ReflectPadTo(dst, s []float64, pad int) []float64 {
	n := len(s)
	checkLen(len(dst), n+2*pad)
	if pad >= n {
		panic("vecmath: reflect padding exceeds signal length")
	}
	copy(dst[pad:pad+n], s)
	for i := 0; i < pad; i++ {
		dst[pad-1-i] = s[i+1]
		dst[pad+n+i] = s[n-2-i]
	}
	return dst
}

// DownsampleTo keeps every factor-th element of s starting at offset,
// writing into dst and returning the filled prefix.
func DownsampleTo(dst, s []float64, factor, offset int) []float64 {
	if factor < 1 {
		panic("vecmath: downsample factor must be positive")
	}
	n := 0
	for i := offset; i < len(s) && n < len(dst); i += factor {
		dst[n] = s[i]
		n++
	}
	return dst[:n]
}

// DownsampleInts keeps every factor-th index of s starting at offset.
func DownsampleInts(s []int, factor, offset int) []int {
	if factor < 1 {
		panic("vecmath: downsample factor must be positive")
	}
	var out []int
	for i := offset; i < len(s); i += factor {
		out = append(out, s[i])
	}
	return out
}

// Float64s widens a float32 slice into dst and returns dst.
func Float64s(dst []float64, s []float32) []float64 {
	checkLen(len(dst), len(s))
	for i, v := range s {
		dst[i] = float64(v)
	}
	return dst
}

// Flatten concatenates the rows of m into a float32 slice, row-major.
func Flatten(m [][]float64) []float32 {
	size := 0
	for _, row := range m {
		size += len(row)
	}
	out := make([]float32, 0, size)
	for _, row := range m {
		for _, v := range row {
			out = append(out, float32(v))
		}
	}
	return out
}

// MaxMatrix returns the largest element of m. It panics if m has no elements.
func MaxMatrix(m [][]float64) float64 {
	best := math.Inf(-1)
	seen := false
	for _, row := range m {
		if len(row) == 0 {
			continue
		}
		if v := Max(row); v > best || !seen {
			best = v
			seen = true
		}
	}
	if !seen {
		panic("vecmath: zero length matrix")
	}
	return best
}

// ConvolveComplex returns the full linear convolution of a and b,
// with length len(a)+len(b)-1.
func ConvolveComplex(a, b []complex128) []complex128 {
	if len(a) == 0 || len(b) == 0 {
		return []complex128{}
	}
	out := make([]complex128, len(a)+len(b)-1)
	for i, av := range a {
		for j, bv := range b {
			out[i+j] += av * bv
		}
	}
	return out
}

// ProdComplex returns the product of all elements of s. The empty product is 1.
func ProdComplex(s []complex128) complex128 {
	p := complex(1, 0)
	for _, v := range s {
		p *= v
	}
	return p
}

// RealParts returns the real component of every element of s.
func RealParts(s []complex128) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = real(v)
	}
	return out
}

// ScaleComplex multiplies every element of dst by c, in place.
func ScaleComplex(c complex128, dst []complex128) {
	for i := range dst {
		dst[i] *= c
	}
}

// MagnitudesTo writes |z[i]| into dst for every i < len(dst). z must hold at
// least len(dst) elements; the tail of z is ignored.
func MagnitudesTo(dst []float64, z []complex128) []float64 {
	if len(z) < len(dst) {
		panic(lengthMismatch)
	}
	for i := range dst {
		dst[i] = Abs(z[i])
	}
	return dst
}
