// internal/dsp/fft.go
package dsp

import (
	"errors"
	"math"
	"math/bits"

	"github.com/ColonelBlimp/voxctl/internal/vecmath"
)

// ErrFrameLengthNotPow2 indicates the FFT size must be a power of two
var ErrFrameLengthNotPow2 = errors.New("frame length must be a power of two and at least 2")

// fftTables holds the lookup tables of an iterative radix-2 FFT of size n.
// They are read-only after construction and shared by all workers.
type fftTables struct {
	n      int
	stages int

	// permutation[i] is the input index that lands in slot i before stage 0.
	permutation []int
	// pairs[s][k] are the slots combined into output k at stage s.
	pairs [][][2]int
	// twiddles[i] = exp(-2*pi*i*i/n)
	twiddles []complex128
}

func isPowerOfTwo(n int) bool {
	return n >= 2 && n&(n-1) == 0
}

func newFFTTables(n int) (*fftTables, error) {
	if !isPowerOfTwo(n) {
		return nil, ErrFrameLengthNotPow2
	}
	stages := bits.TrailingZeros(uint(n))

	return &fftTables{
		n:           n,
		stages:      stages,
		permutation: shuffledIndices(n, stages),
		pairs:       indexPairs(n, stages),
		twiddles:    twiddleFactors(n),
	}, nil
}

// shuffledIndices splits the index list into even and odd halves, then
// splits each half again, until the pieces have two elements. The
// concatenation is the bit-reversal permutation.
func shuffledIndices(n, stages int) []int {
	natural := make([]int, n)
	for i := range natural {
		natural[i] = i
	}

	queue := [][]int{natural}
	for iter := 0; iter < stages-1; iter++ {
		next := make([][]int, 0, 2*len(queue))
		for _, sub := range queue {
			next = append(next,
				vecmath.DownsampleInts(sub, 2, 0),
				vecmath.DownsampleInts(sub, 2, 1))
		}
		queue = next
	}

	out := make([]int, 0, n)
	for _, sub := range queue {
		out = append(out, sub...)
	}
	return out
}

// indexPairs builds, for every stage, the two input slots feeding each output
// slot. At stage s the butterflies span 2^s slots; both outputs of a
// butterfly read the same pair, the second with a negated twiddle.
func indexPairs(n, stages int) [][][2]int {
	table := make([][][2]int, stages)
	for s := 0; s < stages; s++ {
		perGroup := 1 << s
		groups := n / (2 * perGroup)
		row := make([][2]int, n)
		k := 0
		for g := 0; g < groups; g++ {
			base := 2 * perGroup * g
			for rep := 0; rep < 2; rep++ {
				for i := 0; i < perGroup; i++ {
					row[k] = [2]int{base + i, base + perGroup + i}
					k++
				}
			}
		}
		table[s] = row
	}
	return table
}

func twiddleFactors(n int) []complex128 {
	tw := make([]complex128, n)
	for i := range tw {
		tw[i] = vecmath.UnitCircle(-2 * math.Pi * float64(i) / float64(n))
	}
	return tw
}

// forward runs every butterfly stage over a, which must already hold the
// permuted input. b is scratch of the same length. The result ends up in
// whichever buffer the last stage wrote, which is returned.
func (t *fftTables) forward(a, b []complex128) []complex128 {
	in, out := a, b
	spacing := t.n
	for s := 0; s < t.stages; s++ {
		spacing /= 2
		row := t.pairs[s]
		for k, p := range row {
			tw := t.twiddles[(k*spacing)%t.n]
			out[k] = in[p[0]] + tw*in[p[1]]
		}
		in, out = out, in
	}
	return in
}
