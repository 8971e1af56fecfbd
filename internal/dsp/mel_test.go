package dsp

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

const testMelBins = 80

func createTestMel(t *testing.T) *MelCompressor {
	t.Helper()
	m, err := NewMelCompressor(MelConfig{
		SampleRate:  testDecimatedRate,
		FrameLength: testFrameLength,
		Bins:        testMelBins,
		MinHz:       0,
		MaxHz:       testCutoff,
	})
	if err != nil {
		t.Fatalf("NewMelCompressor: %v", err)
	}
	return m
}

func TestHzToMel_Slaney(t *testing.T) {
	tests := []struct {
		hz, mel float64
	}{
		{0, 0},
		{200, 3},
		{1000, 15},
		{6400, 42},
	}
	for _, tt := range tests {
		if got := HzToMel(tt.hz); !scalar.EqualWithinAbs(got, tt.mel, 1e-12) {
			t.Errorf("HzToMel(%v) = %v, want %v", tt.hz, got, tt.mel)
		}
		if got := MelToHz(tt.mel); !scalar.EqualWithinAbs(got, tt.hz, 1e-9) {
			t.Errorf("MelToHz(%v) = %v, want %v", tt.mel, got, tt.hz)
		}
	}
}

func TestMelToHz_RoundTrip(t *testing.T) {
	for _, hz := range floats.Span(make([]float64, 50), 10, 8000) {
		if got := MelToHz(HzToMel(hz)); !scalar.EqualWithinRel(got, hz, 1e-12) {
			t.Errorf("MelToHz(HzToMel(%v)) = %v", hz, got)
		}
	}
}

func TestNewMelCompressor_InvalidConfig(t *testing.T) {
	valid := MelConfig{SampleRate: 8820, FrameLength: 1024, Bins: 80, MinHz: 0, MaxHz: 4410}

	tests := []struct {
		name   string
		modify func(*MelConfig)
		want   error
	}{
		{"zero rate", func(c *MelConfig) { c.SampleRate = 0 }, ErrInvalidSampleRate},
		{"bad frame", func(c *MelConfig) { c.FrameLength = 1000 }, ErrFrameLengthNotPow2},
		{"zero bins", func(c *MelConfig) { c.Bins = 0 }, ErrInvalidMelRange},
		{"negative min", func(c *MelConfig) { c.MinHz = -1 }, ErrInvalidMelRange},
		{"min above max", func(c *MelConfig) { c.MinHz = 3000; c.MaxHz = 2000 }, ErrInvalidMelRange},
		{"max above nyquist", func(c *MelConfig) { c.MaxHz = 5000 }, ErrInvalidMelRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			if _, err := NewMelCompressor(cfg); !errors.Is(err, tt.want) {
				t.Errorf("NewMelCompressor() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMelFilterBank_Shape(t *testing.T) {
	bank := createTestMel(t).Bank()
	r, c := bank.Dims()
	if r != testMelBins || c != testFrameLength/2+1 {
		t.Errorf("bank dims = (%d, %d), want (%d, %d)", r, c, testMelBins, testFrameLength/2+1)
	}
	if mat.Min(bank) < 0 {
		t.Errorf("bank has negative weight %v", mat.Min(bank))
	}
}

func TestMelFilterBank_EqualEnergy(t *testing.T) {
	bank := createTestMel(t).Bank()
	binHz := testDecimatedRate / testFrameLength

	// Slaney normalisation gives every triangle unit area in Hz; the sampled
	// area differs from 1 only by the discretisation of each triangle's kinks.
	for b := 0; b < testMelBins; b++ {
		area := floats.Sum(mat.Row(nil, b, bank)) * binHz
		if !scalar.EqualWithinAbs(area, 1, 0.05) {
			t.Errorf("row %d area = %v, want ~1", b, area)
		}
	}
}

func TestMelFilterBank_RowsAreTriangles(t *testing.T) {
	bank := createTestMel(t).Bank()
	for b := 0; b < testMelBins; b++ {
		row := mat.Row(nil, b, bank)
		peak := floats.MaxIdx(row)
		for j := 1; j <= peak; j++ {
			if row[j] < row[j-1] {
				t.Fatalf("row %d not rising before peak at %d", b, j)
			}
		}
		for j := peak + 1; j < len(row); j++ {
			if row[j] > row[j-1] {
				t.Fatalf("row %d not falling after peak at %d", b, j)
			}
		}
	}
}

func TestMelCompressor_ClipsToDynamicRange(t *testing.T) {
	m := createTestMel(t)
	r := rand.New(rand.NewPCG(3, 4))

	spec := make([][]float64, 40)
	for i := range spec {
		spec[i] = make([]float64, testFrameLength/2+1)
		for j := range spec[i] {
			// Span several orders of magnitude so clipping actually happens.
			spec[i][j] = math.Pow(10, 6*r.Float64()-4)
		}
	}
	spec[5] = make([]float64, testFrameLength/2+1) // a silent frame

	out := m.Convert(spec)
	if len(out) != len(spec) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(spec))
	}

	peak := math.Inf(-1)
	for _, row := range out {
		if len(row) != testMelBins {
			t.Fatalf("row length = %d, want %d", len(row), testMelBins)
		}
		peak = math.Max(peak, floats.Max(row))
	}
	floor := math.Max(-100-math.Log10(refAmplitude), peak-refAmplitude)
	for i, row := range out {
		for j, v := range row {
			if v > peak || v < floor-1e-9 {
				t.Fatalf("out[%d][%d] = %v outside [%v, %v]", i, j, v, floor, peak)
			}
		}
	}
	for _, v := range out[5] {
		if v != floor {
			t.Fatalf("silent frame value = %v, want floor %v", v, floor)
		}
	}
}

func TestMelCompressor_MatchesDirectProjection(t *testing.T) {
	m := createTestMel(t)
	bank := m.Bank()

	spec := make([][]float64, 3)
	for i := range spec {
		spec[i] = make([]float64, testFrameLength/2+1)
		for j := range spec[i] {
			spec[i][j] = 1 + float64((i+j)%7)
		}
	}

	out := m.Convert(spec)
	for i := range spec {
		for b := 0; b < testMelBins; b++ {
			mel := floats.Dot(spec[i], mat.Row(nil, b, bank))
			want := 10 * (math.Log10(mel*mel) - math.Log10(refAmplitude))
			// Inputs are within 80 dB of each other, so nothing is clipped.
			if !scalar.EqualWithinAbs(out[i][b], want, 1e-9) {
				t.Fatalf("out[%d][%d] = %v, want %v", i, b, out[i][b], want)
			}
		}
	}
}

func TestMelCompressor_FloorIsPerCall(t *testing.T) {
	m := createTestMel(t)
	quiet := [][]float64{make([]float64, testFrameLength/2+1)}
	for j := range quiet[0] {
		quiet[0][j] = 1e-3
	}
	loud := [][]float64{make([]float64, testFrameLength/2+1)}
	for j := range loud[0] {
		loud[0][j] = 1e3
	}

	q := append([]float64(nil), m.Convert(quiet)[0]...)
	l := append([]float64(nil), m.Convert(loud)[0]...)

	// Uniform input fills each filter the same way, so both calls keep
	// their full shape and differ by exactly 120 dB.
	for b := range q {
		if !scalar.EqualWithinAbs(l[b]-q[b], 120, 1e-6) {
			t.Fatalf("bin %d: loud-quiet = %v, want 120", b, l[b]-q[b])
		}
	}
}

func TestMelCompressor_EmptyInput(t *testing.T) {
	if out := createTestMel(t).Convert(nil); len(out) != 0 {
		t.Errorf("Convert(nil) = %v, want empty", out)
	}
}
