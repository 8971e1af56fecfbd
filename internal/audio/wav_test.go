package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/youpy/go-wav"

	"github.com/ColonelBlimp/voxctl/internal/vad"
)

func TestWAV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	in := make([]float32, 4410)
	for i := range in {
		in[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/44100))
	}

	if err := WriteWAV(path, in, 44100); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	out, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if rate != 44100 {
		t.Errorf("rate = %d, want 44100", rate)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	// 16-bit quantisation plus the 32767/32768 scale mismatch.
	for i := range in {
		if d := math.Abs(float64(out[i] - in[i])); d > 1e-4 {
			t.Fatalf("sample %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestWriteWAV_Clamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loud.wav")
	if err := WriteWAV(path, []float32{2, -3}, 8000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	out, _, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if out[0] > 1 || out[0] < 0.999 || out[1] < -1 || out[1] > -0.999 {
		t.Errorf("clamped samples = %v, want ~[1 -1]", out)
	}
}

func TestReadWAV_StereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	samples := []wav.Sample{
		{Values: [2]int{16384, 0}},
		{Values: [2]int{-16384, -16384}},
	}
	if err := wav.NewWriter(f, uint32(len(samples)), 2, 16000, 16).WriteSamples(samples); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	out, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}
	if len(out) != 2 || out[0] != 0.25 || out[1] != -0.5 {
		t.Errorf("downmix = %v, want [0.25 -0.5]", out)
	}
}

func TestReadWAV_Missing(t *testing.T) {
	if _, _, err := ReadWAV(filepath.Join(t.TempDir(), "nope.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadWAV(missing) error = %v, want not exist", err)
	}
}

func TestReadWAV_NotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("definitely not a riff file"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadWAV(path); err == nil {
		t.Error("ReadWAV accepted a non-WAV file")
	}
}

func TestCheckSampleRate(t *testing.T) {
	if err := CheckSampleRate(44100, 44100); err != nil {
		t.Errorf("CheckSampleRate(equal) = %v", err)
	}
	if err := CheckSampleRate(16000, 44100); !errors.Is(err, ErrSampleRateMismatch) {
		t.Errorf("CheckSampleRate(mismatch) = %v, want ErrSampleRateMismatch", err)
	}
}

func TestWAVSink_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	sink := WAVSink{Dir: dir, SampleRate: 44100}
	u := vad.Utterance{
		Samples:   []float32{0, 0.5, -0.5},
		Loud:      2,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
	}

	path, err := sink.Save(u)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "utterance-20260102T030405") {
		t.Errorf("path = %s", path)
	}
	out, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if rate != 44100 || len(out) != 3 {
		t.Errorf("saved %d samples at %d Hz", len(out), rate)
	}
}
