//go:build integration

package recognize

import (
	"context"
	"os"
	"testing"
)

// Requires VOXCTL_ENCODER and VOXCTL_DECODER pointing at exported models,
// and optionally VOXCTL_ONNXRUNTIME_LIB.
func TestONNX_RecognizesSilence(t *testing.T) {
	enc, dec := os.Getenv("VOXCTL_ENCODER"), os.Getenv("VOXCTL_DECODER")
	if enc == "" || dec == "" {
		t.Skip("VOXCTL_ENCODER and VOXCTL_DECODER not set")
	}

	const frames, bins = 138, 80
	d, err := NewONNX(ONNXConfig{
		EncoderPath: enc,
		DecoderPath: dec,
		LibraryPath: os.Getenv("VOXCTL_ONNXRUNTIME_LIB"),
		Frames:      frames,
		Bins:        bins,
	}, 20)
	if err != nil {
		t.Fatalf("NewONNX: %v", err)
	}
	defer func() { _ = d.Close() }()

	mel := make([][]float64, frames)
	for i := range mel {
		mel[i] = make([]float64, bins)
		for j := range mel[i] {
			mel[i][j] = -101.9
		}
	}

	for run := 0; run < 2; run++ {
		syllables, err := d.Recognize(context.Background(), mel)
		if err != nil {
			t.Fatalf("Recognize run %d: %v", run, err)
		}
		t.Logf("run %d: %q", run, Phrase(syllables))
	}
}

func TestONNX_RejectsWrongShape(t *testing.T) {
	enc, dec := os.Getenv("VOXCTL_ENCODER"), os.Getenv("VOXCTL_DECODER")
	if enc == "" || dec == "" {
		t.Skip("VOXCTL_ENCODER and VOXCTL_DECODER not set")
	}
	s, err := NewONNXStepper(ONNXConfig{
		EncoderPath: enc,
		DecoderPath: dec,
		LibraryPath: os.Getenv("VOXCTL_ONNXRUNTIME_LIB"),
		Frames:      138,
		Bins:        80,
	})
	if err != nil {
		t.Fatalf("NewONNXStepper: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.Encode([][]float64{{1}}); err == nil {
		t.Error("Encode accepted a (1, 1) spectrogram")
	}
}
