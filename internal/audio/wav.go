// internal/audio/wav.go
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/youpy/go-wav"

	"github.com/ColonelBlimp/voxctl/internal/vad"
)

var (
	// ErrSampleRateMismatch indicates a file was recorded at a different rate than configured
	ErrSampleRateMismatch = errors.New("wav sample rate does not match configured sample rate")
	// ErrUnsupportedWAV indicates a channel count or bit depth the reader cannot decode
	ErrUnsupportedWAV = errors.New("unsupported wav format")
)

// ReadWAV decodes a PCM WAV file to mono float32 samples in [-1, 1].
// Stereo is averaged to mono.
func ReadWAV(path string) (samples []float32, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()
	return DecodeWAV(f)
}

// DecodeWAV is ReadWAV over an already open file.
func DecodeWAV(r wav.RIFFReader) (samples []float32, sampleRate int, err error) {
	reader := wav.NewReader(r)
	format, err := reader.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("wav format: %w", err)
	}

	channels := int(format.NumChannels)
	if channels < 1 || channels > 2 {
		return nil, 0, fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, channels)
	}
	bits := int(format.BitsPerSample)
	if bits != 8 && bits != 16 && bits != 24 && bits != 32 {
		return nil, 0, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedWAV, bits)
	}
	scale := float64(int64(1) << (bits - 1))
	offset := 0
	if bits == 8 {
		// 8-bit PCM is unsigned.
		offset = 128
	}

	for {
		block, err := reader.ReadSamples()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read wav samples: %w", err)
		}
		for _, s := range block {
			v := float64(s.Values[0]-offset) / scale
			if channels == 2 {
				v = (v + float64(s.Values[1]-offset)/scale) / 2
			}
			samples = append(samples, float32(v))
		}
	}
	return samples, int(format.SampleRate), nil
}

// CheckSampleRate rejects audio recorded at a rate other than want.
func CheckSampleRate(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: file is %d Hz, configured %d Hz", ErrSampleRateMismatch, got, want)
	}
	return nil
}

// WriteWAV writes samples as 16-bit mono PCM, clamping to [-1, 1].
func WriteWAV(path string, samples []float32, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	out := make([]wav.Sample, len(samples))
	for i, v := range samples {
		v = max(-1, min(1, v))
		out[i] = wav.Sample{Values: [2]int{int(v * 32767), 0}}
	}
	w := wav.NewWriter(f, uint32(len(out)), 1, uint32(sampleRate), 16)
	return w.WriteSamples(out)
}

// WAVSink saves utterance windows into a directory.
type WAVSink struct {
	Dir        string
	SampleRate int
}

// Save writes u as utterance-<timestamp>.wav and returns the path.
func (s WAVSink) Save(u vad.Utterance) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create save dir: %w", err)
	}
	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	path := filepath.Join(s.Dir, "utterance-"+ts.UTC().Format("20060102T150405.000000000")+".wav")
	if err := WriteWAV(path, u.Samples, s.SampleRate); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
