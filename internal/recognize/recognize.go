// internal/recognize/recognize.go

// Package recognize turns mel spectrograms into syllable sequences with an
// encoder/decoder model driven by greedy decoding.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ColonelBlimp/voxctl/internal/vecmath"
)

const defaultMaxRounds = 20

var (
	// ErrInvalidRounds indicates the decoder needs at least one round
	ErrInvalidRounds = errors.New("max decoder rounds must be positive")
	// ErrEmptyLogits indicates a decoder step returned no scores
	ErrEmptyLogits = errors.New("decoder returned empty logits")
	// ErrUnknownToken indicates the decoder picked a token outside the vocabulary
	ErrUnknownToken = errors.New("decoder picked a token outside the vocabulary")
	// ErrEmptySpectrogram indicates there is nothing to encode
	ErrEmptySpectrogram = errors.New("mel spectrogram is empty")
)

// Recognizer converts a (frames, bins) dB mel spectrogram to lower-case syllables.
type Recognizer interface {
	Recognize(ctx context.Context, mel [][]float64) ([]string, error)
	Close() error
}

// Stepper runs a sequence model one token at a time. Encode primes it with a
// spectrogram; each Step feeds the previous token and returns the scores for
// the next one.
type Stepper interface {
	Encode(mel [][]float64) error
	Step(token int64) ([]float32, error)
	Close() error
}

// Decoder greedily decodes a Stepper, starting from BEG and stopping at END
// or after MaxRounds steps. Background and noise tokens are dropped from the
// output but still fed back to the model.
type Decoder struct {
	stepper   Stepper
	maxRounds int
}

// NewDecoder wraps stepper. maxRounds of 0 selects the default of 20.
func NewDecoder(stepper Stepper, maxRounds int) (*Decoder, error) {
	if maxRounds == 0 {
		maxRounds = defaultMaxRounds
	}
	if maxRounds < 0 {
		return nil, ErrInvalidRounds
	}
	return &Decoder{stepper: stepper, maxRounds: maxRounds}, nil
}

// Recognize implements Recognizer.
func (d *Decoder) Recognize(ctx context.Context, mel [][]float64) ([]string, error) {
	if len(mel) == 0 || len(mel[0]) == 0 {
		return nil, ErrEmptySpectrogram
	}
	if err := d.stepper.Encode(mel); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	syllables := []string{}
	token := TokenBeg
	for round := 0; round < d.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logits, err := d.stepper.Step(token)
		if err != nil {
			return nil, fmt.Errorf("decode round %d: %w", round, err)
		}
		if len(logits) == 0 {
			return nil, ErrEmptyLogits
		}
		next := int64(vecmath.ArgMax32(logits))
		if next >= int64(len(Vocabulary)) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownToken, next)
		}
		if next == TokenEnd {
			break
		}
		if !filler(next) {
			syllables = append(syllables, Syllable(next))
		}
		token = next
	}
	return syllables, nil
}

// MaxRounds returns the decoding limit.
func (d *Decoder) MaxRounds() int {
	return d.maxRounds
}

// Close releases the stepper.
func (d *Decoder) Close() error {
	return d.stepper.Close()
}

// Phrase joins syllables with single spaces.
func Phrase(syllables []string) string {
	return strings.Join(syllables, " ")
}

// NopRecognizer recognizes nothing. It stands in when no model is configured.
type NopRecognizer struct{}

// Recognize returns no syllables.
func (NopRecognizer) Recognize(ctx context.Context, _ [][]float64) ([]string, error) {
	return nil, ctx.Err()
}

// Close does nothing.
func (NopRecognizer) Close() error { return nil }
