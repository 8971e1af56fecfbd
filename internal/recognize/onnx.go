// internal/recognize/onnx.go
package recognize

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/ColonelBlimp/voxctl/internal/vecmath"
)

// ErrShapeMismatch indicates the spectrogram does not match the encoder input
var ErrShapeMismatch = errors.New("mel spectrogram shape does not match encoder input")

// Model input and output names.
var (
	encoderInputs  = []string{"spectrogram"}
	encoderOutputs = []string{"encoder_output", "hidden"}
	decoderInputs  = []string{"encoder_output", "hidden", "tokens"}
	decoderOutputs = []string{"logits", "hidden_out"}
)

var envOnce struct {
	sync.Mutex
	done bool
}

// ONNXConfig locates the encoder and decoder models.
type ONNXConfig struct {
	// EncoderPath (from config: encoder_model)
	EncoderPath string
	// DecoderPath (from config: decoder_model)
	DecoderPath string
	// LibraryPath of the onnxruntime shared library; empty uses the system default (from config: onnxruntime_lib)
	LibraryPath string
	// Frames and Bins fix the encoder input shape (1, 1, Frames, Bins)
	Frames int
	Bins   int
}

// ONNXStepper runs the encoder once per spectrogram and the decoder once per
// token with ONNX Runtime. The encoder output and recurrent state are held
// between steps. It is not safe for concurrent use.
type ONNXStepper struct {
	encoder *ort.DynamicAdvancedSession
	decoder *ort.DynamicAdvancedSession

	input  *ort.Tensor[float32] // (1, 1, frames, bins)
	tokens *ort.Tensor[int64]   // (1, 1)

	encoded ort.Value
	hidden  ort.Value

	frames, bins int
}

// initEnvironment loads the shared library once per process.
func initEnvironment(libPath string) error {
	envOnce.Lock()
	defer envOnce.Unlock()
	if envOnce.done {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	envOnce.done = true
	return nil
}

// NewONNXStepper loads both models and allocates the fixed input tensors.
func NewONNXStepper(cfg ONNXConfig) (*ONNXStepper, error) {
	if cfg.Frames < 1 || cfg.Bins < 1 {
		return nil, ErrShapeMismatch
	}
	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, int64(cfg.Frames), int64(cfg.Bins)))
	if err != nil {
		return nil, fmt.Errorf("allocate encoder input: %w", err)
	}
	tokens, err := ort.NewTensor(ort.NewShape(1, 1), []int64{TokenBeg})
	if err != nil {
		_ = input.Destroy()
		return nil, fmt.Errorf("allocate token input: %w", err)
	}

	encoder, err := ort.NewDynamicAdvancedSession(cfg.EncoderPath, encoderInputs, encoderOutputs, nil)
	if err != nil {
		_ = input.Destroy()
		_ = tokens.Destroy()
		return nil, fmt.Errorf("load encoder %s: %w", cfg.EncoderPath, err)
	}
	decoder, err := ort.NewDynamicAdvancedSession(cfg.DecoderPath, decoderInputs, decoderOutputs, nil)
	if err != nil {
		_ = input.Destroy()
		_ = tokens.Destroy()
		_ = encoder.Destroy()
		return nil, fmt.Errorf("load decoder %s: %w", cfg.DecoderPath, err)
	}

	return &ONNXStepper{
		encoder: encoder,
		decoder: decoder,
		input:   input,
		tokens:  tokens,
		frames:  cfg.Frames,
		bins:    cfg.Bins,
	}, nil
}

// NewONNX returns a greedy Decoder over an ONNXStepper.
func NewONNX(cfg ONNXConfig, maxRounds int) (*Decoder, error) {
	s, err := NewONNXStepper(cfg)
	if err != nil {
		return nil, err
	}
	d, err := NewDecoder(s, maxRounds)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return d, nil
}

// Encode implements Stepper.
func (s *ONNXStepper) Encode(mel [][]float64) error {
	bins := 0
	if len(mel) > 0 {
		bins = len(mel[0])
	}
	if len(mel) != s.frames || bins != s.bins {
		return fmt.Errorf("%w: got (%d, %d), want (%d, %d)", ErrShapeMismatch, len(mel), bins, s.frames, s.bins)
	}
	copy(s.input.GetData(), vecmath.Flatten(mel))
	s.release()

	outputs := []ort.Value{nil, nil}
	if err := s.encoder.Run([]ort.Value{s.input}, outputs); err != nil {
		return err
	}
	s.encoded, s.hidden = outputs[0], outputs[1]
	return nil
}

// Step implements Stepper.
func (s *ONNXStepper) Step(token int64) ([]float32, error) {
	if s.encoded == nil {
		return nil, errors.New("step before encode")
	}
	s.tokens.GetData()[0] = token

	outputs := []ort.Value{nil, nil}
	if err := s.decoder.Run([]ort.Value{s.encoded, s.hidden, s.tokens}, outputs); err != nil {
		return nil, err
	}
	defer func() { _ = outputs[0].Destroy() }()

	_ = s.hidden.Destroy()
	s.hidden = outputs[1]

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("logits have type %T, want float32 tensor", outputs[0])
	}
	return append([]float32(nil), logits.GetData()...), nil
}

func (s *ONNXStepper) release() {
	if s.encoded != nil {
		_ = s.encoded.Destroy()
		s.encoded = nil
	}
	if s.hidden != nil {
		_ = s.hidden.Destroy()
		s.hidden = nil
	}
}

// Close destroys the sessions and tensors.
func (s *ONNXStepper) Close() error {
	s.release()
	return errors.Join(
		s.encoder.Destroy(),
		s.decoder.Destroy(),
		s.input.Destroy(),
		s.tokens.Destroy(),
	)
}
