// internal/vad/detector.go

// Package vad implements a streaming voice activity detector over a fixed
// ring buffer of raw samples.
package vad

import (
	"errors"
	"math"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidCapacity indicates the ring buffer must hold at least one sample
	ErrInvalidCapacity = errors.New("buffer capacity must be positive")
	// ErrInvalidAmplitude indicates the speech amplitude must be within (0, 1)
	ErrInvalidAmplitude = errors.New("speech amplitude must be between 0.0 and 1.0")
	// ErrInvalidWindow indicates a window or threshold is not positive
	ErrInvalidWindow = errors.New("vad windows and thresholds must be positive")
	// ErrWindowOrder indicates the utterance window is not shorter than the silence window
	ErrWindowOrder = errors.New("utterance window must be shorter than silence window")
	// ErrWindowExceedsCapacity indicates a window reaches past the ring buffer
	ErrWindowExceedsCapacity = errors.New("vad window must be shorter than buffer capacity")
)

// State is the detector's coarse state.
type State int

const (
	// Idle means no loud sample has been seen since the last reset.
	Idle State = iota
	// Speaking means an episode is in progress.
	Speaking
)

func (s State) String() string {
	if s == Speaking {
		return "speaking"
	}
	return "idle"
}

// Utterance is emitted when an episode ends with enough loud samples.
type Utterance struct {
	// Samples is the full ring contents in chronological order, Cap() long
	Samples []float32
	// Loud is the loud-sample count at the moment the episode closed
	Loud int
	// Timestamp is when the episode closed
	Timestamp time.Time
}

// UtteranceCallback receives emitted utterances. It runs on the producer
// goroutine and must return quickly.
type UtteranceCallback func(u Utterance)

// Config holds detector thresholds. Window sizes and thresholds are in samples.
type Config struct {
	// Capacity is the ring buffer size (from config: decimation * spectrogram_timestamps)
	Capacity int
	// Amplitude is the loudness threshold on |x| (from config: speech_amplitude)
	Amplitude float64
	// MinUttered is how many loud samples make an episode worth emitting (from config: min_uttered_sec)
	MinUttered int
	// MaxSilent is how many quiet samples end an episode (from config: max_silent_sec)
	MaxSilent int
	// UtterWindow bounds tracking while loud < MinUttered (from config: utter_window_sec)
	UtterWindow int
	// SilenceWindow is the lag after which quiet samples stop counting (from config: silence_window_sec)
	SilenceWindow int
}

// SecondsToSamples converts a duration in seconds to a whole sample count,
// truncating toward zero.
func SecondsToSamples(sec float64, sampleRate int) int {
	return int(math.Floor(sec * float64(sampleRate)))
}

// Counters is a copy of the detector's running counts.
type Counters struct {
	Loud     int
	Silent   int
	Tracked  int
	Speaking bool
}

// Detector tracks loud and silent sample counts over a decaying window and
// emits an Utterance when speech is followed by enough silence.
//
// The decay is an approximation of a sliding window: samples leave the
// counts only when they cross a fixed lag behind the cursor, and the
// utterance window only decays while loud is below MinUttered. It costs O(1)
// per sample.
type Detector struct {
	config Config
	buf    *Buffer

	loud     int
	silent   int
	tracked  int
	speaking bool

	amplitude float32

	callbackPtr atomic.Pointer[UtteranceCallback]
}

// NewDetector validates cfg and allocates the ring buffer.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.Amplitude <= 0 || cfg.Amplitude >= 1 {
		return nil, ErrInvalidAmplitude
	}
	if cfg.MinUttered < 1 || cfg.MaxSilent < 1 || cfg.UtterWindow < 1 || cfg.SilenceWindow < 1 {
		return nil, ErrInvalidWindow
	}
	if cfg.UtterWindow >= cfg.SilenceWindow {
		return nil, ErrWindowOrder
	}
	buf, err := NewBuffer(cfg.Capacity)
	if err != nil {
		return nil, err
	}
	if cfg.SilenceWindow >= cfg.Capacity {
		return nil, ErrWindowExceedsCapacity
	}

	return &Detector{
		config:    cfg,
		buf:       buf,
		amplitude: float32(cfg.Amplitude),
	}, nil
}

// SetCallback sets the utterance callback. Passing nil removes it.
func (d *Detector) SetCallback(cb UtteranceCallback) {
	if cb == nil {
		d.callbackPtr.Store(nil)
	} else {
		d.callbackPtr.Store(&cb)
	}
}

// Process ingests a chunk of samples in order.
func (d *Detector) Process(samples []float32) {
	for _, x := range samples {
		d.Ingest(x)
	}
}

// Ingest consumes one sample. It must be called from a single producer in
// chronological order.
func (d *Detector) Ingest(x float32) {
	cur := d.buf.Write(x)

	if d.isLoud(x) {
		d.speaking = true
		d.loud++
		d.tracked++
	} else if d.speaking {
		d.silent++
		d.tracked++
	}

	if d.tracked > d.config.SilenceWindow {
		lagged := d.buf.At(cur - d.config.SilenceWindow)
		if d.silent > 0 && !d.isLoud(lagged) {
			d.silent--
		}
	}

	if d.tracked > d.config.UtterWindow && d.loud < d.config.MinUttered {
		lagged := d.buf.At(cur - d.config.UtterWindow)
		d.tracked--
		if d.isLoud(lagged) {
			if d.loud > 0 {
				d.loud--
			}
		} else if d.silent > 0 {
			d.silent--
		}
	}

	if d.silent > d.config.MaxSilent {
		if d.loud > d.config.MinUttered {
			d.emit(Utterance{
				Samples:   d.buf.Snapshot(),
				Loud:      d.loud,
				Timestamp: time.Now(),
			})
		}
		d.reset()
	}
}

func (d *Detector) isLoud(x float32) bool {
	if x < 0 {
		x = -x
	}
	return x > d.amplitude
}

func (d *Detector) reset() {
	d.loud = 0
	d.silent = 0
	d.tracked = 0
	d.speaking = false
}

func (d *Detector) emit(u Utterance) {
	cbPtr := d.callbackPtr.Load()
	if cbPtr != nil {
		(*cbPtr)(u)
	}
}

// State returns Speaking while an episode is open.
func (d *Detector) State() State {
	if d.speaking {
		return Speaking
	}
	return Idle
}

// Counters returns the current counts. Only meaningful on the producer goroutine.
func (d *Detector) Counters() Counters {
	return Counters{
		Loud:     d.loud,
		Silent:   d.silent,
		Tracked:  d.tracked,
		Speaking: d.speaking,
	}
}

// Buffer exposes the ring for snapshots outside the emit path.
func (d *Detector) Buffer() *Buffer {
	return d.buf
}

// Reset clears the counters and the ring.
func (d *Detector) Reset() {
	d.reset()
	d.buf.Reset()
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}
