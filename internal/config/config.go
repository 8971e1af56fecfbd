// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/viper"

	"github.com/ColonelBlimp/voxctl/internal/vad"
)

const (
	AppName       = "voxctl"
	ConfigType    = "yaml"
	DefaultConfig = `# voxctl configuration

# Audio device settings
device_index: -1        # -1 for default device (see 'voxctl devices')
sample_rate: 44100      # Capture sample rate in Hz
buffer_size: 256        # Frames per capture period

# Low-pass filter and decimation
decimation: 5           # Keep every Nth filtered sample; cutoff = sample_rate / (2*decimation)
filter_order: 5         # Butterworth order (1-12)

# Spectrogram
spectrogram_timestamps: 18664  # Decimated samples per analysis window
frame_length: 1024      # FFT size, power of two
hop_length: 128         # Frame advance in samples
stft_workers: 8         # Goroutines sharing the frames (1-64)

# Mel compression
mel_bins: 80
mel_min_hz: 0
mel_max_hz: 0           # 0 = filter cutoff

# Voice activity detection
speech_amplitude: 0.001 # |sample| above this counts as loud
min_uttered_sec: 0.25   # Loud time needed for an utterance
max_silent_sec: 0.3     # Quiet time that closes an utterance
utter_window_sec: 0.3   # Tracking window while below min_uttered_sec
silence_window_sec: 0.33  # Quiet samples older than this stop counting

# Recognition
encoder_model: ""       # ONNX encoder; empty disables recognition
decoder_model: ""       # ONNX decoder
onnxruntime_lib: ""     # Path to the onnxruntime shared library
max_decoder_rounds: 20

# Output
save_dir: ""            # Write each utterance window as WAV when set
metrics_addr: ""        # Serve Prometheus metrics on this address when set, e.g. ":9464"
log_level: "info"       # debug, info, warn, error
debug: false            # Force debug logging
`
)

const (
	maxFilterOrder = 12
	maxWorkers     = 64
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	DeviceIndex int `mapstructure:"device_index"`
	SampleRate  int `mapstructure:"sample_rate"`
	BufferSize  int `mapstructure:"buffer_size"`

	// Low-pass filter and decimation
	Decimation  int `mapstructure:"decimation"`
	FilterOrder int `mapstructure:"filter_order"`

	// Spectrogram
	SpectrogramTimestamps int `mapstructure:"spectrogram_timestamps"`
	FrameLength           int `mapstructure:"frame_length"`
	HopLength             int `mapstructure:"hop_length"`
	STFTWorkers           int `mapstructure:"stft_workers"`

	// Mel compression
	MelBins  int     `mapstructure:"mel_bins"`
	MelMinHz float64 `mapstructure:"mel_min_hz"`
	MelMaxHz float64 `mapstructure:"mel_max_hz"`

	// Voice activity detection
	SpeechAmplitude  float64 `mapstructure:"speech_amplitude"`
	MinUtteredSec    float64 `mapstructure:"min_uttered_sec"`
	MaxSilentSec     float64 `mapstructure:"max_silent_sec"`
	UtterWindowSec   float64 `mapstructure:"utter_window_sec"`
	SilenceWindowSec float64 `mapstructure:"silence_window_sec"`

	// Recognition
	EncoderModel     string `mapstructure:"encoder_model"`
	DecoderModel     string `mapstructure:"decoder_model"`
	ONNXRuntimeLib   string `mapstructure:"onnxruntime_lib"`
	MaxDecoderRounds int    `mapstructure:"max_decoder_rounds"`

	// Output
	SaveDir     string `mapstructure:"save_dir"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`
	Debug       bool   `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/voxctl/
func Init() error {
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 44100)
	viper.SetDefault("buffer_size", 256)
	viper.SetDefault("decimation", 5)
	viper.SetDefault("filter_order", 5)
	viper.SetDefault("spectrogram_timestamps", 18664)
	viper.SetDefault("frame_length", 1024)
	viper.SetDefault("hop_length", 128)
	viper.SetDefault("stft_workers", 8)
	viper.SetDefault("mel_bins", 80)
	viper.SetDefault("mel_min_hz", 0.0)
	viper.SetDefault("mel_max_hz", 0.0)
	viper.SetDefault("speech_amplitude", 0.001)
	viper.SetDefault("min_uttered_sec", 0.25)
	viper.SetDefault("max_silent_sec", 0.3)
	viper.SetDefault("utter_window_sec", 0.3)
	viper.SetDefault("silence_window_sec", 0.33)
	viper.SetDefault("encoder_model", "")
	viper.SetDefault("decoder_model", "")
	viper.SetDefault("onnxruntime_lib", "")
	viper.SetDefault("max_decoder_rounds", 20)
	viper.SetDefault("save_dir", "")
	viper.SetDefault("metrics_addr", "")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("debug", false)

	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Cutoff is the low-pass cutoff, the Nyquist frequency of the decimated signal.
func (s *Settings) Cutoff() float64 {
	return float64(s.SampleRate) / float64(2*s.Decimation)
}

// DecimatedRate is the sample rate after decimation.
func (s *Settings) DecimatedRate() float64 {
	return float64(s.SampleRate) / float64(s.Decimation)
}

// BufferCapacity is the raw sample count that decimates to one analysis window.
func (s *Settings) BufferCapacity() int {
	return s.Decimation * s.SpectrogramTimestamps
}

// MelUpperHz resolves mel_max_hz, where 0 means the filter cutoff.
func (s *Settings) MelUpperHz() float64 {
	if s.MelMaxHz == 0 {
		return s.Cutoff()
	}
	return s.MelMaxHz
}

// VADConfig converts the detector settings to sample counts at sample_rate.
func (s *Settings) VADConfig() vad.Config {
	return vad.Config{
		Capacity:      s.BufferCapacity(),
		Amplitude:     s.SpeechAmplitude,
		MinUttered:    vad.SecondsToSamples(s.MinUtteredSec, s.SampleRate),
		MaxSilent:     vad.SecondsToSamples(s.MaxSilentSec, s.SampleRate),
		UtterWindow:   vad.SecondsToSamples(s.UtterWindowSec, s.SampleRate),
		SilenceWindow: vad.SecondsToSamples(s.SilenceWindowSec, s.SampleRate),
	}
}

// RecognitionEnabled reports whether both model paths are set.
func (s *Settings) RecognitionEnabled() bool {
	return s.EncoderModel != "" && s.DecoderModel != ""
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio device settings
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", s.SampleRate))
	}
	if s.BufferSize < 16 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 16 and 8192, got %d", s.BufferSize))
	}

	// Filter
	// The cutoff is the decimated Nyquist, which must sit below the input Nyquist.
	if s.Decimation < 2 {
		errs = append(errs, fmt.Errorf("decimation must be at least 2, got %d", s.Decimation))
	}
	if s.FilterOrder < 1 || s.FilterOrder > maxFilterOrder {
		errs = append(errs, fmt.Errorf("filter_order must be between 1 and %d, got %d", maxFilterOrder, s.FilterOrder))
	}

	// Spectrogram
	if s.FrameLength < 2 || s.FrameLength&(s.FrameLength-1) != 0 {
		errs = append(errs, fmt.Errorf("frame_length must be a power of 2, got %d", s.FrameLength))
	}
	if s.FrameLength > s.SpectrogramTimestamps {
		errs = append(errs, fmt.Errorf("frame_length (%d) must not exceed spectrogram_timestamps (%d)", s.FrameLength, s.SpectrogramTimestamps))
	}
	if s.HopLength < 1 {
		errs = append(errs, fmt.Errorf("hop_length must be positive, got %d", s.HopLength))
	}
	if s.STFTWorkers < 1 || s.STFTWorkers > maxWorkers {
		errs = append(errs, fmt.Errorf("stft_workers must be between 1 and %d, got %d", maxWorkers, s.STFTWorkers))
	}

	// Mel compression
	if s.MelBins < 1 {
		errs = append(errs, fmt.Errorf("mel_bins must be positive, got %d", s.MelBins))
	}
	if s.MelMinHz < 0 {
		errs = append(errs, fmt.Errorf("mel_min_hz must not be negative, got %v", s.MelMinHz))
	}
	if s.Decimation >= 1 {
		if upper := s.MelUpperHz(); upper > s.Cutoff() {
			errs = append(errs, fmt.Errorf("mel_max_hz (%v Hz) must not exceed decimated Nyquist frequency (%v Hz)", upper, s.Cutoff()))
		} else if s.MelMinHz >= upper {
			errs = append(errs, fmt.Errorf("mel_min_hz (%v Hz) must be below mel_max_hz (%v Hz)", s.MelMinHz, upper))
		}
	}

	// Voice activity detection
	if s.SpeechAmplitude <= 0 || s.SpeechAmplitude >= 1 {
		errs = append(errs, fmt.Errorf("speech_amplitude must be between 0.0 and 1.0, got %v", s.SpeechAmplitude))
	}
	if s.MinUtteredSec <= 0 || s.MaxSilentSec <= 0 || s.UtterWindowSec <= 0 || s.SilenceWindowSec <= 0 {
		errs = append(errs, errors.New("min_uttered_sec, max_silent_sec, utter_window_sec and silence_window_sec must be positive"))
	}
	if s.UtterWindowSec >= s.SilenceWindowSec {
		errs = append(errs, fmt.Errorf("utter_window_sec (%v) must be less than silence_window_sec (%v)", s.UtterWindowSec, s.SilenceWindowSec))
	}
	if s.Decimation >= 1 && s.SampleRate > 0 {
		if w := vad.SecondsToSamples(s.SilenceWindowSec, s.SampleRate); w >= s.BufferCapacity() {
			errs = append(errs, fmt.Errorf("silence_window_sec spans %d samples, buffer holds %d", w, s.BufferCapacity()))
		}
	}

	// Recognition
	if (s.EncoderModel == "") != (s.DecoderModel == "") {
		errs = append(errs, errors.New("encoder_model and decoder_model must be set together"))
	}
	if s.MaxDecoderRounds < 1 {
		errs = append(errs, fmt.Errorf("max_decoder_rounds must be positive, got %d", s.MaxDecoderRounds))
	}

	// Output
	if !slices.Contains(validLogLevels, s.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", s.LogLevel))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
