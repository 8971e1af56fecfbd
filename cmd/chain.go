// cmd/chain.go
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ColonelBlimp/voxctl/internal/audio"
	"github.com/ColonelBlimp/voxctl/internal/config"
	"github.com/ColonelBlimp/voxctl/internal/intent"
	"github.com/ColonelBlimp/voxctl/internal/pipeline"
	"github.com/ColonelBlimp/voxctl/internal/recognize"
)

// chain is the processing path shared by listen and process.
type chain struct {
	pipeline   *pipeline.Pipeline
	recognizer recognize.Recognizer
	runner     *pipeline.Runner
}

func newChain(s *config.Settings, opts ...pipeline.RunnerOption) (*chain, error) {
	p, err := pipeline.Build(s)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	var rec recognize.Recognizer = recognize.NopRecognizer{}
	if s.RecognitionEnabled() {
		rec, err = recognize.NewONNX(recognize.ONNXConfig{
			EncoderPath: s.EncoderModel,
			DecoderPath: s.DecoderModel,
			LibraryPath: s.ONNXRuntimeLib,
			Frames:      p.Frames(),
			Bins:        p.Bins(),
		}, s.MaxDecoderRounds)
		if err != nil {
			return nil, fmt.Errorf("load recognizer: %w", err)
		}
	} else {
		slog.Info("no recognition models configured, spectrograms only")
	}

	if s.SaveDir != "" {
		opts = append(opts, pipeline.WithSink(audio.WAVSink{Dir: s.SaveDir, SampleRate: s.SampleRate}))
	}
	r := pipeline.NewRunner(p, rec, intent.LogActuator{Logger: slog.Default()}, opts...)

	return &chain{pipeline: p, recognizer: rec, runner: r}, nil
}

func (c *chain) Close() error {
	return c.recognizer.Close()
}
