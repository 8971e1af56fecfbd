// cmd/listen.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ColonelBlimp/voxctl/internal/audio"
	"github.com/ColonelBlimp/voxctl/internal/config"
	"github.com/ColonelBlimp/voxctl/internal/observe"
	"github.com/ColonelBlimp/voxctl/internal/recovery"
	"github.com/ColonelBlimp/voxctl/internal/vad"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Listen on the microphone and act on recognized phrases",
	Long: `Captures audio from the configured device, detects utterances, and runs
each one through the filter, spectrogram, mel and recognition stages.`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func runListen(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := startTelemetry(ctx, s)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	c, err := newChain(s)
	if err != nil {
		return err
	}
	defer c.Close()

	det, err := vad.NewDetector(s.VADConfig())
	if err != nil {
		return fmt.Errorf("voice activity detector: %w", err)
	}
	det.SetCallback(func(u vad.Utterance) {
		c.runner.Submit(u)
	})

	capture := audio.New(audio.Config{
		DeviceIndex: s.DeviceIndex,
		SampleRate:  uint32(s.SampleRate),
		Channels:    1,
		BufferSize:  uint32(s.BufferSize),
	})
	if err := capture.Init(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	defer capture.Close()

	if err := capture.Start(ctx); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	slog.Info("listening",
		"device", s.DeviceIndex,
		"sample_rate", s.SampleRate,
		"window", c.pipeline.WindowLength(),
		"frames", c.pipeline.Frames(),
		"bins", c.pipeline.Bins())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.runner.Run(gctx)
	})
	g.Go(func() error {
		defer c.runner.Close()
		return feedDetector(gctx, capture.Samples, det)
	})

	err = g.Wait()
	st := c.runner.Stats()
	slog.Info("stopped",
		"submitted", st.Submitted,
		"processed", st.Processed,
		"failed", st.Failed,
		"dropped", st.Dropped,
		"audio_dropped", capture.Dropped())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// feedDetector moves captured chunks into the detector until ctx ends or the
// capture channel closes.
func feedDetector(ctx context.Context, samples <-chan []float32, det *vad.Detector) (err error) {
	defer recovery.CaptureError(&err)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-samples:
			if !ok {
				return nil
			}
			det.Process(chunk)
		}
	}
}

// startTelemetry installs the OTel providers and, when metrics_addr is set,
// serves /metrics until ctx ends.
func startTelemetry(ctx context.Context, s *config.Settings) (func(context.Context) error, error) {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	if s.MetricsAddr == "" {
		return shutdown, nil
	}

	srv := &http.Server{
		Addr:              s.MetricsAddr,
		Handler:           observe.MetricsHandler(),
		ReadHeaderTimeout: shutdownTimeout,
	}
	go func() {
		defer recovery.HandlePanic()
		slog.Info("serving metrics", "addr", s.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", "error", err)
		}
	}()

	return func(sctx context.Context) error {
		return errors.Join(srv.Shutdown(sctx), shutdown(sctx))
	}, nil
}
