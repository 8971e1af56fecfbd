// cmd/process.go
package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/ColonelBlimp/voxctl/internal/audio"
	"github.com/ColonelBlimp/voxctl/internal/pipeline"
	"github.com/ColonelBlimp/voxctl/internal/vad"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process <file.wav>",
	Short: "Run a recorded WAV file through the detector and pipeline",
	Long: `Feeds a mono or stereo WAV file through the voice activity detector and
handles every utterance it finds. When no utterance is detected the start of
the file is processed as a single window.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	samples, rate, err := audio.ReadWAV(args[0])
	if err != nil {
		return err
	}
	if err := audio.CheckSampleRate(rate, s.SampleRate); err != nil {
		return err
	}

	c, err := newChain(s)
	if err != nil {
		return err
	}
	defer c.Close()

	det, err := vad.NewDetector(s.VADConfig())
	if err != nil {
		return fmt.Errorf("voice activity detector: %w", err)
	}
	var utterances []vad.Utterance
	det.SetCallback(func(u vad.Utterance) {
		utterances = append(utterances, u)
	})
	det.Process(samples)

	if len(utterances) == 0 {
		utterances = append(utterances, vad.Utterance{
			Samples:   fitWindow(samples, c.pipeline.WindowLength()),
			Timestamp: time.Now(),
		})
		fmt.Fprintln(cmd.OutOrStdout(), "no utterance detected, processing the start of the file")
	}

	out := cmd.OutOrStdout()
	var failed int
	for i, u := range utterances {
		o := c.runner.Handle(cmd.Context(), u)
		if o.Err != nil {
			failed++
		}
		printOutcome(out, i+1, o)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d utterances failed", failed, len(utterances))
	}
	return nil
}

// fitWindow zero-pads or truncates samples to n.
func fitWindow(samples []float32, n int) []float32 {
	w := make([]float32, n)
	copy(w, samples)
	return w
}

func printOutcome(w io.Writer, n int, o pipeline.Outcome) {
	if o.Err != nil {
		fmt.Fprintf(w, "utterance %d: loud=%d error: %v\n", n, o.Utterance.Loud, o.Err)
		return
	}
	fmt.Fprintf(w, "utterance %d: loud=%d frames=%d bins=%d filter=%s stft=%s mel=%s phrase=%q action=%s",
		n, o.Utterance.Loud, o.Result.Frames, o.Result.Bins,
		o.Result.Durations.Filter, o.Result.Durations.STFT, o.Result.Durations.Mel,
		o.Phrase, o.Action)
	if o.SavedPath != "" {
		fmt.Fprintf(w, " saved=%s", o.SavedPath)
	}
	fmt.Fprintln(w)
}
