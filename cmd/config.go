// cmd/config.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ColonelBlimp/voxctl/internal/config"
	"github.com/ColonelBlimp/voxctl/internal/dsp"
	"github.com/ColonelBlimp/voxctl/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// responseSamples is long enough for the filter to settle at the default rate.
const responseSamples = 8192

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective settings and derived signal chain values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		p, err := pipeline.Build(s)
		if err != nil {
			return fmt.Errorf("build pipeline: %w", err)
		}
		return printConfig(cmd.OutOrStdout(), viper.ConfigFileUsed(), s, p)
	},
}

func printConfig(out io.Writer, file string, s *config.Settings, p *pipeline.Pipeline) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "config file\t%s\n", file)
	fmt.Fprintf(w, "sample rate\t%d Hz\n", s.SampleRate)
	fmt.Fprintf(w, "cutoff\t%.1f Hz\n", s.Cutoff())
	fmt.Fprintf(w, "decimated rate\t%.1f Hz\n", s.DecimatedRate())
	fmt.Fprintf(w, "window\t%d samples (%.3f s)\n", p.WindowLength(), float64(p.WindowLength())/float64(s.SampleRate))
	fmt.Fprintf(w, "spectrogram\t%d frames x %d bins\n", p.Frames(), p.Bins())
	fmt.Fprintf(w, "mel range\t%.1f - %.1f Hz\n", s.MelMinHz, s.MelUpperHz())

	v := s.VADConfig()
	fmt.Fprintf(w, "vad min uttered\t%d samples\n", v.MinUttered)
	fmt.Fprintf(w, "vad max silent\t%d samples\n", v.MaxSilent)
	fmt.Fprintf(w, "vad utter window\t%d samples\n", v.UtterWindow)
	fmt.Fprintf(w, "vad silence window\t%d samples\n", v.SilenceWindow)
	fmt.Fprintf(w, "recognition\t%t\n", s.RecognitionEnabled())
	if err := w.Flush(); err != nil {
		return err
	}

	f := p.Stages().Filter
	fmt.Fprintf(out, "\nbutterworth order %d\n", s.FilterOrder)
	fmt.Fprintf(out, "  b = %.6g\n", f.Numerator())
	fmt.Fprintf(out, "  a = %.6g\n", f.Denominator())
	fmt.Fprintf(out, "  gain = %.6g\n", f.Gain())

	for _, freq := range []float64{s.Cutoff() / 4, s.Cutoff()} {
		amp, err := dsp.ResponseAt(f, freq, responseSamples)
		if err != nil {
			return fmt.Errorf("filter response at %.1f Hz: %w", freq, err)
		}
		fmt.Fprintf(out, "  |H(%.1f Hz)| = %.4f\n", freq, amp)
	}
	return nil
}
