// cmd/devices.go
package cmd

import (
	"fmt"

	"github.com/ColonelBlimp/voxctl/internal/audio"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		capture := audio.New(audio.DefaultConfig())
		if err := capture.Init(); err != nil {
			return fmt.Errorf("audio: %w", err)
		}
		defer capture.Close()

		devices, err := capture.ListDevices()
		if err != nil {
			return fmt.Errorf("audio: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(devices) == 0 {
			fmt.Fprintln(out, "no capture devices found")
			return nil
		}
		for i, d := range devices {
			def := ""
			if d.IsDefault != 0 {
				def = " (default)"
			}
			fmt.Fprintf(out, "%2d: %s%s\n", i, d.Name(), def)
		}
		return nil
	},
}
