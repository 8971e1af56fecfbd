// cmd/root.go
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ColonelBlimp/voxctl/internal/config"
	"github.com/ColonelBlimp/voxctl/internal/observe"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at build time with -ldflags "-X .../cmd.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "voxctl",
	Short:   "Voice-triggered device controller",
	Long:    `Listens for utterances, turns each one into a mel spectrogram and maps recognized phrases to device actions.`,
	Version: version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	rootCmd.AddCommand(listenCmd, processCmd, devicesCmd, configCmd)
}

// bindFlags ties the persistent flags to their config keys. It runs on every
// initialization because viper.Reset drops bindings.
func bindFlags() {
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("device_index", flags.Lookup("device"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
}

func initConfig() {
	bindFlags()
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(observe.NewLogger(os.Stderr, viper.GetString("log_level"), viper.GetBool("debug")))
}

// loadSettings returns validated settings for a subcommand.
func loadSettings() (*config.Settings, error) {
	s, err := config.Get()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return s, nil
}
