package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/rf-sentinel/cmd/sentinel/app"
)

var (
	configPath string
	logLevel   slog.LevelVar
	levelName  string

	live       bool
	replayFile string

	recordFrequency app.Frequency
	recordDuration  time.Duration

	waterfallOptions = app.DefaultWaterfallOptions()
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "RF spectrum monitor with triggered IQ capture",
	Long: `sentinel sweeps a list of frequencies with an SDR, reports signals
above a power threshold and records raw IQ samples of strong ones.

Examples:
  sentinel monitor -c config.yaml
  sentinel monitor -c config.yaml --live
  sentinel record -c config.yaml --frequency 2.41GHz --duration 5s
  sentinel waterfall --input capture.cfile --sample-rate 10MHz --output capture.png`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Sweep the configured frequencies and capture strong signals",
	RunE:  runMonitor,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one capture at a frequency",
	RunE:  runRecord,
}

var waterfallCmd = &cobra.Command{
	Use:   "waterfall",
	Short: "Render the waterfall of a raw IQ recording",
	RunE:  runWaterfall,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&levelName, "log-level", "", "Log level, overrides the configuration [debug, info, warn, error]")

	monitorCmd.Flags().BoolVar(&live, "live", false, "Show the live waterfall in the terminal")
	monitorCmd.Flags().StringVar(&replayFile, "replay", "", "Replay a raw IQ recording instead of a radio")

	recordCmd.Flags().Var(&recordFrequency, "frequency", "Frequency to record, e.g. 433.92MHz")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Recording length, the configured one when omitted")
	_ = recordCmd.MarkFlagRequired("frequency")

	f := waterfallCmd.Flags()
	f.StringVar(&waterfallOptions.Input, "input", "", "Raw complex64 recording")
	f.Var(&waterfallOptions.SampleRate, "sample-rate", "Sample rate of the recording")
	f.Var(&waterfallOptions.Center, "center", "Centre frequency, for labels")
	f.IntVar(&waterfallOptions.FFTSize, "fft-size", waterfallOptions.FFTSize, "FFT size")
	f.StringVar(&waterfallOptions.Window, "window", waterfallOptions.Window, "FFT window [hann, hamming, blackman, blackman-harris, bartlett, rectangle]")
	f.StringVar(&waterfallOptions.Theme, "theme", waterfallOptions.Theme, "Colour theme [classic, grayscale, jungle, thermal, marine]")
	f.StringVarP(&waterfallOptions.Output, "output", "o", "", "Image file to write, .png or .jpg")
	f.BoolVar(&waterfallOptions.Live, "live", false, "Play the recording in the terminal")
	f.IntVar(&waterfallOptions.Height, "height", waterfallOptions.Height, "Image height in rows, or live depth")

	rootCmd.AddCommand(monitorCmd, recordCmd, waterfallCmd)
}

// loggedError is an error the command has already written to its log
type loggedError struct {
	error
}

func (e loggedError) Unwrap() error {
	return e.error
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var logged loggedError
		if !errors.As(err, &logged) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &logLevel}))
}

// loadConfig reads the configuration file, or the defaults when none is given
func loadConfig() (*app.Config, error) {
	config := app.DefaultConfig()
	if configPath != "" {
		var err error
		if config, err = app.LoadConfig(configPath); err != nil {
			return nil, fmt.Errorf("failed to load configuration file '%s': %w", configPath, err)
		}
	}

	logLevel.Set(config.Settings.LogLevel)
	if levelName != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelName)); err != nil {
			return nil, err
		}
		logLevel.Set(level)
	}
	return config, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	if replayFile != "" {
		config.Device.Type = app.DeviceFile
		config.Device.File = replayFile
	}
	if live {
		config.Display.Live = true
	}
	if err = config.Validate(); err != nil {
		return err
	}

	// The live display owns the terminal, so logs go to a file
	out := io.Writer(os.Stdout)
	if config.Display.Live {
		f, err := os.OpenFile(config.Settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		out = f
	}
	logger := newLogger(out)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if err = app.Run(ctx, config, logger); err != nil {
		logger.Error(err.Error())
		// The log file is not on screen
		if config.Display.Live {
			return err
		}
		return loggedError{err}
	}
	return nil
}

func runRecord(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if err = app.Record(ctx, config, recordFrequency, recordDuration, logger); err != nil {
		logger.Error(err.Error())
		return loggedError{err}
	}
	return nil
}

func runWaterfall(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if waterfallOptions.Live {
		out = io.Discard
	}
	logger := newLogger(out)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if err := app.RenderWaterfall(ctx, waterfallOptions, logger); err != nil {
		logger.Error(err.Error())
		if waterfallOptions.Live {
			return err
		}
		return loggedError{err}
	}
	return nil
}
