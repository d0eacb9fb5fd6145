package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/roman-kulish/rf-sentinel/internal/display"
	"github.com/roman-kulish/rf-sentinel/internal/iq"
	"github.com/roman-kulish/rf-sentinel/internal/render"
	"github.com/roman-kulish/rf-sentinel/internal/sdr"
	"github.com/roman-kulish/rf-sentinel/internal/sdr/driver"
	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
)

const (
	defaultImageHeight = 1000

	// pacingRows is how many rows are pushed between two pacing checks
	pacingRows = 64
)

// WaterfallOptions describe how a recording is turned into a waterfall
type WaterfallOptions struct {
	Input      string
	SampleRate Frequency
	Center     Frequency // Labels only, a recording carries no tuning
	FFTSize    int
	Window     string
	Theme      string

	Output string // Image file, .png or .jpg
	Live   bool   // Play the recording in the terminal instead
	Height int    // Image rows, or live waterfall depth
}

// DefaultWaterfallOptions returns options matching the monitor defaults
func DefaultWaterfallOptions() WaterfallOptions {
	return WaterfallOptions{
		SampleRate: defaultSampleRate,
		FFTSize:    spectrum.DefaultFFTSize,
		Window:     string(spectrum.DefaultWindow),
		Theme:      string(render.DefaultTheme),
		Height:     defaultImageHeight,
	}
}

func (o *WaterfallOptions) Validate() error {
	var errs []string
	if o.Input == "" {
		errs = append(errs, "input recording is required")
	}
	if o.Output == "" && !o.Live {
		errs = append(errs, "either an output image or live mode is required")
	}
	if o.Output != "" {
		if _, err := render.FormatFromPath(o.Output); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if o.SampleRate <= 0 {
		errs = append(errs, fmt.Sprintf("sample rate must be positive: %s given", o.SampleRate))
	}
	if o.FFTSize < 2 {
		errs = append(errs, fmt.Sprintf("FFT size must be at least 2: %d given", o.FFTSize))
	}
	if _, err := spectrum.ParseWindow(o.Window); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := render.ParseTheme(o.Theme); err != nil {
		errs = append(errs, err.Error())
	}
	if o.Height < 1 {
		errs = append(errs, fmt.Sprintf("height must be positive: %d given", o.Height))
	}

	if len(errs) > 0 {
		return driver.NewConfigError(strings.Join(errs, "; "))
	}
	return nil
}

func (o *WaterfallOptions) rowDuration() time.Duration {
	return time.Duration(float64(o.FFTSize) / o.SampleRate.Hz() * float64(time.Second))
}

// RenderWaterfall computes the spectrogram of a raw recording and either
// writes it as an image or plays it back in the terminal at signal speed.
func RenderWaterfall(ctx context.Context, opts WaterfallOptions, logger *slog.Logger) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	window, _ := spectrum.ParseWindow(opts.Window)
	estimator, err := spectrum.NewEstimator(opts.FFTSize, window)
	if err != nil {
		return err
	}

	if opts.Live {
		return playWaterfall(ctx, opts, estimator, logger)
	}
	return writeWaterfall(ctx, opts, estimator, logger)
}

func writeWaterfall(ctx context.Context, opts WaterfallOptions, estimator *spectrum.Estimator, logger *slog.Logger) error {
	stat, err := os.Stat(opts.Input)
	if err != nil {
		return fmt.Errorf("reading recording: %w", err)
	}

	total := int(iq.Samples(stat.Size()) / int64(opts.FFTSize))
	if total == 0 {
		return fmt.Errorf("recording '%s' is shorter than one FFT window", opts.Input)
	}
	rpp := render.RowsPerPixel(total, opts.Height)
	depth := (total + rpp - 1) / rpp

	src, err := sdr.OpenFile(opts.Input)
	if err != nil {
		return err
	}
	defer src.Close()

	logger.Info("reading recording",
		slog.String("input", opts.Input),
		slog.Int("rows", total),
		slog.Int("rowsPerPixel", rpp))

	w := spectrum.NewWaterfall(depth, opts.FFTSize, 0)
	w.SetTuning(opts.Center.Hz(), opts.SampleRate.Hz())

	peak := render.NewPeakHold(rpp)
	if _, err = spectrum.Replay(ctx, src, estimator, func(row spectrum.Row) error {
		if merged, ok := peak.Add(row); ok {
			return w.Push(merged)
		}
		return nil
	}); err != nil {
		return err
	}
	if merged, ok := peak.Flush(); ok {
		if err = w.Push(merged); err != nil {
			return err
		}
	}

	theme, _ := render.ParseTheme(opts.Theme)
	renderer, err := render.New(render.Config{
		Theme:       theme,
		RowDuration: opts.rowDuration() * time.Duration(rpp),
	})
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	img, err := renderer.Render(w.Frame())
	if err != nil {
		return fmt.Errorf("rendering waterfall: %w", err)
	}

	logger.Info("writing waterfall",
		slog.String("destination", opts.Output),
		slog.Int("width", img.Bounds().Dx()),
		slog.Int("height", img.Bounds().Dy()))

	return render.WriteFile(opts.Output, img)
}

func playWaterfall(ctx context.Context, opts WaterfallOptions, estimator *spectrum.Estimator, logger *slog.Logger, options ...tea.ProgramOption) error {
	src, err := sdr.OpenFile(opts.Input)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := spectrum.NewWaterfall(opts.Height, opts.FFTSize, 0)
	w.SetTuning(opts.Center.Hz(), opts.SampleRate.Hz())

	theme, _ := render.ParseTheme(opts.Theme)
	live := display.New(ctx, w, display.DefaultRefresh, theme, options...)

	rowDuration := opts.rowDuration()
	replayErr := make(chan error, 1)

	go func() {
		live.Tune(opts.Center.Hz())

		started := time.Now()
		var rows int

		_, err := spectrum.Replay(ctx, src, estimator, func(row spectrum.Row) error {
			if err := w.Push(row); err != nil {
				return err
			}
			if rows++; rows%pacingRows != 0 {
				return nil
			}

			ahead := time.Duration(rows)*rowDuration - time.Since(started)
			if ahead <= 0 {
				return nil
			}
			t := time.NewTimer(ahead)
			defer t.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		})
		if err == nil {
			logger.Info("recording finished", slog.Int("rows", rows))
		}
		replayErr <- err
	}()

	if err = live.Run(); err != nil {
		return fmt.Errorf("live display: %w", err)
	}
	cancel()

	if err = <-replayErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
