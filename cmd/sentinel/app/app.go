package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
	"github.com/roman-kulish/rf-sentinel/internal/display"
	"github.com/roman-kulish/rf-sentinel/internal/metrics"
	"github.com/roman-kulish/rf-sentinel/internal/monitor"
	"github.com/roman-kulish/rf-sentinel/internal/publish"
	"github.com/roman-kulish/rf-sentinel/internal/render"
	"github.com/roman-kulish/rf-sentinel/internal/sdr"
	"github.com/roman-kulish/rf-sentinel/internal/sdr/hackrf"
	"github.com/roman-kulish/rf-sentinel/internal/sdr/rtl"
	"github.com/roman-kulish/rf-sentinel/internal/server"
	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
	"github.com/roman-kulish/rf-sentinel/internal/storage"
	"github.com/roman-kulish/rf-sentinel/internal/sweep"
)

const publisherCloseTimeout = 5 * time.Second

// hooks fans acquisition events out to every interested component
type hooks struct {
	tune          []func(float64)
	visit         []func(float64)
	detection     []func(detect.Event)
	captureStart  []func(float64)
	captureFinish []func(*capture.Session, error)
}

func (h *hooks) onTune(frequency float64) {
	for _, fn := range h.tune {
		fn(frequency)
	}
}

func (h *hooks) onVisit(frequency float64) {
	for _, fn := range h.visit {
		fn(frequency)
	}
}

func (h *hooks) onDetection(ev detect.Event) {
	for _, fn := range h.detection {
		fn(ev)
	}
}

func (h *hooks) onCaptureStart(frequency float64) {
	for _, fn := range h.captureStart {
		fn(frequency)
	}
}

func (h *hooks) onCaptureFinish(s *capture.Session, err error) {
	for _, fn := range h.captureFinish {
		fn(s, err)
	}
}

// Run monitors the configured frequencies until ctx is cancelled, the source
// is exhausted, the user quits the live display or the radio fails.
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	source, deviceID, err := openSource(config, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, source.Close())
	}()

	if err = source.Configure(config.Device.SampleRate.Hz(), config.Device.Gain); err != nil {
		return fmt.Errorf("configuring %s: %w", deviceID, err)
	}

	captureConfig := config.capture()
	if captureConfig.Enabled {
		if err = capture.PrepareDirectory(captureConfig.OutputDirectory); err != nil {
			return err
		}
	}

	store := storage.New(config.Storage.Database)
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	sessionID, err := store.CreateSession(ctx, string(config.Device.Type), deviceID, config.redacted())
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	logger = logger.With(slog.String("session", sessionID))

	j := newJournal(store, sessionID, logger)
	defer j.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	estimator, err := spectrum.NewEstimator(config.Spectrum.FFTSize, spectrum.Window(config.Spectrum.Window))
	if err != nil {
		return err
	}
	waterfall := spectrum.NewWaterfall(config.Spectrum.WaterfallFrames, config.Spectrum.FFTSize, 0)

	theme, _ := render.ParseTheme(config.Display.Theme)
	renderer, err := render.New(render.Config{Theme: theme, RowDuration: config.rowDuration()})
	if err != nil {
		return err
	}

	tracker := server.NewTracker(sessionID, deviceID, time.Now())

	h := hooks{
		tune:          []func(float64){m.ObserveTune, tracker.Tune},
		detection:     []func(detect.Event){m.ObserveDetection, tracker.Detection, j.Detection},
		captureStart:  []func(float64){func(float64) { m.CaptureStarted() }, tracker.CaptureStarted},
		captureFinish: []func(*capture.Session, error){m.ObserveCapture, tracker.CaptureFinished, j.Capture},
	}

	if config.MQTT.Enabled {
		var publisher *publish.Publisher
		publisher, err = publish.New(config.MQTT.publish(),
			publish.WithLogger(logger),
			publish.WithSessionID(sessionID))
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), publisherCloseTimeout)
			defer closeCancel()
			err = errors.Join(err, publisher.Close(closeCtx))
		}()

		h.detection = append(h.detection, publisher.PublishDetection)
		h.captureFinish = append(h.captureFinish, publisher.PublishCapture)
	}

	if config.Capture.Snapshot {
		h.captureFinish = append(h.captureFinish, snapshotWriter(waterfall, renderer, logger))
	}

	var live *display.Display
	if config.Display.Live {
		live = display.New(ctx, waterfall, config.Display.Refresh.Std(), theme)

		h.tune = append(h.tune, live.Tune)
		h.detection = append(h.detection, live.Detection)
		h.captureStart = append(h.captureStart, live.CaptureStarted)
		h.captureFinish = append(h.captureFinish, live.CaptureFinished)
	}

	budget := sweep.NewBudget(len(config.Sweep.Frequencies), config.Capture.RepeatWait)
	scheduler, err := sweep.NewScheduler(config.frequencies(), config.Sweep.Dwell.Std(),
		sweep.WithLogger(logger),
		sweep.WithBudget(budget))
	if err != nil {
		return err
	}

	h.visit = append(h.visit, func(float64) {
		cycles := budget.Cycles()
		m.ObserveVisit(cycles)
		tracker.Visit(cycles)
	})

	controller, err := capture.NewController(captureConfig, source, budget,
		capture.WithLogger(logger),
		capture.WithStartHandler(h.onCaptureStart),
		capture.WithCompletionHandler(h.onCaptureFinish))
	if err != nil {
		return err
	}

	engine, err := detect.New(config.detection(),
		detect.WithLogger(logger),
		detect.WithTrigger(controller),
		detect.WithEventHandler(h.onDetection),
		detect.WithBlockHandler(func(frequency float64, block []complex64) {
			m.ObserveBlock(frequency, spectrum.Power(block))
		}),
		detect.WithUnderrunHandler(m.ObserveUnderrun))
	if err != nil {
		return err
	}

	mon := monitor.New(source, scheduler, engine,
		monitor.WithLogger(logger),
		monitor.WithWaterfall(estimator, waterfall, config.Device.SampleRate.Hz()),
		monitor.WithTuneHandler(h.onTune),
		monitor.WithVisitHandler(h.onVisit))

	logger.Info("starting",
		slog.String("device", deviceID),
		slog.String("frequencies", config.frequencyList()),
		slog.String("sampleRate", config.Device.SampleRate.String()),
		slog.Bool("capture", captureConfig.Enabled))

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if config.Server.Listen != "" {
		srv := server.New(config.Server.Listen, tracker,
			server.WithLogger(logger),
			server.WithGatherer(reg),
			server.WithJournal(store, sessionID),
			server.WithWaterfall(waterfall, renderer))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				errCh <- fmt.Errorf("HTTP server: %w", err)
				cancel()
			}
		}()
	}

	monitorDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(monitorDone)
		if err := mon.Run(ctx); err != nil {
			errCh <- err
			cancel()
		}
	}()

	if live != nil {
		if err := live.Run(); err != nil {
			errCh <- fmt.Errorf("live display: %w", err)
		}
		// Quitting the display ends the run
		cancel()
	} else {
		select {
		case <-monitorDone:
		case <-ctx.Done():
		}
		cancel()
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for e := range errCh {
		errs = append(errs, e)
	}

	logger.Info("stopped",
		slog.Int64("visits", budget.Visits()),
		slog.Float64("cycles", budget.Cycles()))

	return errors.Join(errs...)
}

// openSource creates the configured source and returns it with its identifier
func openSource(config *Config, logger *slog.Logger) (sdr.Source, string, error) {
	var handler sdr.Handler
	var deviceID string
	var err error

	switch config.Device.Type {
	case DeviceFile:
		src, err := sdr.OpenFile(config.Device.File)
		if err != nil {
			return nil, "", err
		}
		return src, filepath.Base(config.Device.File), nil

	case DeviceHackRF:
		if handler, err = hackrf.New(config.Device.Serial, &config.Device.HackRF); err != nil {
			return nil, "", fmt.Errorf("creating HackRF device: %w", err)
		}
		deviceID = config.Device.Serial
		if deviceID == "" {
			deviceID = "hackrf"
		}

	case DeviceRTLSDR:
		if handler, err = rtl.New(&config.Device.RTL); err != nil {
			return nil, "", fmt.Errorf("creating RTL-SDR device: %w", err)
		}
		deviceID = fmt.Sprintf("rtl-%d", config.Device.RTL.DeviceIndex)

	default:
		return nil, "", fmt.Errorf("creating device: unknown type '%s'", config.Device.Type)
	}

	return sdr.NewDevice(deviceID, handler,
		sdr.WithLogger(logger),
		sdr.WithSettle(config.Device.Settle.Std())), deviceID, nil
}

// snapshotWriter saves the waterfall as it was when a capture ended, next to
// the capture file
func snapshotWriter(w *spectrum.Waterfall, r *render.Renderer, logger *slog.Logger) func(*capture.Session, error) {
	return func(s *capture.Session, _ error) {
		if s == nil || s.Written == 0 {
			return
		}

		img, err := r.Render(w.Frame())
		if err != nil {
			logger.Warn(fmt.Sprintf("rendering snapshot: %s", err.Error()))
			return
		}

		path := snapshotPath(s.Path)
		if err = render.WriteFile(path, img); err != nil {
			logger.Warn(fmt.Sprintf("writing snapshot: %s", err.Error()))
			return
		}
		logger.Debug("snapshot written", slog.String("path", path))
	}
}

func snapshotPath(capturePath string) string {
	return strings.TrimSuffix(capturePath, filepath.Ext(capturePath)) + ".png"
}

// redacted returns a copy safe to store with the session
func (c *Config) redacted() *Config {
	r := *c
	if r.MQTT.Password != "" {
		r.MQTT.Password = "***"
	}
	return &r
}
