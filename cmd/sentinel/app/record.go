package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/storage"
)

// Record makes one capture at frequency outside of the sweep. A zero
// duration uses the configured one. An interrupted recording keeps whatever
// was written and is not an error.
func Record(ctx context.Context, config *Config, frequency Frequency, duration time.Duration, logger *slog.Logger) (err error) {
	if frequency <= 0 {
		return fmt.Errorf("frequency must be positive: %s given", frequency)
	}

	captureConfig := config.capture()
	captureConfig.Enabled = true
	if duration > 0 {
		captureConfig.Duration = duration
	}
	if err = captureConfig.Validate(); err != nil {
		return err
	}

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
	if err = capture.PrepareDirectory(captureConfig.OutputDirectory); err != nil {
		return err
	}

	store := storage.New(config.Storage.Database)
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	sessionID, err := store.CreateSession(ctx, string(config.Device.Type), deviceID, config.redacted())
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	j := newJournal(store, sessionID, logger)
	defer j.Close()

	controller, err := capture.NewController(captureConfig, source, nil,
		capture.WithLogger(logger),
		capture.WithCompletionHandler(j.Capture))
	if err != nil {
		return err
	}

	if err = source.Tune(ctx, frequency.Hz()); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	s, err := controller.Record(ctx, frequency.Hz())
	if errors.Is(err, context.Canceled) {
		logger.Info("recording interrupted", slog.String("session", s.String()))
		return nil
	}
	return err
}
