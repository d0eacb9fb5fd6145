package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/roman-kulish/rf-sentinel/internal/detect"
	"github.com/roman-kulish/rf-sentinel/internal/iq"
	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
	"github.com/roman-kulish/rf-sentinel/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// writeRecording writes n samples of a constant carrier
func writeRecording(t *testing.T, path string, n int, v complex64) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	samples := make([]complex64, n)
	for i := range samples {
		samples[i] = v
	}
	if _, err = iq.NewWriter(f).Write(samples); err != nil {
		t.Fatal(err)
	}
}

func replayConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()

	input := filepath.Join(dir, "input.cfile")
	writeRecording(t, input, 20000, complex(0.5, 0.5))

	config := DefaultConfig()
	config.Device.Type = DeviceFile
	config.Device.File = input
	config.Device.SampleRate = 1e6
	config.Sweep.Frequencies = []Frequency{433.92e6}
	config.Sweep.Dwell = Duration(time.Hour)
	config.Sweep.BlockSize = 1000
	config.Detection.Cooldown = 0
	config.Spectrum.FFTSize = 256
	config.Spectrum.WaterfallFrames = 10
	config.Capture.Enabled = true
	config.Capture.OutputDirectory = filepath.Join(dir, "captures")
	config.Capture.Duration = Duration(5 * time.Millisecond)
	config.Capture.Snapshot = true
	config.Storage.Database = filepath.Join(dir, "journal.db")

	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return config
}

func TestRunReplay(t *testing.T) {
	config := replayConfig(t)

	if err := Run(context.Background(), config, discard); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(config.Capture.OutputDirectory, "*"+iq.FileExt))
	if err != nil || len(matches) != 1 {
		t.Fatalf("captures on disk = %v, %v; want 1", matches, err)
	}
	stat, err := os.Stat(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(5000 * iq.SampleSize); stat.Size() != want {
		t.Errorf("capture size = %d, want %d", stat.Size(), want)
	}
	if _, err = os.Stat(snapshotPath(matches[0])); err != nil {
		t.Errorf("snapshot: %v", err)
	}

	store := storage.New(config.Storage.Database)
	defer store.Close()
	ctx := context.Background()

	sessions, err := store.Sessions(ctx)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("Sessions() = %v, %v", sessions, err)
	}
	if sessions[0].DeviceType != string(DeviceFile) || sessions[0].DeviceID != "input.cfile" {
		t.Errorf("session = %+v", sessions[0])
	}

	detections, err := store.Detections(ctx, sessions[0].ID)
	if err != nil || len(detections) == 0 {
		t.Fatalf("Detections() = %v, %v", detections, err)
	}
	if detections[0].Strength != detect.Strong || detections[0].Frequency != 433.92e6 {
		t.Errorf("first detection = %+v", detections[0])
	}

	captures, err := store.Captures(ctx, sessions[0].ID)
	if err != nil || len(captures) != 1 {
		t.Fatalf("Captures() = %v, %v", captures, err)
	}
	if c := captures[0]; c.Written != 5000 || c.Error != nil || c.Path != matches[0] {
		t.Errorf("capture = %+v", c)
	}
}

func TestRunQuietRecording(t *testing.T) {
	config := replayConfig(t)
	writeRecording(t, config.Device.File, 20000, complex(0.01, 0))

	if err := Run(context.Background(), config, discard); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(config.Capture.OutputDirectory, "*"))
	if len(matches) != 0 {
		t.Errorf("captures on disk = %v, want none", matches)
	}
}

func TestRunRecordingWithPartialSample(t *testing.T) {
	config := replayConfig(t)

	f, err := os.OpenFile(config.Device.File, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = f.Write([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatal(err)
	}
	if err = f.Close(); err != nil {
		t.Fatal(err)
	}

	if err = Run(context.Background(), config, discard); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRecord(t *testing.T) {
	config := replayConfig(t)

	if err := Record(context.Background(), config, 2410e6, 2*time.Millisecond, discard); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(config.Capture.OutputDirectory, "*_2410.000MHz"+iq.FileExt))
	if len(matches) != 1 {
		t.Fatalf("captures on disk = %v, want 1", matches)
	}
	stat, err := os.Stat(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(2000 * iq.SampleSize); stat.Size() != want {
		t.Errorf("capture size = %d, want %d", stat.Size(), want)
	}
}

func TestRenderWaterfallImage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.cfile")
	writeRecording(t, input, 256*50, complex(0.5, 0))

	opts := DefaultWaterfallOptions()
	opts.Input = input
	opts.Output = filepath.Join(dir, "out.png")
	opts.SampleRate = 1e6
	opts.Center = 433.92e6
	opts.FFTSize = 256
	opts.Height = 20

	if err := RenderWaterfall(context.Background(), opts, discard); err != nil {
		t.Fatalf("RenderWaterfall() error = %v", err)
	}
	if stat, err := os.Stat(opts.Output); err != nil || stat.Size() == 0 {
		t.Errorf("output image: %v", err)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPlayWaterfall(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.cfile")
	writeRecording(t, input, 256*200, complex(0.5, 0))

	opts := DefaultWaterfallOptions()
	opts.Input = input
	opts.Live = true
	opts.SampleRate = 1e6
	opts.Center = 433.92e6
	opts.FFTSize = 256
	opts.Height = 20

	estimator, err := spectrum.NewEstimator(opts.FFTSize, spectrum.Hann)
	if err != nil {
		t.Fatalf("NewEstimator() error = %v", err)
	}

	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- playWaterfall(ctx, opts, estimator, logger, tea.WithInput(nil), tea.WithoutRenderer())
	}()

	deadline := time.After(5 * time.Second)
	for !strings.Contains(logs.String(), "recording finished") {
		select {
		case err = <-done:
			t.Fatalf("playWaterfall() returned early: %v", err)
		case <-deadline:
			t.Fatal("recording was not played while the display was running")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The display stays up until it is closed
	cancel()
	select {
	case err = <-done:
		if err != nil {
			t.Errorf("playWaterfall() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("playWaterfall() did not return after cancellation")
	}
}

func TestWaterfallOptionsValidate(t *testing.T) {
	opts := DefaultWaterfallOptions()
	if err := opts.Validate(); err == nil {
		t.Error("Validate() without input expected error")
	}

	opts.Input = "a.cfile"
	opts.Output = "a.gif"
	if err := opts.Validate(); err == nil {
		t.Error("Validate() with .gif output expected error")
	}

	opts.Output = ""
	opts.Live = true
	if err := opts.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSnapshotPath(t *testing.T) {
	if got := snapshotPath("/x/20240501_120000_433.920MHz.cfile"); got != "/x/20240501_120000_433.920MHz.png" {
		t.Errorf("snapshotPath() = %s", got)
	}
}
