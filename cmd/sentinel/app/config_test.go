package app

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/rf-sentinel/internal/sdr/driver"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Device.Type != DeviceHackRF || config.Device.SampleRate != 10e6 || config.Device.Gain != 30 {
		t.Errorf("device = %+v", config.Device)
	}
	if got := config.frequencies(); len(got) != 4 || got[1] != 2410e6 {
		t.Errorf("frequencies = %v", got)
	}
	if config.Capture.OutputDirectory != "IQ_dumps" || config.Capture.Duration.Std() != 3*time.Second || config.Capture.RepeatWait != 5 {
		t.Errorf("capture = %+v", config.Capture)
	}
	if config.Sweep.Dwell.Std() != 500*time.Millisecond || config.Sweep.BlockSize != 40960 {
		t.Errorf("sweep = %+v", config.Sweep)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
device:
  type: rtl
  sampleRate: 2.4MHz
  gain: 20
  rtl:
    deviceIndex: 1
sweep:
  frequencies: [433.92MHz, "868 MHz", 1090000000]
  dwell: 1s
capture:
  enabled: true
  outputDirectory: /tmp/captures
  duration: 5s
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Settings.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", config.Settings.LogLevel)
	}
	if config.Device.Type != DeviceRTLSDR || config.Device.SampleRate != 2.4e6 || config.Device.RTL.DeviceIndex != 1 {
		t.Errorf("device = %+v", config.Device)
	}

	want := []float64{433.92e6, 868e6, 1090e6}
	got := config.frequencies()
	if len(got) != len(want) {
		t.Fatalf("frequencies = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frequency %d = %v, want %v", i, got[i], want[i])
		}
	}

	c := config.capture()
	if !c.Enabled || c.Target() != 12e6 || c.BlockSize != 40960 {
		t.Errorf("capture = %+v", c)
	}
	// 1024 samples at 2.4 MHz
	if got := config.rowDuration(); got < 426666*time.Nanosecond || got > 426667*time.Nanosecond {
		t.Errorf("row duration = %s", got)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "unknown key", content: "device:\n  colour: red\n", want: "colour"},
		{name: "bad duration", content: "sweep:\n  dwell: soon\n", want: "app.Duration"},
		{name: "bad frequency", content: "sweep:\n  frequencies: [2.4GB]\n", want: "unit"},
		{name: "unknown device", content: "device:\n  type: usrp\n", want: "unknown type 'usrp'"},
		{name: "empty sweep", content: "sweep:\n  frequencies: []\n", want: "at least one frequency"},
		{name: "thresholds", content: "detection:\n  threshold: 0.5\n  highThreshold: 0.1\n", want: "high threshold"},
		{name: "window", content: "spectrum:\n  window: kaiser\n", want: "kaiser"},
		{name: "mqtt", content: "mqtt:\n  enabled: true\n", want: "broker is required"},
		{name: "file device", content: "device:\n  type: file\n", want: "file is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadConfig() expected error")
			}

			var configErr *driver.ConfigError
			if !errors.As(err, &configErr) {
				t.Errorf("error type = %T, want *driver.ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig() error = %v, want os.ErrNotExist", err)
	}
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in      string
		want    Frequency
		wantErr bool
	}{
		{in: "433920000", want: 433.92e6},
		{in: "433.92MHz", want: 433.92e6},
		{in: "2.41 GHz", want: 2.41e9},
		{in: "5.8G", want: 5.8e9},
		{in: "915e6", want: 915e6},
		{in: "", wantErr: true},
		{in: "2.4GB", wantErr: true},
		{in: "fast", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrequency(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFrequency(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseFrequency(%q) = %v, want %v", tt.in, float64(got), float64(tt.want))
			}
		})
	}
}

func TestFrequencyFlag(t *testing.T) {
	var f Frequency
	if err := f.Set("868MHz"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if f != 868e6 || f.String() != "868 MHz" || f.Type() != "frequency" {
		t.Errorf("flag = %v %q %q", float64(f), f.String(), f.Type())
	}
}

func TestRedacted(t *testing.T) {
	config := DefaultConfig()
	config.MQTT.Password = "secret"

	if r := config.redacted(); r.MQTT.Password == "secret" {
		t.Error("redacted() kept the password")
	}
	if config.MQTT.Password != "secret" {
		t.Error("redacted() modified the original")
	}
}
