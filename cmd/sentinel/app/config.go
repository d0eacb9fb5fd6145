package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
	"github.com/roman-kulish/rf-sentinel/internal/display"
	"github.com/roman-kulish/rf-sentinel/internal/publish"
	"github.com/roman-kulish/rf-sentinel/internal/render"
	"github.com/roman-kulish/rf-sentinel/internal/sdr"
	"github.com/roman-kulish/rf-sentinel/internal/sdr/driver"
	"github.com/roman-kulish/rf-sentinel/internal/sdr/hackrf"
	"github.com/roman-kulish/rf-sentinel/internal/sdr/rtl"
	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
	"github.com/roman-kulish/rf-sentinel/internal/sweep"
)

const (
	DeviceHackRF DeviceType = "hackrf"
	DeviceRTLSDR DeviceType = "rtl"
	DeviceFile   DeviceType = "file"

	defaultLogFile         = "sentinel.log"
	defaultSampleRate      = 10e6
	defaultGain            = 30
	defaultOutputDirectory = "IQ_dumps"
	defaultWaterfallFrames = 100
)

var defaultFrequencies = []Frequency{433.92e6, 2410e6, 5800e6, 915e6}

type DeviceType string

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Device    DeviceConfig    `yaml:"device"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Detection DetectionConfig `yaml:"detection"`
	Spectrum  SpectrumConfig  `yaml:"spectrum"`
	Capture   CaptureConfig   `yaml:"capture"`
	Display   DisplayConfig   `yaml:"display"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
	LogFile  string     `yaml:"logFile"` // Log destination while the live display owns the terminal
}

// DeviceConfig selects and configures the radio
type DeviceConfig struct {
	Type       DeviceType `yaml:"type"`
	Serial     string     `yaml:"serial"` // HackRF serial number
	File       string     `yaml:"file"`   // Recording replayed by the file device
	SampleRate Frequency  `yaml:"sampleRate"`
	Gain       float64    `yaml:"gain"`
	Settle     Duration   `yaml:"settle"`

	HackRF hackrf.Config `yaml:"hackrf"`
	RTL    rtl.Config    `yaml:"rtl"`
}

type SweepConfig struct {
	Frequencies []Frequency `yaml:"frequencies"`
	Dwell       Duration    `yaml:"dwell"`
	BlockSize   int         `yaml:"blockSize"`
}

type DetectionConfig struct {
	Threshold     float64  `yaml:"threshold"`
	HighThreshold float64  `yaml:"highThreshold"`
	Cooldown      Duration `yaml:"cooldown"`
	FullScaleDBm  float64  `yaml:"fullScaleDBm"`
}

type SpectrumConfig struct {
	FFTSize         int    `yaml:"fftSize"`
	Window          string `yaml:"window"`
	WaterfallFrames int    `yaml:"waterfallFrames"`
}

type CaptureConfig struct {
	Enabled         bool     `yaml:"enabled"`
	OutputDirectory string   `yaml:"outputDirectory"`
	Duration        Duration `yaml:"duration"`
	RepeatWait      int      `yaml:"repeatWait"` // Visits between captures, spread over the sweep
	Snapshot        bool     `yaml:"snapshot"`   // Save a waterfall image next to every capture
}

type DisplayConfig struct {
	Live    bool     `yaml:"live"`
	Refresh Duration `yaml:"refresh"`
	Theme   string   `yaml:"theme"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"` // Empty disables the HTTP server
}

type StorageConfig struct {
	Database string `yaml:"database"` // SQLite file, in memory when empty
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"clientID"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

func (c MQTTConfig) publish() publish.Config {
	return publish.Config{
		Broker:   c.Broker,
		Topic:    c.Topic,
		ClientID: c.ClientID,
		Username: c.Username,
		Password: c.Password,
		QoS:      c.QoS,
		Retain:   c.Retain,
	}
}

// DefaultConfig returns the configuration used for every option a file
// leaves out
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo, LogFile: defaultLogFile},
		Device: DeviceConfig{
			Type:       DeviceHackRF,
			SampleRate: defaultSampleRate,
			Gain:       defaultGain,
			Settle:     Duration(sdr.DefaultSettle),
		},
		Sweep: SweepConfig{
			Frequencies: slices.Clone(defaultFrequencies),
			Dwell:       Duration(sweep.DefaultDwell),
			BlockSize:   detect.DefaultBlockSize,
		},
		Detection: DetectionConfig{
			Threshold:     detect.DefaultThreshold,
			HighThreshold: detect.DefaultHighThreshold,
			Cooldown:      Duration(detect.DefaultCooldown),
			FullScaleDBm:  detect.DefaultFullScaleDBm,
		},
		Spectrum: SpectrumConfig{
			FFTSize:         spectrum.DefaultFFTSize,
			Window:          string(spectrum.DefaultWindow),
			WaterfallFrames: defaultWaterfallFrames,
		},
		Capture: CaptureConfig{
			OutputDirectory: defaultOutputDirectory,
			Duration:        Duration(capture.DefaultDuration),
			RepeatWait:      capture.DefaultRepeatWait,
		},
		Display: DisplayConfig{
			Refresh: Duration(display.DefaultRefresh),
			Theme:   string(render.DefaultTheme),
		},
		MQTT: MQTTConfig{Topic: publish.DefaultTopic},
	}
}

// LoadConfig reads the YAML configuration at path over the defaults and
// validates it. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, driver.NewConfigError(fmt.Sprintf("parsing configuration: %s", err))
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration as a whole. Device specific limits are
// checked again when the device is configured.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Device.Type {
	case DeviceHackRF:
		if err := c.Device.HackRF.Validate(); err != nil {
			errs = append(errs, err)
		}
	case DeviceRTLSDR:
		if err := c.Device.RTL.Validate(); err != nil {
			errs = append(errs, err)
		}
	case DeviceFile:
		if c.Device.File == "" {
			add("device: file is required for the file device")
		}
	default:
		add("device: unknown type '%s'", c.Device.Type)
	}

	if c.Device.SampleRate <= 0 {
		add("device: sample rate must be positive: %s given", c.Device.SampleRate)
	}
	if c.Device.Settle < 0 {
		add("device: settle must not be negative: %s given", c.Device.Settle)
	}

	if len(c.Sweep.Frequencies) == 0 {
		add("sweep: at least one frequency is required")
	}
	for _, f := range c.Sweep.Frequencies {
		if f <= 0 {
			add("sweep: frequency must be positive: %s given", f)
		}
	}
	if c.Sweep.Dwell <= 0 {
		add("sweep: dwell must be positive: %s given", c.Sweep.Dwell)
	}

	detection := c.detection()
	if err := detection.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Spectrum.FFTSize < 2 {
		add("spectrum: FFT size must be at least 2: %d given", c.Spectrum.FFTSize)
	}
	if _, err := spectrum.ParseWindow(c.Spectrum.Window); err != nil {
		add("spectrum: %w", err)
	}
	if c.Spectrum.WaterfallFrames < 1 {
		add("spectrum: waterfall frames must be positive: %d given", c.Spectrum.WaterfallFrames)
	}

	if c.Capture.Enabled {
		captureConfig := c.capture()
		if err := captureConfig.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Capture.RepeatWait < 0 {
		add("capture: repeat wait must not be negative: %d given", c.Capture.RepeatWait)
	}

	if _, err := render.ParseTheme(c.Display.Theme); err != nil {
		add("display: %w", err)
	}

	if c.MQTT.Enabled {
		cfg := c.MQTT.publish()
		if err := cfg.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return driver.NewConfigError(errors.Join(errs...).Error())
	}
	return nil
}

func (c *Config) detection() detect.Config {
	return detect.Config{
		Threshold:     c.Detection.Threshold,
		HighThreshold: c.Detection.HighThreshold,
		Cooldown:      c.Detection.Cooldown.Std(),
		FullScaleDBm:  c.Detection.FullScaleDBm,
		BlockSize:     c.Sweep.BlockSize,
	}
}

func (c *Config) capture() capture.Config {
	return capture.Config{
		Enabled:         c.Capture.Enabled,
		OutputDirectory: c.Capture.OutputDirectory,
		Duration:        c.Capture.Duration.Std(),
		SampleRate:      c.Device.SampleRate.Hz(),
		BlockSize:       c.Sweep.BlockSize,
	}
}

func (c *Config) frequencies() []float64 {
	freqs := make([]float64, len(c.Sweep.Frequencies))
	for i, f := range c.Sweep.Frequencies {
		freqs[i] = f.Hz()
	}
	return freqs
}

func (c *Config) frequencyList() string {
	s := make([]string, len(c.Sweep.Frequencies))
	for i, f := range c.Sweep.Frequencies {
		s[i] = f.String()
	}
	return strings.Join(s, ", ")
}

// Duration of one FFT row at the configured rate
func (c *Config) rowDuration() time.Duration {
	return time.Duration(float64(c.Spectrum.FFTSize) / c.Device.SampleRate.Hz() * float64(time.Second))
}
