package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/sdrcap/internal/recorder"
	"github.com/roman-kulish/sdrcap/internal/sdr"
	"github.com/roman-kulish/sdrcap/internal/sdr/hackrf"
	"github.com/roman-kulish/sdrcap/internal/sdr/rtl"
	"github.com/roman-kulish/sdrcap/internal/storage"
)

const (
	DeviceRTLSDR    DeviceType = "rtl"
	DeviceHackRF    DeviceType = "hackrf"
	DeviceFile      DeviceType = "file"
	DeviceSynthetic DeviceType = "synthetic"

	ModeSingle     Mode = "single"
	ModeContinuous Mode = "continuous"
)

type DeviceType string

type Mode string

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Device    DeviceConfig    `yaml:"device"`
	Recording RecordingConfig `yaml:"recording"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
}

// DeviceConfig represents the sample source. Config holds the device
// specific configuration, decoded according to Type.
type DeviceConfig struct {
	Name   string     `yaml:"name"`
	Type   DeviceType `yaml:"type"`
	Config any        `yaml:"config"`
}

// FileConfig replays a raw IQ capture
type FileConfig struct {
	Path         string           `yaml:"path"`
	SampleFormat sdr.SampleFormat `yaml:"sampleFormat"`
	Loop         bool             `yaml:"loop"`
}

// SyntheticConfig generates a tone offset from the center frequency
type SyntheticConfig struct {
	ToneFrequency float64 `yaml:"toneFrequency"`
	Amplitude     float64 `yaml:"amplitude"`
	Paced         bool    `yaml:"paced"`
}

// RecordingConfig represents the recording parameters. Unset values take
// the recorder defaults.
type RecordingConfig struct {
	CenterFrequency float64       `yaml:"centerFreq"`
	SampleRate      float64       `yaml:"sampleRate"`
	FreqCorrection  *int          `yaml:"freqCorrection"`
	Gain            string        `yaml:"gain"`
	SampleWindow    int           `yaml:"sampleWindow"`
	RecordDelay     *TimeDuration `yaml:"recordDelay"`
	OutputDir       string        `yaml:"outputDir"`
	Format          string        `yaml:"format"`
	Mode            Mode          `yaml:"mode"`
	Label           string        `yaml:"label"`
	TimestampPolicy string        `yaml:"timestampPolicy"`
	Group           string        `yaml:"group"`
}

// MetricsConfig represents the Prometheus endpoint, disabled when Addr is empty
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoadConfig reads, defaults and validates the configuration file
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var c Config
	if err = yaml.Unmarshal(p, &c); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	c.applyDefaults()
	if err = c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) applyDefaults() {
	d := recorder.DefaultParameters()
	r := &c.Recording

	if r.CenterFrequency == 0 {
		r.CenterFrequency = d.CenterFrequency
	}
	if r.SampleRate == 0 {
		r.SampleRate = d.SampleRate
	}
	if r.FreqCorrection == nil {
		r.FreqCorrection = &d.FreqCorrection
	}
	if r.Gain == "" {
		r.Gain = d.Gain
	}
	if r.SampleWindow == 0 {
		r.SampleWindow = d.SampleWindow
	}
	if r.RecordDelay == nil {
		delay := NewTimeDuration(d.RecordDelay)
		r.RecordDelay = &delay
	}
	if r.OutputDir == "" {
		r.OutputDir = d.OutputDir
	}
	if r.Format == "" {
		r.Format = d.Format.String()
	}
	if r.Mode == "" {
		r.Mode = ModeContinuous
	}

	if c.Device.Name == "" {
		c.Device.Name = "0"
	}
	if c.Device.Type == DeviceSynthetic && c.Device.Config == nil {
		c.Device.Config = &SyntheticConfig{}
	}
	if sc, ok := c.Device.Config.(*SyntheticConfig); ok && sc.Amplitude == 0 {
		sc.Amplitude = 0.5
	}
}

// Validate checks the configuration, including the recording parameters
// and the device configuration
func (c *Config) Validate() error {
	if _, err := c.Recording.Parameters(); err != nil {
		return err
	}

	switch c.Recording.Mode {
	case ModeSingle, ModeContinuous:
	default:
		return fmt.Errorf("invalid recording mode %q: must be one of %s, %s", c.Recording.Mode, ModeSingle, ModeContinuous)
	}

	if c.Recording.TimestampPolicy != "" {
		if _, err := storage.ParseTimestampPolicy(c.Recording.TimestampPolicy); err != nil {
			return err
		}
	}

	return c.Device.Validate()
}

// Parameters converts the configuration into recording parameters
func (r *RecordingConfig) Parameters() (recorder.Parameters, error) {
	format, err := storage.ParseFormat(r.Format)
	if err != nil {
		return recorder.Parameters{}, &recorder.ConfigError{Field: "format", Err: err}
	}

	p := recorder.Parameters{
		CenterFrequency: r.CenterFrequency,
		SampleRate:      r.SampleRate,
		Gain:            r.Gain,
		SampleWindow:    r.SampleWindow,
		OutputDir:       r.OutputDir,
		Format:          format,
	}
	if r.FreqCorrection != nil {
		p.FreqCorrection = *r.FreqCorrection
	}
	if r.RecordDelay != nil {
		p.RecordDelay = time.Duration(*r.RecordDelay)
	}

	return p, p.Validate()
}

// SinkOptions returns the storage options selected by the configuration
func (r *RecordingConfig) SinkOptions() []storage.Option {
	var opts []storage.Option
	if r.TimestampPolicy != "" {
		policy, _ := storage.ParseTimestampPolicy(r.TimestampPolicy) // validated
		opts = append(opts, storage.WithTimestampPolicy(policy))
	}
	if r.Group != "" {
		opts = append(opts, storage.WithGroup(r.Group))
	}
	return opts
}

func (d *DeviceConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name   string     `yaml:"name"`
		Type   DeviceType `yaml:"type"`
		Config yaml.Node  `yaml:"config"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	var config any
	switch raw.Type {
	case DeviceRTLSDR:
		config = &rtl.Config{}
	case DeviceHackRF:
		config = &hackrf.Config{}
	case DeviceFile:
		config = &FileConfig{}
	case DeviceSynthetic:
		config = &SyntheticConfig{}
	default:
		return fmt.Errorf("unknown device type %q", raw.Type)
	}

	if raw.Config.Kind != 0 {
		if err := raw.Config.Decode(config); err != nil {
			return fmt.Errorf("decoding %s device config: %w", raw.Type, err)
		}
	}

	d.Name = raw.Name
	d.Type = raw.Type
	d.Config = config
	return nil
}

func (d *DeviceConfig) Validate() error {
	switch c := d.Config.(type) {
	case *rtl.Config:
		return c.Validate()
	case *hackrf.Config:
		return c.Validate()
	case *FileConfig:
		return c.Validate()
	case *SyntheticConfig:
		return nil
	case nil:
		return errors.New("device is required")
	default:
		return fmt.Errorf("unsupported device config %T", c)
	}
}

func (c *FileConfig) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.New("file device: path is required")
	}
	return c.SampleFormat.Validate()
}

// TimeDuration is a time.Duration written as a Go duration string, e.g. "2s"
type TimeDuration time.Duration

func NewTimeDuration(d time.Duration) TimeDuration {
	return TimeDuration(d)
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
