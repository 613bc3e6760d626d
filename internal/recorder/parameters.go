package recorder

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/roman-kulish/sdrcap/internal/sdr"
	"github.com/roman-kulish/sdrcap/internal/storage"
)

const (
	DefaultCenterFrequency = 100.7e6 // Hz
	DefaultSampleRate      = 2.4e6   // Hz
	DefaultFreqCorrection  = 60      // ppm
	DefaultGain            = sdr.GainAuto
	DefaultSampleWindow    = 1024 * 256
	DefaultRecordDelay     = 2 * time.Second
	DefaultOutputDir       = "outputs"
	DefaultFormat          = storage.FormatFlatTable
)

// Parameters describe a recording. They are fixed for the lifetime of a
// session.
type Parameters struct {
	CenterFrequency float64        // Hz
	SampleRate      float64        // Hz
	FreqCorrection  int            // ppm
	Gain            string         // "auto" or device-defined dB value
	SampleWindow    int            // Samples per batch
	RecordDelay     time.Duration  // Pause between batches, whole seconds only
	OutputDir       string         // Created if absent
	Format          storage.Format // Destination format
}

// DefaultParameters returns parameters for an FM broadcast recording
func DefaultParameters() Parameters {
	return Parameters{
		CenterFrequency: DefaultCenterFrequency,
		SampleRate:      DefaultSampleRate,
		FreqCorrection:  DefaultFreqCorrection,
		Gain:            DefaultGain,
		SampleWindow:    DefaultSampleWindow,
		RecordDelay:     DefaultRecordDelay,
		OutputDir:       DefaultOutputDir,
		Format:          DefaultFormat,
	}
}

// Validate checks the parameters without touching the filesystem
func (p Parameters) Validate() error {
	if err := p.Format.Validate(); err != nil {
		return &ConfigError{Field: "format", Err: err}
	}
	if p.CenterFrequency <= 0 {
		return newConfigError("center frequency", "must be positive: %0.f given", p.CenterFrequency)
	}
	if p.SampleRate <= 0 {
		return newConfigError("sample rate", "must be positive: %0.f given", p.SampleRate)
	}
	if _, _, err := sdr.ParseGain(p.Gain); err != nil {
		return &ConfigError{Field: "gain", Err: err}
	}
	if p.SampleWindow <= 0 {
		return newConfigError("sample window", "must be positive: %d given", p.SampleWindow)
	}
	if p.RecordDelay < 0 {
		return newConfigError("record delay", "must not be negative: %s given", p.RecordDelay)
	}
	if strings.TrimSpace(p.OutputDir) == "" {
		return newConfigError("output directory", "is required")
	}
	return nil
}

// Tuning returns the radio tuning of the recording
func (p Parameters) Tuning() sdr.Tuning {
	return sdr.Tuning{
		CenterFrequency: p.CenterFrequency,
		SampleRate:      p.SampleRate,
		FreqCorrection:  p.FreqCorrection,
		Gain:            p.Gain,
	}
}

// Metadata returns the metadata stored alongside the samples
func (p Parameters) Metadata() storage.Metadata {
	return storage.MetadataFromTuning(p.Tuning())
}

// Destination returns the path of the destination for label, e.g.
// "outputs/20240501_120000-sample_window262144.csv". An empty label is
// omitted.
func (p Parameters) Destination(label string) string {
	name := fmt.Sprintf("sample_window%d.%s", p.SampleWindow, p.Format.Extension())
	if label != "" {
		name = label + "-" + name
	}
	return filepath.Join(p.OutputDir, name)
}

// delay returns the pause between batches truncated to whole seconds
func (p Parameters) delay() time.Duration {
	return p.RecordDelay.Truncate(time.Second)
}
