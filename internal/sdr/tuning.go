package sdr

import (
	"fmt"
	"strconv"
	"strings"
)

// GainAuto selects the device automatic gain control
const GainAuto = "auto"

// Tuning carries the radio parameters shared by all devices. They are
// opaque to the recorder and stored alongside the data as metadata.
type Tuning struct {
	CenterFrequency float64 // Hz
	SampleRate      float64 // Hz
	FreqCorrection  int     // ppm
	Gain            string  // "auto" or a device-defined value in dB
}

// Validate checks the tuning parameters
func (t Tuning) Validate() error {
	if t.CenterFrequency <= 0 {
		return fmt.Errorf("sdr.Tuning: center frequency must be positive: %0.f given", t.CenterFrequency)
	}
	if t.SampleRate <= 0 {
		return fmt.Errorf("sdr.Tuning: sample rate must be positive: %0.f given", t.SampleRate)
	}
	if _, _, err := ParseGain(t.Gain); err != nil {
		return fmt.Errorf("sdr.Tuning: %w", err)
	}
	return nil
}

// ParseGain parses a gain setting. An empty string or "auto" selects
// automatic gain control.
func ParseGain(gain string) (value float64, auto bool, err error) {
	gain = strings.TrimSpace(gain)
	if gain == "" || strings.EqualFold(gain, GainAuto) {
		return 0, true, nil
	}

	value, err = strconv.ParseFloat(gain, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid gain %q: must be %q or a number", gain, GainAuto)
	}
	return value, false, nil
}
