package hackrf

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/roman-kulish/sdrcap/internal/sdr"
)

const (
	MinSampleRate = 2_000_000
	MaxSampleRate = 20_000_000
	MaxLNAGain    = 40
	MaxVGAGain    = 62
	LNAGainStep   = 8
	VGAGainStep   = 2
)

// Usage examples from man page:
// https://manpages.debian.org/bookworm/hackrf/hackrf_transfer.1.en.html

/*
	hackrfConfig := hackrf.Config{
        VGAGain: ptr(20),
    }
    args, _ := hackrfConfig.Args(sdr.Tuning{
        CenterFrequency: 433_920_000,
        SampleRate:      8_000_000,
        Gain:            "16",
    })
    // Executes: hackrf_transfer -r - -f 433920000 -s 8000000 -l 16 -g 20
*/

// Config is a struct for configuring the `hackrf_transfer` tool in receive mode
type Config struct {
	SerialNumber string `yaml:"serialNumber" json:"serialNumber"` // -d serial_number Serial number of desired HackRF

	// Optional, when unset the LNA gain is taken from the recording gain
	LNAGain *int `yaml:"lnaGain" json:"lnaGain"` // -l gain_db LNA (IF) gain, 0-40dB, 8dB steps
	VGAGain *int `yaml:"vgaGain" json:"vgaGain"` // -g gain_db VGA (baseband) gain, 0-62dB, 2dB steps

	BasebandFilter int64 `yaml:"basebandFilter" json:"basebandFilter"` // -b baseband_filter_bw_hz

	EnableAmp    bool `yaml:"enableAmp" json:"enableAmp"`       // -a amp_enable RX RF amplifier 1=Enable, 0=Disable
	AntennaPower bool `yaml:"antennaPower" json:"antennaPower"` // -p antenna_enable Antenna port power, 1=Enable, 0=Disable

	// Always dump to stdout
	// OutputFile   string // -r filename Output file
}

func (c *Config) Validate() error {
	if c.LNAGain != nil {
		if err := validateLNAGain(*c.LNAGain); err != nil {
			return err
		}
	}

	// VGA gain validation (0-62dB in 2dB steps)
	if c.VGAGain != nil {
		if *c.VGAGain < 0 || *c.VGAGain > MaxVGAGain {
			return fmt.Errorf("hackrf.Config: VGA gain must be between 0 and 62 dB: %d given", *c.VGAGain)
		}
		if *c.VGAGain%VGAGainStep != 0 {
			return errors.New("hackrf.Config: VGA gain must be a multiple of 2 dB")
		}
	}

	if c.BasebandFilter < 0 {
		return fmt.Errorf("hackrf.Config: baseband filter bandwidth cannot be negative: %d given", c.BasebandFilter)
	}

	return nil
}

// LNA gain validation (0-40dB in 8dB steps)
func validateLNAGain(gain int) error {
	if gain < 0 || gain > MaxLNAGain {
		return fmt.Errorf("hackrf.Config: LNA gain must be between 0 and 40 dB: %d given", gain)
	}
	if gain%LNAGainStep != 0 {
		return errors.New("hackrf.Config: LNA gain must be a multiple of 8 dB")
	}
	return nil
}

// Args builds the command line arguments for `hackrf_transfer`
// See `man hackrf_transfer` for more information:
// https://manpages.debian.org/bookworm/hackrf/hackrf_transfer.1.en.html
func (c *Config) Args(t sdr.Tuning) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.SampleRate < MinSampleRate || t.SampleRate > MaxSampleRate {
		return nil, fmt.Errorf("hackrf.Config: sample rate must be between 2 and 20 MHz: %0.f given", t.SampleRate)
	}

	args := []string{
		"-r", "-", // Always dump to stdout
		"-f", strconv.FormatInt(int64(t.CenterFrequency), 10),
		"-s", strconv.FormatInt(int64(t.SampleRate), 10),
	}

	if c.SerialNumber != "" {
		args = append(args, "-d", c.SerialNumber)
	}

	lnaGain := c.LNAGain
	if lnaGain == nil {
		gain, auto, _ := sdr.ParseGain(t.Gain) // validated above
		if !auto {
			g := int(gain)
			if err := validateLNAGain(g); err != nil {
				return nil, err
			}
			lnaGain = &g
		}
	}

	if lnaGain != nil {
		args = append(args, "-l", strconv.Itoa(*lnaGain))
	}

	if c.VGAGain != nil {
		args = append(args, "-g", strconv.Itoa(*c.VGAGain))
	}

	if t.FreqCorrection != 0 {
		args = append(args, "-C", strconv.Itoa(t.FreqCorrection))
	}

	if c.BasebandFilter > 0 {
		args = append(args, "-b", strconv.FormatInt(c.BasebandFilter, 10))
	}

	if c.EnableAmp {
		args = append(args, "-a", "1")
	}

	if c.AntennaPower {
		args = append(args, "-p", "1")
	}

	return args, nil
}
