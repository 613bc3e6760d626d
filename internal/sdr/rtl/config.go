package rtl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/sdrcap/internal/sdr"
)

const (
	// BlockSizeDefault is the `rtl_sdr` default output block size (16 * 16384)
	BlockSizeDefault = 16 * 16384
	BlockSizeMin     = 512
	BlockSizeMax     = 256 * 16384

	// Supported sample rate ranges of the RTL2832U
	SampleRateLowMin  = 225_001
	SampleRateLowMax  = 300_000
	SampleRateHighMin = 900_001
	SampleRateHighMax = 3_200_000

	// DirectSamplingOff is the default direct sampling mode
	DirectSamplingOff    DirectSampling = 0
	DirectSamplingIQ     DirectSampling = 1
	DirectSamplingQ      DirectSampling = 2
	DirectSamplingQBelow DirectSampling = 3 // Q-branch below 24 MHz only
)

var validDirectSampling = map[DirectSampling]struct{}{
	DirectSamplingOff:    {},
	DirectSamplingIQ:     {},
	DirectSamplingQ:      {},
	DirectSamplingQBelow: {},
}

type DirectSampling int

// Usage examples from man page:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_sdr.1.en.html

/*
Example 1: FM broadcast station
    rtlConfig := rtl.Config{DeviceIndex: 0}
    args, _ := rtlConfig.Args(sdr.Tuning{
        CenterFrequency: 100_700_000,
        SampleRate:      2_400_000,
        FreqCorrection:  60,
        Gain:            "auto",
    })
    // Executes: rtl_sdr -f 100700000 -s 2400000 -d 0 -p 60 -
*/

// Config is the `rtl_sdr` tool configuration. Tuning (frequency, rate,
// correction, gain) comes from the recording parameters.
type Config struct {
	DeviceIndex int `yaml:"deviceIndex" json:"deviceIndex"` // -d device_index (default: 0)

	BlockSize int  `yaml:"blockSize" json:"blockSize"` // -b output_block_size (default: 16 * 16384)
	SyncMode  bool `yaml:"syncMode" json:"syncMode"`   // -S force sync output (default: async)

	// Hardware options of the rtl-sdr-blog fork
	DirectSampling DirectSampling `yaml:"directSampling" json:"directSampling"` // -D direct sampling mode (default: off)
	BiasTee        bool           `yaml:"biasTee" json:"biasTee"`               // -T enable bias-tee (default: off)
}

func (c *Config) Validate() error {
	if c.DeviceIndex < 0 {
		return fmt.Errorf("rtl.Config: device index must not be negative: %d", c.DeviceIndex)
	}

	if c.BlockSize != 0 {
		if c.BlockSize < BlockSizeMin || c.BlockSize > BlockSizeMax {
			return fmt.Errorf("rtl.Config: invalid block size: %d, must be between %d and %d", c.BlockSize, BlockSizeMin, BlockSizeMax)
		}
		if c.BlockSize%BlockSizeMin != 0 {
			return fmt.Errorf("rtl.Config: block size must be a multiple of %d: %d given", BlockSizeMin, c.BlockSize)
		}
	}

	if _, ok := validDirectSampling[c.DirectSampling]; !ok {
		return fmt.Errorf("rtl.Config: invalid direct sampling mode: %d", c.DirectSampling)
	}

	return nil
}

func validateTuning(t sdr.Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}

	rate := int64(t.SampleRate)
	inLow := rate >= SampleRateLowMin && rate <= SampleRateLowMax
	inHigh := rate >= SampleRateHighMin && rate <= SampleRateHighMax
	if !inLow && !inHigh {
		return fmt.Errorf("rtl.Config: unsupported sample rate: %d Hz", rate)
	}

	return nil
}

// Args returns the command line arguments for `rtl_sdr`
// See `man rtl_sdr` for more information:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_sdr.1.en.html
func (c *Config) Args(t sdr.Tuning) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := validateTuning(t); err != nil {
		return nil, err
	}

	args := []string{
		"-f", strconv.FormatInt(int64(t.CenterFrequency), 10),
		"-s", strconv.FormatInt(int64(t.SampleRate), 10),
	}

	args = append(args, "-d", strconv.Itoa(c.DeviceIndex)) // 0 is the default device index

	gain, auto, _ := sdr.ParseGain(t.Gain) // validated above
	if !auto {
		args = append(args, "-g", strconv.FormatFloat(gain, 'f', -1, 64))
	}

	if t.FreqCorrection != 0 {
		args = append(args, "-p", strconv.Itoa(t.FreqCorrection))
	}

	if c.BlockSize > 0 {
		args = append(args, "-b", strconv.Itoa(c.BlockSize))
	}

	if c.SyncMode {
		args = append(args, "-S")
	}

	if c.DirectSampling != DirectSamplingOff {
		args = append(args, "-D", strconv.Itoa(int(c.DirectSampling)))
	}

	if c.BiasTee {
		args = append(args, "-T")
	}

	args = append(args, "-") // Always dump to stdout

	return args, nil
}

// CommandLine renders the full `rtl_sdr` invocation for logging
func (c *Config) CommandLine(t sdr.Tuning) string {
	args, err := c.Args(t)
	if err != nil {
		return fmt.Sprintf("rtl.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", Runtime, strings.Join(args, " "))
}
