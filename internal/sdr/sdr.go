package sdr

import (
	"context"
	"fmt"
	"time"
)

// Batch is one fixed-size group of complex samples retrieved from a source
// in a single acquisition call.
type Batch struct {
	Samples []complex128 // Ordered IQ samples, never partially filled
	Started time.Time    // When acquisition of the batch began, zero if unknown
	Arrival time.Time    // When acquisition of the batch completed
}

// Len returns the number of samples in the batch
func (b *Batch) Len() int {
	return len(b.Samples)
}

// Duration returns the measured acquisition window of the batch, or zero
// when the source did not report an acquisition start.
func (b *Batch) Duration() time.Duration {
	if b.Started.IsZero() || b.Arrival.Before(b.Started) {
		return 0
	}
	return b.Arrival.Sub(b.Started)
}

// Source supplies batches of complex samples on demand. ReadBatch blocks
// until n samples are available. Implementations are not safe for
// concurrent use; a recording session owns its source exclusively.
type Source interface {
	// Open prepares the underlying device for acquisition. The context
	// governs the lifetime of the acquisition, not only the call.
	Open(ctx context.Context) error

	// ReadBatch reads exactly n samples. Failures are reported as *DeviceError.
	ReadBatch(ctx context.Context, n int) (*Batch, error)

	// Close releases the device. It is safe to call Close on an unopened source.
	Close() error

	// Device returns a human-readable device type, e.g. "RTL-SDR"
	Device() string
}

// SampleFormat identifies the raw interleaved IQ encoding produced by a device
type SampleFormat string

const (
	// FormatCU8 is interleaved unsigned 8-bit IQ, as produced by `rtl_sdr`
	FormatCU8 SampleFormat = "cu8"

	// FormatCS8 is interleaved signed 8-bit IQ, as produced by `hackrf_transfer`
	FormatCS8 SampleFormat = "cs8"

	// FormatCS16 is interleaved signed 16-bit little-endian IQ
	FormatCS16 SampleFormat = "cs16"
)

var validSampleFormats = map[SampleFormat]int{
	FormatCU8:  2,
	FormatCS8:  2,
	FormatCS16: 4,
}

func (f SampleFormat) String() string {
	return string(f)
}

// BytesPerSample returns the size of one complex sample in the raw stream
func (f SampleFormat) BytesPerSample() int {
	return validSampleFormats[f]
}

// Validate checks that the sample format is known
func (f SampleFormat) Validate() error {
	if _, ok := validSampleFormats[f]; !ok {
		return fmt.Errorf("sdr: invalid sample format: %q", string(f))
	}
	return nil
}

// Decode converts raw interleaved IQ bytes into normalized complex samples
// in the range [-1, 1]. len(dst) samples are decoded; buf must hold at
// least len(dst)*BytesPerSample() bytes.
func (f SampleFormat) Decode(buf []byte, dst []complex128) {
	switch f {
	case FormatCU8:
		for i := range dst {
			re := (float64(buf[2*i]) - 127.5) / 127.5
			im := (float64(buf[2*i+1]) - 127.5) / 127.5
			dst[i] = complex(re, im)
		}

	case FormatCS8:
		for i := range dst {
			re := float64(int8(buf[2*i])) / 128
			im := float64(int8(buf[2*i+1])) / 128
			dst[i] = complex(re, im)
		}

	case FormatCS16:
		for i := range dst {
			re := float64(int16(uint16(buf[4*i])|uint16(buf[4*i+1])<<8)) / 32768
			im := float64(int16(uint16(buf[4*i+2])|uint16(buf[4*i+3])<<8)) / 32768
			dst[i] = complex(re, im)
		}
	}
}
