package sdr

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"time"
)

const toneDevice = "synthetic"

// WithPacing makes the tone source block for the real acquisition time of
// each batch, as a hardware device would.
func WithPacing() func(*ToneSource) {
	return func(s *ToneSource) {
		s.paced = true
	}
}

// WithClock sets the clock used to stamp batches
func WithClock(clock func() time.Time) func(*ToneSource) {
	return func(s *ToneSource) {
		s.clock = clock
	}
}

// ToneSource generates a deterministic complex tone. It stands in for a
// receiver in dry runs and tests.
type ToneSource struct {
	sampleRate float64
	toneFreq   float64
	amplitude  float64

	phase  float64
	opened bool
	paced  bool
	clock  func() time.Time
}

// NewToneSource creates a tone generator at toneFreq Hz offset from the
// center, sampled at sampleRate.
func NewToneSource(sampleRate, toneFreq, amplitude float64, options ...func(*ToneSource)) (*ToneSource, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sdr.ToneSource: sample rate must be positive: %0.f given", sampleRate)
	}
	if math.Abs(toneFreq) > sampleRate/2 {
		return nil, fmt.Errorf("sdr.ToneSource: tone %0.f Hz is outside of the Nyquist band", toneFreq)
	}
	if amplitude < 0 || amplitude > 1 {
		return nil, fmt.Errorf("sdr.ToneSource: amplitude must be between 0 and 1: %0.2f given", amplitude)
	}

	s := ToneSource{
		sampleRate: sampleRate,
		toneFreq:   toneFreq,
		amplitude:  amplitude,
		clock:      time.Now,
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

func (s *ToneSource) Open(_ context.Context) error {
	s.opened = true
	return nil
}

func (s *ToneSource) ReadBatch(ctx context.Context, n int) (*Batch, error) {
	if !s.opened {
		return nil, NewDeviceError(toneDevice, "read", ErrNotOpen)
	}
	if n < 0 {
		return nil, NewDeviceError(toneDevice, "read", fmt.Errorf("invalid number of samples: %d", n))
	}

	started := s.clock()
	window := time.Duration(float64(n) * float64(time.Second) / s.sampleRate)

	if s.paced && window > 0 {
		timer := time.NewTimer(window)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	step := 2 * math.Pi * s.toneFreq / s.sampleRate
	samples := make([]complex128, n)
	for i := range samples {
		samples[i] = cmplx.Rect(s.amplitude, s.phase)
		s.phase = math.Mod(s.phase+step, 2*math.Pi)
	}

	arrival := started.Add(window)
	if s.paced {
		arrival = s.clock()
	}

	return &Batch{
		Samples: samples,
		Started: started,
		Arrival: arrival,
	}, nil
}

func (s *ToneSource) Close() error {
	s.opened = false
	return nil
}

func (s *ToneSource) Device() string {
	return toneDevice
}
