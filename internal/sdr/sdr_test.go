package sdr

import (
	"math"
	"testing"
	"time"
)

func TestSampleFormat_Decode(t *testing.T) {
	tests := []struct {
		name   string
		format SampleFormat
		raw    []byte
		want   []complex128
	}{
		{
			name:   "cu8 extremes",
			format: FormatCU8,
			raw:    []byte{0, 255, 255, 0},
			want:   []complex128{complex(-1, 1), complex(1, -1)},
		},
		{
			name:   "cs8 signed",
			format: FormatCS8,
			raw:    []byte{0x80, 0x40, 0x00, 0xC0},
			want:   []complex128{complex(-1, 0.5), complex(0, -0.5)},
		},
		{
			name:   "cs16 little endian",
			format: FormatCS16,
			raw:    []byte{0x00, 0x40, 0x00, 0x80},
			want:   []complex128{complex(0.5, -1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make([]complex128, len(tt.raw)/tt.format.BytesPerSample())
			tt.format.Decode(tt.raw, got)

			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d samples, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Sample %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestSampleFormat_Validate(t *testing.T) {
	for _, f := range []SampleFormat{FormatCU8, FormatCS8, FormatCS16} {
		if err := f.Validate(); err != nil {
			t.Errorf("Expected %s to be valid, got %v", f, err)
		}
	}

	if err := SampleFormat("cf32").Validate(); err == nil {
		t.Error("Expected error for unknown sample format")
	}
}

func TestParseGain(t *testing.T) {
	tests := []struct {
		gain    string
		value   float64
		auto    bool
		wantErr bool
	}{
		{gain: "", auto: true},
		{gain: "auto", auto: true},
		{gain: "AUTO", auto: true},
		{gain: "49.6", value: 49.6},
		{gain: " 16 ", value: 16},
		{gain: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.gain, func(t *testing.T) {
			value, auto, err := ParseGain(tt.gain)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if auto != tt.auto || value != tt.value {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tt.value, tt.auto, value, auto)
			}
		})
	}
}

func TestTuning_Validate(t *testing.T) {
	valid := Tuning{CenterFrequency: 100.7e6, SampleRate: 2.4e6, FreqCorrection: 60, Gain: "auto"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	invalid := []Tuning{
		{CenterFrequency: 0, SampleRate: 2.4e6},
		{CenterFrequency: 100.7e6, SampleRate: -1},
		{CenterFrequency: 100.7e6, SampleRate: 2.4e6, Gain: "max"},
	}
	for i, tuning := range invalid {
		if err := tuning.Validate(); err == nil {
			t.Errorf("Case %d: expected validation error", i)
		}
	}
}

func TestBatch_Duration(t *testing.T) {
	arrival := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	b := Batch{Samples: make([]complex128, 4), Arrival: arrival}
	if d := b.Duration(); d != 0 {
		t.Errorf("Expected zero duration without a start, got %s", d)
	}

	b.Started = arrival.Add(-250 * time.Millisecond)
	if d := b.Duration(); d != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %s", d)
	}

	if b.Len() != 4 {
		t.Errorf("Expected 4 samples, got %d", b.Len())
	}
}

func TestToneSource_ReadBatch(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src, err := NewToneSource(1000, 250, 0.5, WithClock(func() time.Time { return base }))
	if err != nil {
		t.Fatalf("Failed to create tone source: %v", err)
	}

	if _, err = src.ReadBatch(t.Context(), 4); err == nil {
		t.Fatal("Expected error reading from unopened source")
	}

	if err = src.Open(t.Context()); err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer src.Close()

	batch, err := src.ReadBatch(t.Context(), 4)
	if err != nil {
		t.Fatalf("Failed to read batch: %v", err)
	}

	// quarter of the sample rate: the phase advances by pi/2 per sample
	want := []complex128{complex(0.5, 0), complex(0, 0.5), complex(-0.5, 0), complex(0, -0.5)}
	for i, s := range batch.Samples {
		if math.Abs(real(s)-real(want[i])) > 1e-12 || math.Abs(imag(s)-imag(want[i])) > 1e-12 {
			t.Errorf("Sample %d: expected %v, got %v", i, want[i], s)
		}
	}

	if d := batch.Duration(); d != 4*time.Millisecond {
		t.Errorf("Expected 4ms acquisition window, got %s", d)
	}
}

func TestNewToneSource_Invalid(t *testing.T) {
	if _, err := NewToneSource(0, 0, 1); err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if _, err := NewToneSource(1000, 600, 1); err == nil {
		t.Error("Expected error for tone above Nyquist")
	}
	if _, err := NewToneSource(1000, 100, 2); err == nil {
		t.Error("Expected error for amplitude above 1")
	}
}
