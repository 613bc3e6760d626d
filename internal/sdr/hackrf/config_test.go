package hackrf

import (
	"slices"
	"testing"

	"github.com/roman-kulish/sdrcap/internal/sdr"
)

func ptr[T any](v T) *T {
	return &v
}

func TestConfig_Args(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		tuning sdr.Tuning
		want   []string
	}{
		{
			name:   "gain from tuning",
			config: Config{VGAGain: ptr(20)},
			tuning: sdr.Tuning{CenterFrequency: 433_920_000, SampleRate: 8_000_000, Gain: "16"},
			want:   []string{"-r", "-", "-f", "433920000", "-s", "8000000", "-l", "16", "-g", "20"},
		},
		{
			name:   "explicit lna gain wins",
			config: Config{LNAGain: ptr(32), SerialNumber: "0000000000000000457863c8", EnableAmp: true},
			tuning: sdr.Tuning{CenterFrequency: 2_437_000_000, SampleRate: 20_000_000, FreqCorrection: -3, Gain: "8"},
			want: []string{
				"-r", "-", "-f", "2437000000", "-s", "20000000", "-d", "0000000000000000457863c8",
				"-l", "32", "-C", "-3", "-a", "1",
			},
		},
		{
			name:   "auto gain",
			config: Config{BasebandFilter: 1_750_000, AntennaPower: true},
			tuning: sdr.Tuning{CenterFrequency: 100_700_000, SampleRate: 2_000_000, Gain: "auto"},
			want:   []string{"-r", "-", "-f", "100700000", "-s", "2000000", "-b", "1750000", "-p", "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.config.Args(tt.tuning)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestConfig_ArgsInvalid(t *testing.T) {
	tuning := sdr.Tuning{CenterFrequency: 433_920_000, SampleRate: 8_000_000}

	tests := []struct {
		name   string
		config Config
		tuning sdr.Tuning
	}{
		{name: "lna gain out of range", config: Config{LNAGain: ptr(48)}, tuning: tuning},
		{name: "lna gain step", config: Config{LNAGain: ptr(10)}, tuning: tuning},
		{name: "vga gain step", config: Config{VGAGain: ptr(21)}, tuning: tuning},
		{name: "negative filter", config: Config{BasebandFilter: -1}, tuning: tuning},
		{name: "tuning gain step", tuning: sdr.Tuning{CenterFrequency: 433_920_000, SampleRate: 8_000_000, Gain: "12"}},
		{name: "sample rate too low", tuning: sdr.Tuning{CenterFrequency: 433_920_000, SampleRate: 1_000_000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.config.Args(tt.tuning); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
