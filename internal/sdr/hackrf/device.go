package hackrf

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/roman-kulish/sdrcap/internal/sdr"
)

const (
	Runtime = "hackrf_transfer"
	Device  = "HackRF"
)

// handler struct represents a HackRF handler
type handler struct {
	binPath string
	args    []string
}

// New creates a new HackRF handler
func New(config *Config, tuning sdr.Tuning) (sdr.Handler, error) {
	args, err := config.Args(tuning)
	if err != nil {
		return nil, fmt.Errorf("error creating args: %w", err)
	}

	binPath, err := sdr.FindRuntime(Runtime)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return &handler{binPath, args}, nil
}

// Cmd returns an exec.Cmd for the HackRF handler
func (h handler) Cmd(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, h.binPath, h.args...)
}

// Format returns the raw sample format: `hackrf_transfer` emits signed 8-bit IQ
func (h handler) Format() sdr.SampleFormat {
	return sdr.FormatCS8
}

func (h handler) Device() string {
	return Device
}
