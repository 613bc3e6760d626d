//go:build !windows

package sdr

import (
	"errors"
	"fmt"
	"os/exec"
)

// FindRuntime locates a device runtime binary in PATH
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: `%s` not found in PATH", ErrRuntimeNotFound, runtime)
		}
		return "", fmt.Errorf("failed to locate binary `%s`: %w", runtime, err)
	}

	return binPath, nil
}
