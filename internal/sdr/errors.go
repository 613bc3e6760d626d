package sdr

import (
	"errors"
	"fmt"
)

// ErrRuntimeNotFound is returned when the device runtime binary cannot be located
var ErrRuntimeNotFound = errors.New("runtime not found")

// DeviceError reports an acquisition failure. It is never retried by the
// recorder: a single DeviceError terminates continuous recording.
type DeviceError struct {
	Device string
	Op     string
	Err    error
}

// NewDeviceError wraps err as a DeviceError for the given device and operation
func NewDeviceError(device, op string, err error) *DeviceError {
	return &DeviceError{Device: device, Op: op, Err: err}
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Device, e.Op)
	}
	return fmt.Sprintf("%s: %s: %s", e.Device, e.Op, e.Err.Error())
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
