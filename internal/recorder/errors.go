package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/roman-kulish/sdrcap/internal/sdr"
	"github.com/roman-kulish/sdrcap/internal/storage"
)

var (
	// ErrAlreadyStarted is returned when starting a session twice
	ErrAlreadyStarted = errors.New("session already started")

	// ErrNotStarted is returned when stopping a session which was never started
	ErrNotStarted = errors.New("session not started")

	// ErrAlreadyStopped is returned when stopping or restarting a stopped session
	ErrAlreadyStopped = errors.New("session already stopped")
)

// ConfigError reports invalid recording parameters. It is returned before
// any I/O takes place.
type ConfigError struct {
	Field string
	Err   error
}

func newConfigError(field string, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("recorder: invalid %s: %s", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Error kinds reported to observers
const (
	KindConfig    = "config"
	KindDevice    = "device"
	KindIO        = "io"
	KindFormat    = "format"
	KindCancelled = "cancelled"
	KindOther     = "other"
)

// ErrorKind classifies err by the error taxonomy of the recorder
func ErrorKind(err error) string {
	var (
		configErr *ConfigError
		deviceErr *sdr.DeviceError
		ioErr     *storage.IOError
		formatErr *storage.FormatError
	)

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.As(err, &configErr):
		return KindConfig
	case errors.As(err, &deviceErr):
		return KindDevice
	case errors.As(err, &formatErr):
		return KindFormat
	case errors.As(err, &ioErr):
		return KindIO
	default:
		return KindOther
	}
}
