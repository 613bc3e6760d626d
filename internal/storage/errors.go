package storage

import "fmt"

// IOError reports a failure to open, read or write a destination
type IOError struct {
	Op   string
	Path string
	Err  error
}

func newIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage: %s %s: %s", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// FormatError reports a destination whose existing content does not match
// the format being written or read. It is never repaired automatically.
type FormatError struct {
	Path   string
	Reason string
}

func newFormatError(path, format string, args ...any) *FormatError {
	return &FormatError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("storage: %s: %s", e.Path, e.Reason)
}
