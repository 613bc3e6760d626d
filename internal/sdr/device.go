package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// readBufferSize is the size of the buffered reader placed over the device stdout
	readBufferSize = 1 << 18
)

var (
	// ErrNotOpen is returned when reading from a device which has not been opened
	ErrNotOpen = errors.New("device is not open")

	// ErrAlreadyOpen is returned when opening a device twice
	ErrAlreadyOpen = errors.New("device is already open")
)

// Handler interface defines the methods required for handling a device
// which streams raw IQ samples to stdout
type Handler interface {
	Cmd(ctx context.Context) *exec.Cmd
	Format() SampleFormat
	Device() string
}

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(
			slog.String("device", d.handler.Device()),
			slog.String("deviceID", d.deviceID),
		)
	}
}

// Device represents an SDR device backed by an external runtime process.
// The process is started on Open and streams samples until Close.
type Device struct {
	deviceID string
	handler  Handler

	isOpen atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cmd      *exec.Cmd
	stdout   *bufio.Reader
	buf      []byte
	waitOnce sync.Once
	waitErr  error

	logger *slog.Logger
}

// NewDevice creates a new Device instance with a discard logger
func NewDevice(deviceID string, h Handler, options ...func(d *Device)) *Device {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	d := Device{
		deviceID: deviceID,
		handler:  h,
		logger:   logger,
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// DeviceID returns the device identifier given at construction
func (d *Device) DeviceID() string {
	return d.deviceID
}

// Device returns the device type
func (d *Device) Device() string {
	return d.handler.Device()
}

// Open starts the device runtime. The process lives until Close is called
// or ctx is cancelled.
func (d *Device) Open(ctx context.Context) error {
	if d.isOpen.Load() {
		return NewDeviceError(d.Device(), "open", ErrAlreadyOpen)
	}

	ctx, d.cancel = context.WithCancel(ctx)
	cmd := d.handler.Cmd(ctx)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		d.cancel()
		return NewDeviceError(d.Device(), "open", fmt.Errorf("error creating stdout pipe: %w", err))
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		d.cancel()
		return NewDeviceError(d.Device(), "open", fmt.Errorf("error creating stderr pipe: %w", err))
	}

	if err = cmd.Start(); err != nil {
		d.cancel()
		return NewDeviceError(d.Device(), "open", fmt.Errorf("error starting command: %w", err))
	}

	d.cmd = cmd
	d.stdout = bufio.NewReaderSize(stdout, readBufferSize)
	d.waitOnce = sync.Once{}
	d.waitErr = nil

	d.wg.Add(1)
	go d.handleStderr(stderr)

	d.isOpen.Store(true)
	d.logger.Info("device runtime started", slog.String("cmd", cmd.String()))

	return nil
}

// ReadBatch reads exactly n samples from the device stream. Acquisition
// start is taken when the read begins, so the measured duration covers
// the time spent waiting for the samples, not their true capture window.
func (d *Device) ReadBatch(ctx context.Context, n int) (*Batch, error) {
	if !d.isOpen.Load() {
		return nil, NewDeviceError(d.Device(), "read", ErrNotOpen)
	}
	if n < 0 {
		return nil, NewDeviceError(d.Device(), "read", fmt.Errorf("invalid number of samples: %d", n))
	}

	// unblock the read by stopping the runtime if the caller gives up
	stop := context.AfterFunc(ctx, d.cancel)
	defer stop()

	format := d.handler.Format()
	size := n * format.BytesPerSample()
	if cap(d.buf) < size {
		d.buf = make([]byte, size)
	}
	buf := d.buf[:size]

	started := time.Now()
	if _, err := io.ReadFull(d.stdout, buf); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		exitErr := d.shutdown()
		return nil, NewDeviceError(d.Device(), "read", errors.Join(err, exitErr))
	}
	arrival := time.Now()

	samples := make([]complex128, n)
	format.Decode(buf, samples)

	return &Batch{
		Samples: samples,
		Started: started,
		Arrival: arrival,
	}, nil
}

// Close stops the device runtime and waits for it to exit
func (d *Device) Close() error {
	if !d.isOpen.Load() {
		return nil // already closed
	}

	err := d.shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && !exitErr.Exited() {
			return nil // killed on purpose
		}
		return NewDeviceError(d.Device(), "close", err)
	}
	return nil
}

// IsOpen returns true if the device runtime is running
func (d *Device) IsOpen() bool {
	return d.isOpen.Load()
}

// shutdown cancels the runtime, drains stderr and reaps the process exactly once
func (d *Device) shutdown() error {
	d.waitOnce.Do(func() {
		d.cancel()
		d.wg.Wait()

		if err := d.cmd.Wait(); err != nil {
			d.waitErr = fmt.Errorf("command exited with error: %w", err)
		}

		d.isOpen.Store(false)
		d.logger.Info("device runtime stopped")
	})

	return d.waitErr
}

// handleStderr reads from stderr and logs the runtime output.
func (d *Device) handleStderr(stderr io.Reader) {
	defer d.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		d.logger.Info(fmt.Sprintf("%s >> %s", d.handler.Device(), line)) // simple logging here
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		d.logger.Warn(fmt.Sprintf("error reading stderr: %s", err.Error()))
	}
}
