package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/sdrcap/internal/sdr"
	"github.com/roman-kulish/sdrcap/internal/storage"
)

// continuousLabelLayout names the destination of a continuous recording
// after its start time
const continuousLabelLayout = "20060102_150405"

// State is the lifecycle state of a session
type State int

const (
	StateUnstarted State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Observer receives recording events, e.g. to export metrics
type Observer interface {
	BatchAcquired(device string, samples int, elapsed time.Duration)
	BatchAppended(format storage.Format, samples int, elapsed time.Duration)
	WarmUpSkipped(device string)
	Failed(kind string)
}

type nopObserver struct{}

func (nopObserver) BatchAcquired(string, int, time.Duration)         {}
func (nopObserver) BatchAppended(storage.Format, int, time.Duration) {}
func (nopObserver) WarmUpSkipped(string)                             {}
func (nopObserver) Failed(string)                                    {}

// WithLogger sets the logger for the session
func WithLogger(logger *slog.Logger) func(*Session) {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithClock sets the clock used for the session start and stop times
func WithClock(clock func() time.Time) func(*Session) {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithObserver registers an observer of recording events
func WithObserver(o Observer) func(*Session) {
	return func(s *Session) {
		s.observer = o
	}
}

// WithInitializedSource marks the source as already opened by the caller,
// so the first RecordSingle call records.
func WithInitializedSource() func(*Session) {
	return func(s *Session) {
		s.sourceReady = true
	}
}

// WithSinkOptions passes options to the sink created for the session
func WithSinkOptions(options ...storage.Option) func(*Session) {
	return func(s *Session) {
		s.sinkOptions = append(s.sinkOptions, options...)
	}
}

// Session records batches from one source into destinations of one
// format. A session runs on a single goroutine: acquisition and append
// are sequential, so a slow append throttles acquisition. Neither has a
// timeout; a hanging source or filesystem blocks the session until the
// context is cancelled.
type Session struct {
	params Parameters
	source sdr.Source
	sink   storage.Sink

	// sourceReady is false until the source has been opened. The call to
	// RecordSingle which opens it does not record.
	sourceReady bool
	sinkOptions []storage.Option

	mu        sync.Mutex
	state     State
	startTime time.Time
	stopTime  time.Time

	clock    func() time.Time
	observer Observer
	logger   *slog.Logger
}

// NewSession validates params, creates the sink and the output directory.
// Invalid parameters fail with a *ConfigError before any I/O.
func NewSession(params Parameters, source sdr.Source, options ...func(*Session)) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, newConfigError("source", "is required")
	}

	s := Session{
		params:   params,
		source:   source,
		clock:    time.Now,
		observer: nopObserver{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	sinkOptions := append([]storage.Option{storage.WithLogger(s.logger)}, s.sinkOptions...)
	sink, err := storage.NewSink(params.Format, params.Metadata(), sinkOptions...)
	if err != nil {
		return nil, &ConfigError{Field: "sink", Err: err}
	}

	if err = os.MkdirAll(params.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", &storage.IOError{Op: "mkdir", Path: params.OutputDir, Err: err})
	}

	s.sink = sink
	return &s, nil
}

// Parameters returns the recording parameters of the session
func (s *Session) Parameters() Parameters {
	return s.params
}

// State returns the lifecycle state of the session
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartTime returns the instant the session started, if it has
func (s *Session) StartTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime, s.state != StateUnstarted
}

// StopTime returns the instant the session stopped, if it has
func (s *Session) StopTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopTime, s.state == StateStopped
}

// Start moves the session from unstarted to started at t
func (s *Session) Start(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStarted:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrAlreadyStopped
	}

	s.state = StateStarted
	s.startTime = t
	return nil
}

// Stop moves the session from started to stopped at t. Stopped is terminal.
func (s *Session) Stop(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUnstarted:
		return ErrNotStarted
	case StateStopped:
		return ErrAlreadyStopped
	}

	s.state = StateStopped
	s.stopTime = t
	return nil
}

// RecordSingle acquires one batch and appends it to the destination for
// label. If the source is not initialized yet, it is opened instead and
// nothing is recorded: recorded is false and err is nil.
func (s *Session) RecordSingle(ctx context.Context, label string) (recorded bool, err error) {
	defer func() {
		if err != nil {
			s.observer.Failed(ErrorKind(err))
		}
	}()

	if !s.sourceReady {
		if err = s.openSource(ctx); err != nil {
			return false, err
		}

		s.observer.WarmUpSkipped(s.source.Device())
		s.logger.Info("source initialized, skipping recording", slog.String("device", s.source.Device()))
		return false, nil
	}

	return true, s.record(ctx, label)
}

func (s *Session) record(ctx context.Context, label string) error {
	window := s.params.SampleWindow

	acquireStart := time.Now()
	batch, err := s.source.ReadBatch(ctx, window)
	if err != nil {
		return fmt.Errorf("acquiring batch: %w", err)
	}
	if batch.Len() != window {
		return sdr.NewDeviceError(s.source.Device(), "read", fmt.Errorf("short batch: %d of %d samples", batch.Len(), window))
	}
	s.observer.BatchAcquired(s.source.Device(), window, time.Since(acquireStart))

	destination := s.params.Destination(label)

	appendStart := time.Now()
	if err = s.sink.Append(ctx, batch, destination); err != nil {
		return fmt.Errorf("appending batch: %w", err)
	}
	elapsed := time.Since(appendStart)
	s.observer.BatchAppended(s.sink.Format(), window, elapsed)

	s.logger.Debug("batch recorded",
		slog.String("destination", destination),
		slog.String("samples", humanize.Comma(int64(window))),
		slog.Duration("append", elapsed))

	return nil
}

func (s *Session) openSource(ctx context.Context) error {
	if err := s.source.Open(ctx); err != nil {
		return fmt.Errorf("initializing source: %w", err)
	}
	s.sourceReady = true
	return nil
}

// RecordContinuous starts the session, initializes the source if needed
// and records one batch per iteration into the destination labelled with
// the start time, pausing for the record delay between batches. It returns
// on the first error, or with the context error once ctx is cancelled; the
// session is stopped in both cases. A batch being appended when ctx is
// cancelled is not rolled back.
func (s *Session) RecordContinuous(ctx context.Context) (err error) {
	started := s.clock()
	if err = s.Start(started); err != nil {
		return err
	}
	defer func() {
		if sErr := s.Stop(s.clock()); sErr != nil && err == nil {
			err = sErr
		}
	}()

	if !s.sourceReady {
		if err = s.openSource(ctx); err != nil {
			s.observer.Failed(ErrorKind(err))
			return err
		}
	}

	label := started.UTC().Format(continuousLabelLayout)
	delay := s.params.delay()

	s.logger.Info("continuous recording started",
		slog.String("device", s.source.Device()),
		slog.String("centerFrequency", humanize.SIWithDigits(s.params.CenterFrequency, 3, "Hz")),
		slog.String("sampleRate", humanize.SIWithDigits(s.params.SampleRate, 3, "S/s")),
		slog.String("sampleWindow", humanize.Comma(int64(s.params.SampleWindow))),
		slog.Duration("delay", delay),
		slog.String("destination", s.params.Destination(label)))

	var batches int64
	defer func() {
		s.logger.Info("continuous recording stopped",
			slog.String("batches", humanize.Comma(batches)),
			slog.String("samples", humanize.Comma(batches*int64(s.params.SampleWindow))))
	}()

	for {
		if err = ctx.Err(); err != nil {
			return err
		}

		if _, err = s.RecordSingle(ctx, label); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		batches++

		if err = sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// sleep pauses for d or until ctx is cancelled
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close releases the sink and the source
func (s *Session) Close() error {
	var errs []error
	if err := s.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing sink: %w", err))
	}
	if s.sourceReady {
		if err := s.source.Close(); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("closing source: %w", err))
		}
	}
	return errors.Join(errs...)
}
