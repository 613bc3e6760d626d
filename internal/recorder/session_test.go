package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/sdrcap/internal/sdr"
	"github.com/roman-kulish/sdrcap/internal/storage"
)

// scriptedSource replays fixed batches, then repeats the last one
type scriptedSource struct {
	batches [][]complex128
	readErr error // returned instead of the batch at index failAt
	failAt  int
	onRead  func(reads int)

	opens  int
	reads  int
	closed bool
}

func (s *scriptedSource) Open(context.Context) error {
	s.opens++
	return nil
}

func (s *scriptedSource) ReadBatch(ctx context.Context, n int) (*sdr.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i := s.reads
	s.reads++
	if s.onRead != nil {
		defer s.onRead(s.reads)
	}

	if s.readErr != nil && i == s.failAt {
		return nil, s.readErr
	}

	samples := s.batches[min(i, len(s.batches)-1)]
	return &sdr.Batch{Samples: samples[:min(n, len(samples))], Arrival: time.Now()}, nil
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

func (s *scriptedSource) Device() string {
	return "scripted"
}

type countingObserver struct {
	mu       sync.Mutex
	acquired int
	appended int
	skipped  int
	failures map[string]int
}

func (o *countingObserver) BatchAcquired(string, int, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acquired++
}

func (o *countingObserver) BatchAppended(storage.Format, int, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appended++
}

func (o *countingObserver) WarmUpSkipped(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped++
}

func (o *countingObserver) Failed(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failures == nil {
		o.failures = make(map[string]int)
	}
	o.failures[kind]++
}

func testParameters(t *testing.T, format storage.Format) Parameters {
	t.Helper()

	p := DefaultParameters()
	p.SampleWindow = 4
	p.RecordDelay = 0
	p.OutputDir = filepath.Join(t.TempDir(), "outputs")
	p.Format = format
	return p
}

var scenarioBatches = [][]complex128{
	{complex(1, 0.1), complex(2, 0.2), complex(3, 0.3), complex(4, 0.4)},
	{complex(5, 0.5), complex(6, 0.6), complex(7, 0.7), complex(8, 0.8)},
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	p, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(p), "\n"), "\n")
}

func TestSession_FlatTableScenario(t *testing.T) {
	params := testParameters(t, storage.FormatFlatTable)
	src := &scriptedSource{batches: scenarioBatches}

	s, err := NewSession(params, src, WithInitializedSource())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer s.Close()

	for range 2 {
		recorded, err := s.RecordSingle(t.Context(), "")
		if err != nil {
			t.Fatalf("RecordSingle failed: %v", err)
		}
		if !recorded {
			t.Fatal("Expected a batch to be recorded")
		}
	}

	lines := readLines(t, params.Destination(""))
	if len(lines) != 9 {
		t.Fatalf("Expected 1 header and 8 data lines, got %d", len(lines))
	}
	if lines[0] != "Real Value,Imaginary Value,Timestamp" {
		t.Errorf("Unexpected header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[5], "5.0,0.5,") {
		t.Errorf("Expected line 5 to start with 5.0,0.5, got %q", lines[5])
	}
	if filepath.Base(params.Destination("")) != "sample_window4.csv" {
		t.Errorf("Unexpected destination: %s", params.Destination(""))
	}
}

func TestSession_ColumnarStore(t *testing.T) {
	params := testParameters(t, storage.FormatColumnarStore)
	src := &scriptedSource{batches: scenarioBatches}

	s, err := NewSession(params, src, WithInitializedSource())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	for range 2 {
		if _, err = s.RecordSingle(t.Context(), "fm"); err != nil {
			t.Fatalf("RecordSingle failed: %v", err)
		}
	}
	if err = s.Close(); err != nil {
		t.Fatalf("Failed to close session: %v", err)
	}

	r, err := storage.OpenColumnarStore(t.Context(), params.Destination("fm"))
	if err != nil {
		t.Fatalf("Failed to open recording: %v", err)
	}
	defer r.Close()

	rec, err := r.ReadAll(t.Context())
	if err != nil {
		t.Fatalf("Failed to read recording: %v", err)
	}
	if len(rec.Samples) != 8 || rec.Samples[4] != complex(5, 0.5) {
		t.Errorf("Unexpected samples: %v", rec.Samples)
	}
	if rec.Metadata != params.Metadata() {
		t.Errorf("Expected metadata %+v, got %+v", params.Metadata(), rec.Metadata)
	}
}

func TestSession_RecordSingleWarmUp(t *testing.T) {
	params := testParameters(t, storage.FormatFlatTable)
	src := &scriptedSource{batches: scenarioBatches}
	obs := &countingObserver{}

	s, err := NewSession(params, src, WithObserver(obs))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer s.Close()

	recorded, err := s.RecordSingle(t.Context(), "")
	if err != nil {
		t.Fatalf("RecordSingle failed: %v", err)
	}
	if recorded || src.opens != 1 || src.reads != 0 {
		t.Fatalf("Expected the first call to only open the source: recorded=%v opens=%d reads=%d", recorded, src.opens, src.reads)
	}
	if _, err = os.Stat(params.Destination("")); !os.IsNotExist(err) {
		t.Errorf("Expected no destination after warm-up, got %v", err)
	}

	recorded, err = s.RecordSingle(t.Context(), "")
	if err != nil {
		t.Fatalf("RecordSingle failed: %v", err)
	}
	if !recorded || src.opens != 1 || src.reads != 1 {
		t.Errorf("Expected the second call to record: recorded=%v opens=%d reads=%d", recorded, src.opens, src.reads)
	}
	if obs.skipped != 1 || obs.appended != 1 {
		t.Errorf("Expected 1 skip and 1 append, got %d and %d", obs.skipped, obs.appended)
	}
}

func TestSession_Lifecycle(t *testing.T) {
	s, err := NewSession(testParameters(t, storage.FormatFlatTable), &scriptedSource{batches: scenarioBatches})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer s.Close()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err = s.Stop(start); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Expected ErrNotStarted, got %v", err)
	}
	if _, ok := s.StartTime(); ok {
		t.Error("Expected no start time before start")
	}

	if err = s.Start(start); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err = s.Start(start.Add(time.Second)); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}
	if got, ok := s.StartTime(); !ok || !got.Equal(start) {
		t.Errorf("Expected start time %s, got %s", start, got)
	}

	stop := start.Add(time.Minute)
	if err = s.Stop(stop); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err = s.Stop(stop); !errors.Is(err, ErrAlreadyStopped) {
		t.Errorf("Expected ErrAlreadyStopped, got %v", err)
	}
	if err = s.Start(stop); !errors.Is(err, ErrAlreadyStopped) {
		t.Errorf("Expected ErrAlreadyStopped on restart, got %v", err)
	}
	if got, ok := s.StopTime(); !ok || !got.Equal(stop) {
		t.Errorf("Expected stop time %s, got %s", stop, got)
	}
	if got, _ := s.StartTime(); !got.Equal(start) {
		t.Errorf("Start time changed to %s", got)
	}
	if s.State() != StateStopped {
		t.Errorf("Expected stopped state, got %s", s.State())
	}
}

func TestSession_RecordContinuous(t *testing.T) {
	params := testParameters(t, storage.FormatFlatTable)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	src := &scriptedSource{
		batches: scenarioBatches,
		onRead: func(reads int) {
			if reads == 3 {
				cancel()
			}
		},
	}

	s, err := NewSession(params, src, WithClock(func() time.Time { return start }))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer s.Close()

	if err = s.RecordContinuous(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	// no warm-up skip: the first iteration records
	if src.opens != 1 || src.reads != 3 {
		t.Errorf("Expected 1 open and 3 reads, got %d and %d", src.opens, src.reads)
	}

	dst := filepath.Join(params.OutputDir, "20240501_120000-sample_window4.csv")
	lines := readLines(t, dst)
	if len(lines) != 1+2*4 {
		t.Errorf("Expected 2 batches before cancellation, got %d lines", len(lines))
	}

	if s.State() != StateStopped {
		t.Errorf("Expected stopped session, got %s", s.State())
	}
	if err = s.RecordContinuous(t.Context()); !errors.Is(err, ErrAlreadyStopped) {
		t.Errorf("Expected ErrAlreadyStopped, got %v", err)
	}
}

func TestSession_RecordContinuousInterruptsDelay(t *testing.T) {
	params := testParameters(t, storage.FormatFlatTable)
	params.RecordDelay = time.Hour

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	src := &scriptedSource{
		batches: scenarioBatches,
		onRead: func(int) {
			time.AfterFunc(20*time.Millisecond, cancel)
		},
	}

	s, err := NewSession(params, src)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.RecordContinuous(ctx) }()

	select {
	case err = <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RecordContinuous did not return after cancellation")
	}

	if src.reads != 1 {
		t.Errorf("Expected a single batch, got %d", src.reads)
	}
}

func TestSession_RecordContinuousDeviceError(t *testing.T) {
	params := testParameters(t, storage.FormatColumnarStore)
	obs := &countingObserver{}
	src := &scriptedSource{
		batches: scenarioBatches,
		readErr: sdr.NewDeviceError("scripted", "read", errors.New("usb transfer failed")),
		failAt:  2,
	}

	s, err := NewSession(params, src, WithObserver(obs))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer s.Close()

	err = s.RecordContinuous(t.Context())

	var devErr *sdr.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("Expected DeviceError, got %v", err)
	}
	if src.reads != 3 {
		t.Errorf("Expected recording to stop at the failing read, got %d reads", src.reads)
	}
	if obs.appended != 2 || obs.failures[KindDevice] != 1 {
		t.Errorf("Expected 2 appends and 1 device failure, got %d and %v", obs.appended, obs.failures)
	}
	if s.State() != StateStopped {
		t.Errorf("Expected stopped session, got %s", s.State())
	}
}

func TestSession_ShortBatch(t *testing.T) {
	params := testParameters(t, storage.FormatFlatTable)
	src := &scriptedSource{batches: [][]complex128{{1, 2}}}

	s, err := NewSession(params, src, WithInitializedSource())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer s.Close()

	var devErr *sdr.DeviceError
	if _, err = s.RecordSingle(t.Context(), ""); !errors.As(err, &devErr) {
		t.Errorf("Expected DeviceError for a partial batch, got %v", err)
	}
}

func TestSession_MismatchedFormat(t *testing.T) {
	flat := testParameters(t, storage.FormatFlatTable)
	columnar := flat
	columnar.Format = storage.FormatColumnarStore

	first, err := NewSession(flat, &scriptedSource{batches: scenarioBatches}, WithInitializedSource())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if _, err = first.RecordSingle(t.Context(), "shared"); err != nil {
		t.Fatalf("RecordSingle failed: %v", err)
	}
	first.Close()

	// the flat table now sits where the columnar session writes
	if err = os.Rename(flat.Destination("shared"), columnar.Destination("shared")); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(columnar.Destination("shared"))

	second, err := NewSession(columnar, &scriptedSource{batches: scenarioBatches}, WithInitializedSource())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer second.Close()

	var formatErr *storage.FormatError
	if _, err = second.RecordSingle(t.Context(), "shared"); !errors.As(err, &formatErr) {
		t.Fatalf("Expected FormatError, got %v", err)
	}

	after, _ := os.ReadFile(columnar.Destination("shared"))
	if string(before) != string(after) {
		t.Error("Flat table was modified by the columnar session")
	}
}

func TestNewSession_ConfigError(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Parameters)
		field  string
	}{
		{name: "unknown format", modify: func(p *Parameters) { p.Format = storage.Format(7) }, field: "format"},
		{name: "zero format", modify: func(p *Parameters) { p.Format = 0 }, field: "format"},
		{name: "zero window", modify: func(p *Parameters) { p.SampleWindow = 0 }, field: "sample window"},
		{name: "negative delay", modify: func(p *Parameters) { p.RecordDelay = -time.Second }, field: "record delay"},
		{name: "bad gain", modify: func(p *Parameters) { p.Gain = "max" }, field: "gain"},
		{name: "no output dir", modify: func(p *Parameters) { p.OutputDir = " " }, field: "output directory"},
		{name: "zero sample rate", modify: func(p *Parameters) { p.SampleRate = 0 }, field: "sample rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParameters(t, storage.FormatFlatTable)
			tt.modify(&params)

			_, err := NewSession(params, &scriptedSource{batches: scenarioBatches})

			var configErr *ConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if configErr.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, configErr.Field)
			}
			if ErrorKind(err) != KindConfig {
				t.Errorf("Expected config kind, got %s", ErrorKind(err))
			}

			if strings.TrimSpace(params.OutputDir) != "" {
				if _, sErr := os.Stat(params.OutputDir); !os.IsNotExist(sErr) {
					t.Errorf("Expected no output directory before validation passes, got %v", sErr)
				}
			}
		})
	}
}

func TestParameters_Delay(t *testing.T) {
	p := DefaultParameters()

	p.RecordDelay = 2500 * time.Millisecond
	if d := p.delay(); d != 2*time.Second {
		t.Errorf("Expected 2s, got %s", d)
	}

	p.RecordDelay = 900 * time.Millisecond
	if d := p.delay(); d != 0 {
		t.Errorf("Expected 0s, got %s", d)
	}
}

func TestParameters_Destination(t *testing.T) {
	p := DefaultParameters()
	p.OutputDir = "outputs"

	if got, want := p.Destination(""), filepath.Join("outputs", "sample_window262144.csv"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	p.Format = storage.FormatColumnarStore
	if got, want := p.Destination("20240501_120000"), filepath.Join("outputs", "20240501_120000-sample_window262144.sqlite"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: &ConfigError{Field: "format", Err: errors.New("bad")}, want: KindConfig},
		{err: sdr.NewDeviceError("RTL-SDR", "read", errors.New("eof")), want: KindDevice},
		{err: &storage.IOError{Op: "open", Path: "x", Err: os.ErrPermission}, want: KindIO},
		{err: &storage.FormatError{Path: "x", Reason: "foreign"}, want: KindFormat},
		{err: context.Canceled, want: KindCancelled},
		{err: errors.New("boom"), want: KindOther},
	}

	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}
