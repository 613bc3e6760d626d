package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roman-kulish/sdrcap/internal/sdr"
)

// Format selects the on-disk representation of a recording. The set is closed.
type Format int

const (
	// FormatFlatTable is an append-only comma-delimited text file
	FormatFlatTable Format = iota + 1

	// FormatColumnarStore is a growable self-describing SQLite container
	FormatColumnarStore
)

// ParseFormat maps a format selector to a Format. Both the descriptive
// names and the file extensions are accepted.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flat-table", "csv":
		return FormatFlatTable, nil
	case "columnar-store", "sqlite":
		return FormatColumnarStore, nil
	default:
		return 0, fmt.Errorf("unknown format %q: must be one of flat-table (csv), columnar-store (sqlite)", s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatFlatTable:
		return "flat-table"
	case FormatColumnarStore:
		return "columnar-store"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Extension returns the file extension used for destinations of this format
func (f Format) Extension() string {
	switch f {
	case FormatFlatTable:
		return "csv"
	case FormatColumnarStore:
		return "sqlite"
	default:
		return ""
	}
}

// Validate checks that f is one of the supported formats
func (f Format) Validate() error {
	switch f {
	case FormatFlatTable, FormatColumnarStore:
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f)
	}
}

// UnmarshalText allows formats in configuration files
func (f *Format) UnmarshalText(text []byte) error {
	v, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (f Format) MarshalText() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return []byte(f.String()), nil
}

// Metadata is the scalar description of a recording. A columnar store
// writes it once per destination; later values never overwrite it.
type Metadata struct {
	CenterFrequency float64 // Hz
	SampleRate      float64 // Hz
	FreqCorrection  int     // ppm
	Gain            string  // "auto" or device-defined dB value
}

// MetadataFromTuning converts device tuning into recording metadata
func MetadataFromTuning(t sdr.Tuning) Metadata {
	return Metadata{
		CenterFrequency: t.CenterFrequency,
		SampleRate:      t.SampleRate,
		FreqCorrection:  t.FreqCorrection,
		Gain:            t.Gain,
	}
}

// Sink persists batches to destinations in one on-disk format. Appends to
// the same destination accumulate. Implementations are FlatTableSink and
// ColumnarStoreSink only.
type Sink interface {
	// Append writes every sample of the batch to destination, creating it
	// when absent. The batch is not retained after Append returns.
	Append(ctx context.Context, batch *sdr.Batch, destination string) error

	// Format returns the on-disk format written by the sink
	Format() Format

	// Close releases any destination handles held by the sink
	Close() error

	sealed()
}

type sinkOptions struct {
	policy TimestampPolicy
	group  string
	logger *slog.Logger
}

// Option configures a sink
type Option func(*sinkOptions)

// WithTimestampPolicy overrides the default per-sample timestamp policy of a sink
func WithTimestampPolicy(p TimestampPolicy) Option {
	return func(o *sinkOptions) {
		o.policy = p
	}
}

// WithGroup sets the column group of a columnar store. Flat tables ignore it.
func WithGroup(name string) Option {
	return func(o *sinkOptions) {
		o.group = name
	}
}

// WithLogger sets the logger for the sink
func WithLogger(logger *slog.Logger) Option {
	return func(o *sinkOptions) {
		o.logger = logger
	}
}

func newSinkOptions(policy TimestampPolicy, options []Option) (*sinkOptions, error) {
	o := sinkOptions{
		policy: policy,
		group:  DefaultGroup,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&o)
	}

	if err := o.policy.Validate(); err != nil {
		return nil, err
	}
	if o.group == "" {
		return nil, fmt.Errorf("storage: column group name is required")
	}

	return &o, nil
}

// NewSink creates the sink for the given format. Metadata is used only by
// formats which store it.
func NewSink(format Format, meta Metadata, options ...Option) (Sink, error) {
	switch format {
	case FormatFlatTable:
		return NewFlatTableSink(options...)
	case FormatColumnarStore:
		return NewColumnarStoreSink(meta, options...)
	default:
		return nil, fmt.Errorf("storage: %w", format.Validate())
	}
}
