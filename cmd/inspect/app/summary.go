package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/cmplx"
	"os"
	"time"

	"github.com/roman-kulish/sdrcap/internal/storage"
)

// Summary describes the content of a recording file
type Summary struct {
	Path    string
	Format  storage.Format
	Size    int64
	Samples int64
	Chunks  int // appended batches, columnar store only

	First time.Time
	Last  time.Time

	Metadata   *storage.Metadata // columnar store only
	Attributes map[string]string

	Peak  float64 // largest sample magnitude
	Power *PowerBounds
}

// Span returns the time covered by the recorded timestamps
func (s *Summary) Span() time.Duration {
	return s.Last.Sub(s.First)
}

type summarizer struct {
	summary *Summary
	hist    *PowerHistogram
}

func (z *summarizer) add(samples []complex128, timestamps []time.Time) {
	s := z.summary
	for i, v := range samples {
		s.Peak = max(s.Peak, cmplx.Abs(v))

		ts := timestamps[i]
		if s.First.IsZero() || ts.Before(s.First) {
			s.First = ts
		}
		if ts.After(s.Last) {
			s.Last = ts
		}
	}

	z.hist.Update(samples...)
	s.Samples += int64(len(samples))
}

func (z *summarizer) finish() *Summary {
	if bounds, ok := z.hist.GetPercentileBounds(); ok {
		z.summary.Power = &bounds
	}
	return z.summary
}

// Summarize reads a recording of either format and reports its content.
// group selects the column group of a columnar store.
func Summarize(ctx context.Context, path, group string, logger *slog.Logger) (*Summary, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("recording file '%s' does not exist: %w", path, err)
	}

	format, err := storage.DetectFormat(path)
	if err != nil {
		return nil, err
	}

	z := summarizer{
		summary: &Summary{Path: path, Format: format, Size: stat.Size()},
		hist:    NewPowerHistogram(),
	}

	switch format {
	case storage.FormatFlatTable:
		err = z.readFlatTable(path)
	case storage.FormatColumnarStore:
		err = z.readColumnarStore(ctx, path, group, logger)
	default:
		err = fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return nil, err
	}

	return z.finish(), nil
}

func (z *summarizer) readFlatTable(path string) error {
	rows, err := storage.ReadFlatTable(path)
	if err != nil {
		return err
	}

	samples := make([]complex128, len(rows))
	timestamps := make([]time.Time, len(rows))
	for i, row := range rows {
		samples[i] = complex(row.Real, row.Imag)
		timestamps[i] = row.Timestamp
	}

	z.add(samples, timestamps)
	return nil
}

func (z *summarizer) readColumnarStore(ctx context.Context, path, group string, logger *slog.Logger) (err error) {
	var opts []storage.ReaderOption
	if group != "" {
		opts = append(opts, storage.WithReaderGroup(group))
	}

	r, err := storage.OpenColumnarStore(ctx, path, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := r.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	meta := r.Metadata()
	z.summary.Metadata = &meta
	z.summary.Attributes = r.Attributes()

	for r.Next(ctx) {
		chunk := r.Current()
		z.add(chunk.Samples, chunk.Timestamps)
		z.summary.Chunks++

		logger.Debug("chunk",
			slog.Int64("start", chunk.Start),
			slog.Int("samples", len(chunk.Samples)))
	}

	return r.Error()
}
