package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/roman-kulish/sdrcap/internal/sdr"
)

// flatTableHeader is the first row of every flat table
var flatTableHeader = []string{"Real Value", "Imaginary Value", "Timestamp"}

// FlatTableSink appends one row per sample to a comma-delimited text file.
// The header row is written only when the destination is absent or empty.
// Rows already written are never rewritten; a crash mid-append may leave
// a partial last row.
type FlatTableSink struct {
	policy   TimestampPolicy
	logger   *slog.Logger
	arrivals *arrivalLog
}

// NewFlatTableSink creates a flat table sink. Timestamps default to
// BackwardFromArrival.
func NewFlatTableSink(options ...Option) (*FlatTableSink, error) {
	o, err := newSinkOptions(BackwardFromArrival, options)
	if err != nil {
		return nil, err
	}

	return &FlatTableSink{
		policy:   o.policy,
		logger:   o.logger,
		arrivals: newArrivalLog(),
	}, nil
}

func (s *FlatTableSink) sealed() {}

func (s *FlatTableSink) Format() Format {
	return FormatFlatTable
}

func (s *FlatTableSink) Append(ctx context.Context, batch *sdr.Batch, destination string) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(destination, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return newIOError("open", destination, err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = newIOError("close", destination, cErr)
		}
	}()

	empty, err := checkFlatTableHeader(f, destination)
	if err != nil {
		return err
	}

	stamps := s.policy.Timestamps(batch.Arrival, batch.Len(), s.arrivals.window(batch, destination))

	w := csv.NewWriter(f)
	if empty {
		if err = w.Write(flatTableHeader); err != nil {
			return newIOError("write", destination, err)
		}
	}

	record := make([]string, 3)
	for i, sample := range batch.Samples {
		record[0] = formatFloat(real(sample))
		record[1] = formatFloat(imag(sample))
		record[2] = FormatTimestamp(stamps[i])

		if err = w.Write(record); err != nil {
			return newIOError("write", destination, err)
		}
	}

	w.Flush()
	if err = w.Error(); err != nil {
		return newIOError("write", destination, err)
	}
	if err = f.Sync(); err != nil {
		return newIOError("sync", destination, err)
	}
	s.arrivals.record(destination, batch.Arrival)

	s.logger.Debug("batch appended",
		slog.String("destination", destination),
		slog.Int("samples", batch.Len()),
		slog.Bool("header", empty))

	return nil
}

func (s *FlatTableSink) Close() error {
	s.arrivals.reset()
	return nil
}

// checkFlatTableHeader reports whether f is empty, and otherwise verifies
// that it starts with the flat table header.
func checkFlatTableHeader(f *os.File, path string) (empty bool, err error) {
	fi, err := f.Stat()
	if err != nil {
		return false, newIOError("stat", path, err)
	}
	if fi.Size() == 0 {
		return true, nil
	}

	want := headerLine()
	got := make([]byte, len(want))
	n, err := f.ReadAt(got, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, newIOError("read", path, err)
	}
	got = got[:n]

	switch {
	case bytes.Equal(got, want):
		return false, nil
	case bytes.HasPrefix(got, []byte(sqliteMagic)):
		return false, newFormatError(path, "destination holds a %s, not a %s", FormatColumnarStore, FormatFlatTable)
	default:
		return false, newFormatError(path, "unexpected header %q", bytes.TrimSpace(got))
	}
}

func headerLine() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(flatTableHeader)
	w.Flush()
	return buf.Bytes()
}

// FlatTableRow is one sample read back from a flat table
type FlatTableRow struct {
	Real      float64
	Imag      float64
	Timestamp time.Time
}

// ReadFlatTable reads every row of a flat table
func ReadFlatTable(path string) (rows []FlatTableRow, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newIOError("open", path, err)
	}
	defer closeWithError(f, &err)

	if _, err = checkFlatTableHeader(f, path); err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(flatTableHeader)
	r.ReuseRecord = true

	if _, err = r.Read(); err != nil { // header
		if errors.Is(err, io.EOF) {
			return nil, newFormatError(path, "missing header")
		}
		return nil, newIOError("read", path, err)
	}

	for {
		record, rErr := r.Read()
		if errors.Is(rErr, io.EOF) {
			break
		}
		if rErr != nil {
			var parseErr *csv.ParseError
			if errors.As(rErr, &parseErr) {
				return nil, newFormatError(path, "malformed row: %s", parseErr)
			}
			return nil, newIOError("read", path, rErr)
		}

		row, pErr := parseFlatTableRow(record)
		if pErr != nil {
			line, _ := r.FieldPos(0)
			return nil, newFormatError(path, "line %d: %s", line, pErr)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func parseFlatTableRow(record []string) (FlatTableRow, error) {
	re, err := parseFloat(record[0])
	if err != nil {
		return FlatTableRow{}, fmt.Errorf("parsing real value: %w", err)
	}
	im, err := parseFloat(record[1])
	if err != nil {
		return FlatTableRow{}, fmt.Errorf("parsing imaginary value: %w", err)
	}
	ts, err := ParseTimestamp(record[2])
	if err != nil {
		return FlatTableRow{}, fmt.Errorf("parsing timestamp: %w", err)
	}

	return FlatTableRow{Real: re, Imag: im, Timestamp: ts}, nil
}
