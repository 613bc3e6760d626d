package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrNoData indicates that all chunks have been read from a columnar reader
var ErrNoData = errors.New("no data available")

// Chunk is one appended batch read back from a columnar store
type Chunk struct {
	Start      int64 // Index of the first sample in the columns
	Samples    []complex128
	Timestamps []time.Time
}

// Recording is the full content of a columnar store group
type Recording struct {
	Metadata   Metadata
	Samples    []complex128
	Timestamps []time.Time
}

// ColumnarReader iterates over the chunks of a recording group in append
// order. It must be closed after use.
type ColumnarReader struct {
	db    *sql.DB
	path  string
	group string

	meta       Metadata
	attributes map[string]string
	length     int64

	rows    *sql.Rows
	next    int64 // expected start of the next chunk
	current *Chunk
	err     error
}

// ReaderOption configures a ColumnarReader
type ReaderOption func(*ColumnarReader)

// WithReaderGroup selects the column group to read, DefaultGroup otherwise
func WithReaderGroup(name string) ReaderOption {
	return func(r *ColumnarReader) {
		r.group = name
	}
}

// OpenColumnarStore opens a columnar store read-only and validates the
// column layout of the selected group.
func OpenColumnarStore(ctx context.Context, path string, opts ...ReaderOption) (*ColumnarReader, error) {
	r := &ColumnarReader{
		path:  path,
		group: DefaultGroup,
	}
	for _, opt := range opts {
		opt(r)
	}

	db, err := openContainer(ctx, path, true)
	if err != nil {
		return nil, err
	}
	r.db = db

	if err = r.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *ColumnarReader) init(ctx context.Context) error {
	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading columns", fn: r.loadColumns},
		{msg: "loading attributes", fn: r.loadAttributes},
		{msg: "initializing query", fn: r.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			var formatErr *FormatError
			if errors.As(err, &formatErr) {
				return err
			}
			return newIOError("read", r.path, fmt.Errorf("%s: %w", s.msg, err))
		}
	}
	return nil
}

func (r *ColumnarReader) loadColumns(ctx context.Context) error {
	columns, err := loadDatasets(ctx, r.db, r.group)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return newFormatError(r.path, "group %s does not exist", r.group)
	}

	r.length, err = checkColumns(r.path, r.group, columns)
	return err
}

func (r *ColumnarReader) loadAttributes(ctx context.Context) (err error) {
	rows, err := r.db.QueryContext(ctx, selectAttributesSQL, r.group)
	if err != nil {
		return fmt.Errorf("querying attributes: %w", err)
	}
	defer closeWithError(rows, &err)

	r.attributes = make(map[string]string)
	for rows.Next() {
		var a attribute
		if err = rows.Scan(&a.Name, &a.DType, &a.Value); err != nil {
			return fmt.Errorf("scanning attribute: %w", err)
		}
		r.attributes[a.Name] = a.Value

		if err = r.applyAttribute(a); err != nil {
			return newFormatError(r.path, "attribute %s: %s", a.Name, err)
		}
	}
	return rows.Err()
}

func (r *ColumnarReader) applyAttribute(a attribute) (err error) {
	switch a.Name {
	case attrCenterFreq:
		r.meta.CenterFrequency, err = strconv.ParseFloat(a.Value, 64)
	case attrSampleRate:
		r.meta.SampleRate, err = strconv.ParseFloat(a.Value, 64)
	case attrFreqCorrection:
		r.meta.FreqCorrection, err = strconv.Atoi(a.Value)
	case attrGain:
		r.meta.Gain = a.Value
	}
	return err
}

func (r *ColumnarReader) initQuery(ctx context.Context) (err error) {
	r.rows, err = r.db.QueryContext(ctx, selectChunksSQL, r.group)
	if err != nil {
		return fmt.Errorf("querying chunks: %w", err)
	}
	return nil
}

// Metadata returns the recording metadata written when the group was created
func (r *ColumnarReader) Metadata() Metadata {
	return r.meta
}

// Attributes returns the raw attribute values of the group
func (r *ColumnarReader) Attributes() map[string]string {
	return r.attributes
}

// Len returns the common length of the group columns
func (r *ColumnarReader) Len() int64 {
	return r.length
}

// Next advances to the next chunk. It returns false at the end of the
// data or on error; check Error to tell them apart.
func (r *ColumnarReader) Next(ctx context.Context) bool {
	if r.err != nil || r.rows == nil {
		return false
	}

	select {
	case <-ctx.Done():
		r.err = ctx.Err()
		return false
	default:
	}

	if !r.rows.Next() {
		if r.rows.Err() == nil && r.next != r.length {
			r.err = newFormatError(r.path, "chunks hold %d items, columns declare %d", r.next, r.length)
			return false
		}
		r.err = ErrNoData
		r.current = nil
		return false
	}

	var start, reCount, imCount, tsCount int64
	var reData, imData, tsData []byte
	if err := r.rows.Scan(&start, &reCount, &reData, &imCount, &imData, &tsCount, &tsData); err != nil {
		r.err = newIOError("read", r.path, fmt.Errorf("scanning chunk: %w", err))
		return false
	}

	if start != r.next || imCount != reCount || tsCount != reCount {
		r.err = newFormatError(r.path, "misaligned chunk at %d (expected start %d)", start, r.next)
		return false
	}

	chunk, err := decodeChunk(start, int(reCount), reData, imData, tsData)
	if err != nil {
		r.err = newFormatError(r.path, "chunk at %d: %s", start, err)
		return false
	}

	r.next += reCount
	r.current = chunk
	return true
}

func decodeChunk(start int64, count int, reData, imData, tsData []byte) (*Chunk, error) {
	re, err := decodeFloats(reData, count)
	if err != nil {
		return nil, fmt.Errorf("real: %w", err)
	}
	im, err := decodeFloats(imData, count)
	if err != nil {
		return nil, fmt.Errorf("imag: %w", err)
	}
	stamps, err := decodeTimestamps(tsData, count)
	if err != nil {
		return nil, fmt.Errorf("timestamps: %w", err)
	}

	samples := make([]complex128, count)
	for i := range samples {
		samples[i] = complex(re[i], im[i])
	}

	return &Chunk{Start: start, Samples: samples, Timestamps: stamps}, nil
}

// Current returns the chunk read by the last call to Next
func (r *ColumnarReader) Current() *Chunk {
	return r.current
}

// Error returns the error which stopped the iteration, if any
func (r *ColumnarReader) Error() error {
	if r.err != nil && !errors.Is(r.err, ErrNoData) {
		return r.err
	}
	if r.rows != nil {
		return r.rows.Err()
	}
	return nil
}

// ReadAll reads every remaining chunk into a single Recording
func (r *ColumnarReader) ReadAll(ctx context.Context) (*Recording, error) {
	rec := Recording{
		Metadata:   r.meta,
		Samples:    make([]complex128, 0, r.length),
		Timestamps: make([]time.Time, 0, r.length),
	}

	for r.Next(ctx) {
		chunk := r.Current()
		rec.Samples = append(rec.Samples, chunk.Samples...)
		rec.Timestamps = append(rec.Timestamps, chunk.Timestamps...)
	}
	if err := r.Error(); err != nil {
		return nil, err
	}

	return &rec, nil
}

// Close releases the reader and its database connection
func (r *ColumnarReader) Close() (err error) {
	if r.rows != nil {
		err = r.rows.Close()
		r.rows = nil
		r.current = nil
	}
	if r.db != nil {
		err = errors.Join(err, r.db.Close())
		r.db = nil
	}
	return err
}
