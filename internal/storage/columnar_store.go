package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/sdrcap/internal/sdr"
)

// DefaultGroup is the column group holding a recording
const DefaultGroup = "recording_data"

// dataset describes one column of a group
type dataset struct {
	Name      string
	DType     string
	ItemSize  int
	Length    int64
	MaxLength sql.NullInt64
}

var recordingColumns = []dataset{
	{Name: columnImag, DType: dtypeFloat64, ItemSize: 8},
	{Name: columnReal, DType: dtypeFloat64, ItemSize: 8},
	{Name: columnTimestamps, DType: dtypeTimestamp, ItemSize: TimestampWidth},
}

// ColumnarStoreSink maintains three parallel growable columns (real, imag,
// timestamps) and fixed scalar attributes per destination. Each append is
// one transaction: a reader never observes columns of unequal length.
type ColumnarStoreSink struct {
	meta   Metadata
	policy TimestampPolicy
	group  string
	logger *slog.Logger

	arrivals *arrivalLog

	mu  sync.Mutex
	dbs map[string]*sql.DB // per destination
}

// NewColumnarStoreSink creates a columnar store sink. meta is written to a
// destination when it is created and never afterwards. Timestamps default
// to ForwardFromCapture.
func NewColumnarStoreSink(meta Metadata, options ...Option) (*ColumnarStoreSink, error) {
	o, err := newSinkOptions(ForwardFromCapture, options)
	if err != nil {
		return nil, err
	}

	return &ColumnarStoreSink{
		meta:   meta,
		policy: o.policy,
		group:  o.group,
		logger: o.logger,
		dbs:    make(map[string]*sql.DB),

		arrivals: newArrivalLog(),
	}, nil
}

func (s *ColumnarStoreSink) sealed() {}

func (s *ColumnarStoreSink) Format() Format {
	return FormatColumnarStore
}

func (s *ColumnarStoreSink) Append(ctx context.Context, batch *sdr.Batch, destination string) (err error) {
	db, err := s.getDB(ctx, destination)
	if err != nil {
		return err
	}

	n := batch.Len()
	stamps := s.policy.Timestamps(batch.Arrival, n, s.arrivals.window(batch, destination))
	re, im := splitComplex(batch.Samples)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return newIOError("begin", destination, err)
	}
	defer rollbackWithError(tx, &err)

	length, created, err := s.prepareColumns(ctx, tx, destination, int64(n))
	if err != nil {
		return err
	}

	if n > 0 {
		chunks := []struct {
			name string
			data []byte
		}{
			{name: columnReal, data: encodeFloats(re)},
			{name: columnImag, data: encodeFloats(im)},
			{name: columnTimestamps, data: encodeTimestamps(stamps)},
		}
		for _, c := range chunks {
			if _, err = tx.ExecContext(ctx, insertChunkSQL, s.group, c.name, length, n, c.data); err != nil {
				return newIOError("write", destination, fmt.Errorf("inserting %s chunk: %w", c.name, err))
			}
			if _, err = tx.ExecContext(ctx, growDatasetSQL, n, s.group, c.name); err != nil {
				return newIOError("write", destination, fmt.Errorf("growing %s: %w", c.name, err))
			}
		}
	}

	for _, a := range metadataAttributes(s.meta) {
		if _, err = tx.ExecContext(ctx, insertAttributeSQL, s.group, a.Name, a.DType, a.Value); err != nil {
			return newIOError("write", destination, fmt.Errorf("writing attribute %s: %w", a.Name, err))
		}
	}

	if err = tx.Commit(); err != nil {
		return newIOError("commit", destination, err)
	}
	s.arrivals.record(destination, batch.Arrival)

	s.logger.Debug("batch appended",
		slog.String("destination", destination),
		slog.String("group", s.group),
		slog.Int("samples", n),
		slog.Int64("length", length+int64(n)),
		slog.Bool("created", created))

	return nil
}

// prepareColumns creates the group columns when absent, otherwise checks
// that all three exist with equal lengths and room for n more items. It
// returns the current column length.
func (s *ColumnarStoreSink) prepareColumns(ctx context.Context, tx *sql.Tx, destination string, n int64) (length int64, created bool, err error) {
	columns, err := loadDatasets(ctx, tx, s.group)
	if err != nil {
		return 0, false, newIOError("read", destination, err)
	}

	if len(columns) == 0 {
		for _, c := range recordingColumns {
			if _, err = tx.ExecContext(ctx, insertDatasetSQL, s.group, c.Name, c.DType, c.ItemSize); err != nil {
				return 0, false, newIOError("write", destination, fmt.Errorf("creating %s: %w", c.Name, err))
			}
		}
		return 0, true, nil
	}

	if length, err = checkColumns(destination, s.group, columns); err != nil {
		return 0, false, err
	}

	for _, c := range columns {
		if c.MaxLength.Valid && length+n > c.MaxLength.Int64 {
			return 0, false, newFormatError(destination, "column %s/%s cannot grow past %d items", s.group, c.Name, c.MaxLength.Int64)
		}
	}

	return length, false, nil
}

// checkColumns verifies the recording columns of a group and returns their common length
func checkColumns(path, group string, columns []dataset) (int64, error) {
	if len(columns) != len(recordingColumns) {
		return 0, newFormatError(path, "group %s holds %d of %d columns", group, len(columns), len(recordingColumns))
	}

	for i, want := range recordingColumns {
		got := columns[i]
		if got.Name != want.Name {
			return 0, newFormatError(path, "group %s: unexpected column %q", group, got.Name)
		}
		if got.DType != want.DType || got.ItemSize != want.ItemSize {
			return 0, newFormatError(path, "column %s/%s: unexpected type %s (%d bytes)", group, got.Name, got.DType, got.ItemSize)
		}
		if got.Length != columns[0].Length {
			return 0, newFormatError(path, "group %s: column lengths differ (%s=%d, %s=%d)",
				group, columns[0].Name, columns[0].Length, got.Name, got.Length)
		}
	}

	return columns[0].Length, nil
}

func loadDatasets(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, group string) (columns []dataset, err error) {
	rows, err := q.QueryContext(ctx, selectDatasetsSQL, group)
	if err != nil {
		return nil, fmt.Errorf("querying datasets: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d dataset
		if err = rows.Scan(&d.Name, &d.DType, &d.ItemSize, &d.Length, &d.MaxLength); err != nil {
			return nil, fmt.Errorf("scanning dataset: %w", err)
		}
		columns = append(columns, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating datasets: %w", err)
	}

	return columns, nil
}

type attribute struct {
	Name  string
	DType string
	Value string
}

func metadataAttributes(m Metadata) []attribute {
	return []attribute{
		{Name: attrCenterFreq, DType: dtypeFloat64, Value: strconv.FormatFloat(m.CenterFrequency, 'g', -1, 64)},
		{Name: attrSampleRate, DType: dtypeFloat64, Value: strconv.FormatFloat(m.SampleRate, 'g', -1, 64)},
		{Name: attrFreqCorrection, DType: dtypeInt64, Value: strconv.Itoa(m.FreqCorrection)},
		{Name: attrGain, DType: dtypeString, Value: m.Gain},
	}
}

// getDB returns the open container of a destination, opening and
// identifying it on first use.
func (s *ColumnarStoreSink) getDB(ctx context.Context, destination string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.dbs[destination]; ok {
		return db, nil
	}

	db, err := openContainer(ctx, destination, false)
	if err != nil {
		return nil, err
	}

	s.logger.Info("columnar store opened", slog.String("destination", destination))
	s.dbs[destination] = db
	return db, nil
}

// openContainer opens a columnar store file. Unless readOnly, a missing or
// empty file is initialized; any other file must carry the store's
// application ID.
func openContainer(ctx context.Context, path string, readOnly bool) (*sql.DB, error) {
	if err := sniffContainer(path, readOnly); err != nil {
		return nil, err
	}

	// the driver parses a URI, so '#', '?' and '%' in the path are escaped
	uri := "file:" + (&url.URL{Path: path}).EscapedPath()
	dsn := uri + "?_journal_mode=DELETE&_synchronous=FULL&_busy_timeout=5000&_foreign_keys=1"
	if readOnly {
		dsn = uri + "?mode=ro&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, newIOError("open", path, err)
	}
	db.SetMaxOpenConns(1)

	if err = identifyContainer(ctx, db, path, readOnly); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// sniffContainer rejects files which are not SQLite databases before the
// driver gets a chance to treat them as one
func sniffContainer(path string, readOnly bool) (err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) && !readOnly {
		return nil
	}
	if err != nil {
		return newIOError("open", path, err)
	}
	defer closeWithError(f, &err)

	fi, err := f.Stat()
	if err != nil {
		return newIOError("stat", path, err)
	}
	if fi.IsDir() {
		return newIOError("open", path, errors.New("is a directory"))
	}
	if fi.Size() == 0 && !readOnly {
		return nil
	}

	magic := make([]byte, len(sqliteMagic))
	if _, err = io.ReadFull(f, magic); err != nil || string(magic) != sqliteMagic {
		if string(magic[:min(len(magic), len(flatTableHeader[0]))]) == flatTableHeader[0] {
			return newFormatError(path, "destination holds a %s, not a %s", FormatFlatTable, FormatColumnarStore)
		}
		return newFormatError(path, "not a %s", FormatColumnarStore)
	}

	return nil
}

func identifyContainer(ctx context.Context, db *sql.DB, path string, readOnly bool) error {
	var appID, version, tables int64
	if err := db.QueryRowContext(ctx, "PRAGMA application_id").Scan(&appID); err != nil {
		return newIOError("open", path, err)
	}
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return newIOError("open", path, err)
	}
	if err := db.QueryRowContext(ctx, countTablesSQL).Scan(&tables); err != nil {
		return newIOError("open", path, err)
	}

	switch {
	case appID == applicationID:
		if version > layoutVersion {
			return newFormatError(path, "layout version %d is newer than supported %d", version, layoutVersion)
		}
		if readOnly {
			return nil
		}

	case appID == 0 && tables == 0 && !readOnly:
		pragmas := fmt.Sprintf("PRAGMA application_id = %d; PRAGMA user_version = %d;", applicationID, layoutVersion)
		if _, err := db.ExecContext(ctx, pragmas); err != nil {
			return newIOError("initialize", path, err)
		}

	default:
		return newFormatError(path, "not a %s (application id %#x)", FormatColumnarStore, appID)
	}

	if _, err := db.ExecContext(ctx, initSchemaSQL); err != nil {
		return newIOError("initialize", path, fmt.Errorf("initializing schema: %w", err))
	}
	return nil
}

// Close closes every open destination. The sink reopens a destination on
// the next append.
func (s *ColumnarStoreSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for destination, db := range s.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, newIOError("close", destination, err))
		}
		delete(s.dbs, destination)
	}
	s.arrivals.reset()
	return errors.Join(errs...)
}
