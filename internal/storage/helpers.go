package storage

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError rolls back unless the transaction has already been committed
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

// formatFloat renders v in the shortest form that round-trips, always with
// a fractional part or an exponent, e.g. 5 -> "5.0", 0.00001 -> "1e-05".
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// encodeFloats packs values as little-endian float64
func encodeFloats(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeFloats(buf []byte, count int) ([]float64, error) {
	if len(buf) != 8*count {
		return nil, fmt.Errorf("float64 chunk holds %d bytes, expected %d", len(buf), 8*count)
	}

	values := make([]float64, count)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return values, nil
}

// encodeTimestamps packs rendered timestamps as fixed-width NUL-padded strings
func encodeTimestamps(stamps []time.Time) []byte {
	buf := make([]byte, TimestampWidth*len(stamps))
	for i, t := range stamps {
		copy(buf[TimestampWidth*i:TimestampWidth*(i+1)], FormatTimestamp(t))
	}
	return buf
}

func decodeTimestamps(buf []byte, count int) ([]time.Time, error) {
	if len(buf) != TimestampWidth*count {
		return nil, fmt.Errorf("timestamp chunk holds %d bytes, expected %d", len(buf), TimestampWidth*count)
	}

	stamps := make([]time.Time, count)
	for i := range stamps {
		field := strings.TrimRight(string(buf[TimestampWidth*i:TimestampWidth*(i+1)]), "\x00")

		t, err := ParseTimestamp(field)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp %d: %w", i, err)
		}
		stamps[i] = t
	}
	return stamps, nil
}

func splitComplex(samples []complex128) (re, im []float64) {
	re = make([]float64, len(samples))
	im = make([]float64, len(samples))
	for i, s := range samples {
		re[i] = real(s)
		im[i] = imag(s)
	}
	return re, im
}
