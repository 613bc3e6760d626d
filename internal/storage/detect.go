package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// DetectFormat identifies the format of an existing destination from its
// leading bytes.
func DetectFormat(path string) (format Format, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, newIOError("open", path, err)
	}
	defer closeWithError(f, &err)

	head := make([]byte, max(len(sqliteMagic), len(headerLine())))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, newIOError("read", path, err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, []byte(sqliteMagic)):
		return FormatColumnarStore, nil
	case bytes.HasPrefix(head, headerLine()):
		return FormatFlatTable, nil
	case n == 0:
		return 0, newFormatError(path, "destination is empty")
	default:
		return 0, newFormatError(path, "unrecognized format")
	}
}
