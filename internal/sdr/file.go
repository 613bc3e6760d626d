package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const fileDevice = "file"

// WithLoop rewinds the capture when it is exhausted
func WithLoop() func(*FileSource) {
	return func(s *FileSource) {
		s.loop = true
	}
}

// FileSource replays a raw IQ capture, e.g. one made with `rtl_sdr -n`
type FileSource struct {
	path   string
	format SampleFormat
	loop   bool

	f   *os.File
	r   *bufio.Reader
	buf []byte
}

// NewFileSource creates a source replaying path in the given sample format
func NewFileSource(path string, format SampleFormat, options ...func(*FileSource)) (*FileSource, error) {
	if path == "" {
		return nil, errors.New("sdr.FileSource: path is required")
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	s := FileSource{
		path:   path,
		format: format,
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

func (s *FileSource) Open(_ context.Context) error {
	if s.f != nil {
		return NewDeviceError(fileDevice, "open", ErrAlreadyOpen)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return NewDeviceError(fileDevice, "open", err)
	}

	s.f = f
	s.r = bufio.NewReaderSize(f, readBufferSize)
	return nil
}

func (s *FileSource) ReadBatch(ctx context.Context, n int) (*Batch, error) {
	if s.f == nil {
		return nil, NewDeviceError(fileDevice, "read", ErrNotOpen)
	}
	if n < 0 {
		return nil, NewDeviceError(fileDevice, "read", fmt.Errorf("invalid number of samples: %d", n))
	}

	size := n * s.format.BytesPerSample()
	if cap(s.buf) < size {
		s.buf = make([]byte, size)
	}
	buf := s.buf[:size]

	started := time.Now()
	if err := s.fill(ctx, buf); err != nil {
		return nil, err
	}

	samples := make([]complex128, n)
	s.format.Decode(buf, samples)

	return &Batch{
		Samples: samples,
		Started: started,
		Arrival: time.Now(),
	}, nil
}

func (s *FileSource) fill(ctx context.Context, buf []byte) error {
	var rewound bool
	for read := 0; read < len(buf); {
		if err := ctx.Err(); err != nil {
			return err
		}

		m, err := io.ReadFull(s.r, buf[read:])
		read += m

		switch {
		case err == nil:
			continue

		case (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) && s.loop && !(rewound && m == 0):
			if _, err = s.f.Seek(0, io.SeekStart); err != nil {
				return NewDeviceError(fileDevice, "rewind", err)
			}
			s.r.Reset(s.f)
			rewound = m == 0

		default:
			return NewDeviceError(fileDevice, "read", err)
		}
	}
	return nil
}

func (s *FileSource) Close() error {
	if s.f == nil {
		return nil
	}

	err := s.f.Close()
	s.f = nil
	s.r = nil
	return err
}

func (s *FileSource) Device() string {
	return fileDevice
}
