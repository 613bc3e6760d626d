package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/roman-kulish/sdrcap/internal/sdr"
)

const (
	// TimestampLayout renders per-sample timestamps in UTC with microsecond resolution
	TimestampLayout = "2006-01-02 15:04:05.000000"

	// TimestampWidth is the fixed width of a rendered timestamp
	TimestampWidth = len(TimestampLayout)
)

// TimestampPolicy decides how per-sample instants are interpolated across a batch
type TimestampPolicy int

const (
	// BackwardFromArrival spreads the samples over the acquisition window
	// ending at batch arrival: t_i = t_end - ((n-1-i)/n) * window.
	BackwardFromArrival TimestampPolicy = iota + 1

	// ForwardFromCapture counts forward from batch arrival in fractions of
	// one second: t_i = t_end + i/n s. Timestamps run past the real arrival
	// instant; readers of existing recordings rely on this exact formula.
	ForwardFromCapture
)

func (p TimestampPolicy) String() string {
	switch p {
	case BackwardFromArrival:
		return "backward-from-arrival"
	case ForwardFromCapture:
		return "forward-from-capture"
	default:
		return fmt.Sprintf("TimestampPolicy(%d)", int(p))
	}
}

// Validate checks that p is a known policy
func (p TimestampPolicy) Validate() error {
	switch p {
	case BackwardFromArrival, ForwardFromCapture:
		return nil
	default:
		return fmt.Errorf("storage: unsupported timestamp policy: %s", p)
	}
}

// ParseTimestampPolicy maps a policy name to a TimestampPolicy
func ParseTimestampPolicy(s string) (TimestampPolicy, error) {
	switch s {
	case "backward-from-arrival", "backward":
		return BackwardFromArrival, nil
	case "forward-from-capture", "forward":
		return ForwardFromCapture, nil
	default:
		return 0, fmt.Errorf("unknown timestamp policy %q", s)
	}
}

// Timestamps returns one instant per sample of a batch of n samples that
// completed at arrival. window is the acquisition duration and is used by
// BackwardFromArrival only; zero collapses all timestamps onto arrival.
// n = 0 yields an empty slice.
func (p TimestampPolicy) Timestamps(arrival time.Time, n int, window time.Duration) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}

	stamps := make([]time.Time, n)
	for i := range stamps {
		switch p {
		case ForwardFromCapture:
			offset := time.Duration(float64(i) / float64(n) * float64(time.Second))
			stamps[i] = arrival.Add(offset)

		default:
			offset := time.Duration(float64(window) * float64(n-1-i) / float64(n))
			stamps[i] = arrival.Add(-offset)
		}
	}

	return stamps
}

// FormatTimestamp renders t in UTC using TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a timestamp rendered by FormatTimestamp
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}

// arrivalLog remembers the arrival of the last persisted batch per
// destination. It supplies the acquisition window of batches which carry
// no measured start.
type arrivalLog struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newArrivalLog() *arrivalLog {
	return &arrivalLog{last: make(map[string]time.Time)}
}

// window returns the measured window of batch, otherwise the time since the
// last persisted arrival at destination (zero for the first)
func (l *arrivalLog) window(batch *sdr.Batch, destination string) time.Duration {
	if d := batch.Duration(); d > 0 {
		return d
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	last, seen := l.last[destination]
	if !seen || batch.Arrival.Before(last) {
		return 0
	}
	return batch.Arrival.Sub(last)
}

// record marks the batch which arrived at arrival as persisted
func (l *arrivalLog) record(destination string, arrival time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.last[destination] = arrival
}

func (l *arrivalLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.last)
}
