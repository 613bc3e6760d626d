package app

import (
	"math"
	"math/cmplx"
)

const (
	// powerFloor is reported for zero samples
	powerFloor = -200.0 // dBFS

	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20
)

// PowerBounds represents the calculated power boundaries
type PowerBounds struct {
	Min  float64 // 5th percentile power level in dBFS
	Max  float64 // 95th percentile power level in dBFS
	Mean float64 // Mean power level in dBFS
}

// SamplePower returns the instantaneous power of a sample in dBFS
func SamplePower(s complex128) float64 {
	m := cmplx.Abs(s)
	if m == 0 {
		return powerFloor
	}
	return max(20*math.Log10(m), powerFloor)
}

// PowerHistogram maintains a histogram of power values with 1dB bins
type PowerHistogram struct {
	bins       map[int]uint32 // Map of bin index to count
	totalCount uint64         // Total number of samples
	minBin     int            // Cache for min bin
	maxBin     int            // Cache for max bin
}

// NewPowerHistogram creates a new histogram
func NewPowerHistogram() *PowerHistogram {
	return &PowerHistogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

// getBinIndex converts power value to bin index
func getBinIndex(power float64) int {
	return int(math.Floor(power)) // 1dB bins
}

// scaleDown scales all bin counts down by factor of 2
func (h *PowerHistogram) scaleDown() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32

	for bin := range h.bins {
		h.bins[bin] /= 2
		if h.bins[bin] == 0 {
			delete(h.bins, bin)
			continue
		}

		h.minBin = min(h.minBin, bin)
		h.maxBin = max(h.maxBin, bin)
	}
	h.totalCount /= 2
}

// Update adds the power of every sample to the histogram
func (h *PowerHistogram) Update(samples ...complex128) {
	for _, s := range samples {
		bin := getBinIndex(SamplePower(s))

		if h.bins[bin] == math.MaxUint32 || h.totalCount == math.MaxUint64 {
			h.scaleDown()
		}

		h.bins[bin]++
		h.totalCount++

		h.minBin = min(h.minBin, bin)
		h.maxBin = max(h.maxBin, bin)
	}
}

// Count returns the number of samples in the histogram
func (h *PowerHistogram) Count() uint64 {
	return h.totalCount
}

// GetPercentileBounds returns power bounds based on percentiles. The bounds
// are only meaningful once the histogram holds enough samples.
func (h *PowerHistogram) GetPercentileBounds() (PowerBounds, bool) {
	if h.totalCount < minimumSampleCount {
		return PowerBounds{}, false
	}

	target5th := h.totalCount * 5 / 100

	var count uint64
	var min5th, max95th int

	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target5th {
			min5th = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target5th {
			max95th = bin
			break
		}
	}

	// weighted average of bin floors
	var sumProduct float64
	for bin, n := range h.bins {
		sumProduct += float64(bin) * float64(n)
	}

	return PowerBounds{
		Min:  float64(min5th),
		Max:  float64(max95th),
		Mean: sumProduct / float64(h.totalCount),
	}, true
}
