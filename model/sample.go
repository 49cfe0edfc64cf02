package model

import (
	"math"
	"time"
)

// SampleKind identifies what a probe actually measured. It is a closed
// set: every consumer that switches on it must handle all values.
type SampleKind int

const (
	// SampleRSSI is a received-signal-strength reading in dBm.
	SampleRSSI SampleKind = iota
	// SampleRTT is a round-trip-time probe result in milliseconds.
	SampleRTT
)

// String returns a short wire-friendly name for the kind.
func (k SampleKind) String() string {
	switch k {
	case SampleRSSI:
		return "rssi"
	case SampleRTT:
		return "rtt"
	default:
		return "unknown"
	}
}

// ParseSampleKind maps a wire name back to a SampleKind.
func ParseSampleKind(s string) (SampleKind, bool) {
	switch s {
	case "rssi":
		return SampleRSSI, true
	case "rtt":
		return SampleRTT, true
	default:
		return 0, false
	}
}

// Position is a point on the floorplan, in metres from the survey origin.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sample is a single observation from one signal source. Samples are
// immutable once recorded; producers may deliver duplicates or
// out-of-order batches and consumers keep only the most recent reading
// per source.
type Sample struct {
	SourceID  string     `json:"sourceId"`
	Timestamp time.Time  `json:"timestamp"`
	Kind      SampleKind `json:"-"`
	Value     float64    `json:"value"`

	// Where the sample was taken, when known (e.g. during a
	// calibration walk). Nil for ordinary ambient samples.
	Position *Position `json:"position,omitempty"`
}

// MissingFeature marks a feature-vector slot for which no usable sample
// exists. It is NaN so that it can never be confused with a real dBm
// reading; use IsMissing rather than == to test for it.
var MissingFeature = math.NaN()

// IsMissing reports whether a feature slot holds the absence sentinel.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// FeatureVector is a fixed-order snapshot of the most recent
// strength-like value per known source. Slots for sources without a
// usable observation hold MissingFeature; they are never interpolated.
type FeatureVector struct {
	// Sources is the slot order. All vectors compared against each
	// other must share the same order.
	Sources []string `json:"sources"`
	Values  []float64 `json:"values"`
}

// Len returns the number of slots.
func (fv FeatureVector) Len() int { return len(fv.Values) }

// Observed returns how many slots carry a real value.
func (fv FeatureVector) Observed() int {
	n := 0
	for _, v := range fv.Values {
		if !IsMissing(v) {
			n++
		}
	}
	return n
}

// Equal reports whether two vectors have identical slot values, with
// missing slots matching missing slots.
func (fv FeatureVector) Equal(other FeatureVector) bool {
	if len(fv.Values) != len(other.Values) {
		return false
	}
	for i, v := range fv.Values {
		switch {
		case IsMissing(v) && IsMissing(other.Values[i]):
		case IsMissing(v) || IsMissing(other.Values[i]):
			return false
		case v != other.Values[i]:
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers can hold a vector across
// recomputes without aliasing the window's buffers.
func (fv FeatureVector) Clone() FeatureVector {
	out := FeatureVector{
		Sources: append([]string(nil), fv.Sources...),
		Values:  append([]float64(nil), fv.Values...),
	}
	return out
}
