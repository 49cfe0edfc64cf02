package core

import "math"

// speedOfLightMPerS is the propagation speed used by the RTT distance
// model, metres per second.
const speedOfLightMPerS = 3e8

// DefaultProcessingOffsetMs is the fixed device/AP processing latency
// subtracted from raw RTT probes. Home-network RTTs are dominated by
// this offset, so realistic probes stay close to it and yield small
// one-way distances.
const DefaultProcessingOffsetMs = 5.0

// DistanceEstimator converts round-trip-time probes to one-way
// distances in metres.
type DistanceEstimator struct {
	// OffsetMs is the calibrated processing offset in milliseconds.
	OffsetMs float64

	// Decimals controls rounding of the result so downstream
	// comparisons are stable across platforms.
	Decimals int
}

// NewDistanceEstimator returns an estimator with the default offset and
// centimetre-level rounding.
func NewDistanceEstimator() DistanceEstimator {
	return DistanceEstimator{OffsetMs: DefaultProcessingOffsetMs, Decimals: 2}
}

// Estimate converts an RTT in milliseconds to a one-way distance in
// metres.
//
// A non-positive or NaN RTT means the probe timed out; that is a valid
// "no signal" observation, reported as ok=false and never coerced to a
// zero distance. An RTT below the processing offset produces a negative
// raw value, which is clamped to 0 (ok=true): the device is simply
// closer than the model can resolve.
func (e DistanceEstimator) Estimate(rttMs float64) (meters float64, ok bool) {
	if math.IsNaN(rttMs) || rttMs <= 0 {
		return 0, false
	}
	oneWaySeconds := ((rttMs - e.OffsetMs) / 2) / 1000
	d := oneWaySeconds * speedOfLightMPerS
	if d < 0 {
		d = 0
	}
	return roundTo(d, e.Decimals), true
}

// RSSIToDistance converts a received strength to a distance estimate
// using the log-distance path loss model:
//
//	d = 10^((ref - rssi) / (10 * n))
//
// ref is the expected strength one metre from the source and n the
// path-loss exponent (2.0 for free space).
func RSSIToDistance(rssi, referenceRSSI, pathLossExponent float64) float64 {
	if pathLossExponent <= 0 {
		pathLossExponent = 2.0
	}
	return math.Pow(10, (referenceRSSI-rssi)/(10*pathLossExponent))
}

// RTTToStrength derives a strength-like dBm value from an RTT probe so
// latency-only sources can still contribute to the coverage field.
// Floored at -100 dBm, the practical noise limit.
func RTTToStrength(rttMs float64) float64 {
	s := -30 - rttMs*2
	if s < -100 {
		s = -100
	}
	return s
}

// StrengthConfidence maps a strength reading onto a trust ladder:
// strong links are read reliably, readings near the noise floor much
// less so.
func StrengthConfidence(strength float64) float64 {
	switch {
	case strength >= -50:
		return 0.90
	case strength >= -70:
		return 0.75
	case strength >= -85:
		return 0.60
	default:
		return 0.45
	}
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
