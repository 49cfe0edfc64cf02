package core

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/coverage-mapper/model"
)

// DefaultNeighbourCount is the k used for fingerprint matching.
const DefaultNeighbourCount = 3

// weightEpsilon keeps neighbour weights finite when a live vector
// matches a fingerprint exactly.
const weightEpsilon = 1e-9

// PositionEstimate is the output of a fingerprint match. A zero
// estimate with OK=false means "no estimate": the store was empty or
// no fingerprint shared a single observed feature with the live vector.
type PositionEstimate struct {
	Position   model.Position
	Confidence float64
	OK         bool
}

// PositionEstimator infers floorplan positions by k-nearest-neighbour
// matching of live feature vectors against a frozen fingerprint set.
type PositionEstimator struct {
	// K is the neighbour count; lowered automatically when the store
	// has fewer comparable points.
	K int
}

// NewPositionEstimator returns an estimator with the default k.
func NewPositionEstimator() PositionEstimator {
	return PositionEstimator{K: DefaultNeighbourCount}
}

type neighbour struct {
	index    int
	distance float64
	point    model.CalibrationPoint
}

// Estimate matches live against the fingerprint set. Missing slots on
// either side are excluded from the distance, never treated as zero
// signal. An empty set yields a no-estimate result rather than an
// error.
func (e PositionEstimator) Estimate(live model.FeatureVector, points []model.CalibrationPoint) PositionEstimate {
	if len(points) == 0 || live.Observed() == 0 {
		return PositionEstimate{}
	}

	neighbours := make([]neighbour, 0, len(points))
	for i, p := range points {
		d, comparable := featureDistance(live, p.Features)
		if !comparable {
			continue
		}
		neighbours = append(neighbours, neighbour{index: i, distance: d, point: p})
	}
	if len(neighbours) == 0 {
		return PositionEstimate{}
	}

	sort.Slice(neighbours, func(a, b int) bool {
		if neighbours[a].distance != neighbours[b].distance {
			return neighbours[a].distance < neighbours[b].distance
		}
		return neighbours[a].index < neighbours[b].index
	})

	k := e.K
	if k <= 0 {
		k = DefaultNeighbourCount
	}
	if k > len(neighbours) {
		k = len(neighbours)
	}
	nearest := neighbours[:k]

	// Fingerprints identical to the live vector form a tie group and
	// are averaged unweighted; otherwise distance weighting applies.
	// Zero-distance entries sort to the front, so the scan for the
	// group covers every identical fingerprint even past k.
	var exact []neighbour
	for _, n := range neighbours {
		if n.distance > 0 {
			break
		}
		if n.point.Features.Equal(live) {
			exact = append(exact, n)
		}
	}

	var pos model.Position
	if len(exact) > 1 {
		for _, n := range exact {
			pos.X += n.point.Position.X
			pos.Y += n.point.Position.Y
		}
		pos.X /= float64(len(exact))
		pos.Y /= float64(len(exact))
	} else {
		var wsum float64
		for _, n := range nearest {
			w := 1 / (n.distance*n.distance + weightEpsilon)
			pos.X += w * n.point.Position.X
			pos.Y += w * n.point.Position.Y
			wsum += w
		}
		pos.X /= wsum
		pos.Y /= wsum
	}

	distances := make([]float64, len(nearest))
	for i, n := range nearest {
		distances[i] = n.distance
	}
	avg := stat.Mean(distances, nil)

	return PositionEstimate{
		Position: pos,
		// Inverse of the mean neighbour distance, squashed into
		// (0, 1]: an exact-match neighbourhood scores 1.
		Confidence: 1 / (1 + avg),
		OK:         true,
	}
}

// featureDistance is the Euclidean distance over slots observed on
// both sides. comparable=false means the vectors share no observed
// slot and cannot be ranked against each other.
func featureDistance(a, b model.FeatureVector) (float64, bool) {
	n := len(a.Values)
	if len(b.Values) < n {
		n = len(b.Values)
	}
	var sum float64
	shared := 0
	for i := 0; i < n; i++ {
		if model.IsMissing(a.Values[i]) || model.IsMissing(b.Values[i]) {
			continue
		}
		d := a.Values[i] - b.Values[i]
		sum += d * d
		shared++
	}
	if shared == 0 {
		return 0, false
	}
	return math.Sqrt(sum), true
}
