package core

import (
	"math"

	"github.com/signalsfoundry/coverage-mapper/model"
)

// extenderReferenceDBm is the idealized strength one metre from a
// newly placed access point, used when simulating its contribution.
const extenderReferenceDBm = -30.0

// PlacementResult carries the chosen sites plus whether the search
// stopped before reaching the requested count. Early exhaustion is an
// ordinary outcome, reported rather than raised.
type PlacementResult struct {
	Recommendations []model.PlacementRecommendation
	// Exhausted is true when no remaining candidate could improve
	// the worst-covered cell and fewer than the requested sites were
	// chosen.
	Exhausted bool
	// FinalMinStrength is the worst gap-cell strength after applying
	// every chosen site.
	FinalMinStrength float64
}

// PlacementOptimizer greedily selects extender sites that maximise the
// minimum strength over the coverage gaps (max-min fairness).
type PlacementOptimizer struct {
	// Reference is the strength 1 m from a simulated extender.
	Reference float64
}

// NewPlacementOptimizer returns an optimizer with the default
// idealized extender model.
func NewPlacementOptimizer() PlacementOptimizer {
	return PlacementOptimizer{Reference: extenderReferenceDBm}
}

// Optimize runs up to k greedy rounds over the feasible candidates.
//
// Each round simulates every remaining candidate against the current
// grid snapshot, scores it by the resulting minimum strength over the
// gap cells, and keeps the best. Ties go to the lowest candidate index
// so runs are reproducible. Every applied round produces a fresh grid
// snapshot; the caller's grid is never written.
func (po PlacementOptimizer) Optimize(grid *HeatmapGrid, gaps []GapCell, candidates []model.CandidateSite, k int) PlacementResult {
	result := PlacementResult{FinalMinStrength: minGapStrength(grid, gaps)}
	if len(gaps) == 0 || k <= 0 {
		return result
	}

	feasible := make([]int, 0, len(candidates))
	for i, c := range candidates {
		if c.Feasible {
			feasible = append(feasible, i)
		}
	}

	current := grid
	for round := 0; round < k; round++ {
		currentMin := minGapStrength(current, gaps)

		bestIdx := -1
		bestMin := currentMin
		for _, ci := range feasible {
			simulated := simulateSite(current, gaps, PointFromPosition(candidates[ci].Position), po.reference())
			if simulated > bestMin {
				bestMin = simulated
				bestIdx = ci
			}
		}
		if bestIdx < 0 {
			// No candidate lifts the floor any further.
			result.Exhausted = len(result.Recommendations) < k
			break
		}

		chosen := candidates[bestIdx]
		current = applySite(current, PointFromPosition(chosen.Position), po.reference())
		result.Recommendations = append(result.Recommendations, model.PlacementRecommendation{
			Site:                model.Site{ID: chosen.ID, Position: chosen.Position},
			ExpectedImprovement: bestMin - currentMin,
		})
		result.FinalMinStrength = bestMin

		for j, ci := range feasible {
			if ci == bestIdx {
				feasible = append(feasible[:j], feasible[j+1:]...)
				break
			}
		}
	}
	return result
}

func (po PlacementOptimizer) reference() float64 {
	if po.Reference == 0 {
		return extenderReferenceDBm
	}
	return po.Reference
}

// siteStrengthAt is the idealized inverse-square contribution of an
// extender at the given distance, expressed in dBm.
func siteStrengthAt(site, cell Point, reference float64) float64 {
	d := site.DistanceTo(cell)
	if d < 1 {
		d = 1
	}
	return reference - 20*math.Log10(d)
}

// simulateSite scores a candidate: the minimum strength over the gap
// cells after adding the candidate's contribution, without touching
// the grid.
func simulateSite(grid *HeatmapGrid, gaps []GapCell, site Point, reference float64) float64 {
	minS := math.Inf(1)
	for _, gap := range gaps {
		s := grid.Cell(gap.Col, gap.Row).Strength
		if contrib := siteStrengthAt(site, gap.Center, reference); contrib > s {
			s = contrib
		}
		if s > MaxStrengthDBm {
			s = MaxStrengthDBm
		}
		if s < minS {
			minS = s
		}
	}
	return minS
}

// applySite folds a chosen site's contribution into a new grid
// snapshot. The strongest signal wins per cell; overlapping coverage
// is not summed.
func applySite(grid *HeatmapGrid, site Point, reference float64) *HeatmapGrid {
	next := grid.Clone()
	for row := 0; row < next.Rows; row++ {
		for col := 0; col < next.Cols; col++ {
			i := row*next.Cols + col
			contrib := siteStrengthAt(site, next.CellCenter(col, row), reference)
			if contrib > MaxStrengthDBm {
				contrib = MaxStrengthDBm
			}
			cell := next.Cells[i]
			if cell.Confidence == 0 {
				// A simulated extender covers previously
				// unsurveyed cells too; mark them as modelled
				// rather than measured.
				next.Cells[i] = HeatmapCell{Strength: contrib, Confidence: 0.5}
				continue
			}
			if contrib > cell.Strength {
				cell.Strength = contrib
				next.Cells[i] = cell
			}
		}
	}
	return next
}

func minGapStrength(grid *HeatmapGrid, gaps []GapCell) float64 {
	minS := math.Inf(1)
	for _, gap := range gaps {
		if s := grid.Cell(gap.Col, gap.Row).Strength; s < minS {
			minS = s
		}
	}
	if math.IsInf(minS, 1) {
		return MaxStrengthDBm
	}
	return minS
}
