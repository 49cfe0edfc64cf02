package core

import (
	"testing"

	"github.com/signalsfoundry/coverage-mapper/model"
)

func weakCornerGrid() *HeatmapGrid {
	// 4x4 field, healthy except a -90 corner cell.
	cells := make([]HeatmapCell, 16)
	for i := range cells {
		cells[i] = HeatmapCell{Strength: -60, Confidence: 1}
	}
	cells[0] = HeatmapCell{Strength: -90, Confidence: 1}
	return &HeatmapGrid{Extent: Extent{MaxX: 4, MaxY: 4}, Cols: 4, Rows: 4, Cells: cells}
}

func TestPlacementOptimizer_PicksAdjacentSiteForWeakCell(t *testing.T) {
	grid := weakCornerGrid()
	gaps := DetectGaps(grid, -80)
	if len(gaps) != 1 {
		t.Fatalf("setup: got %d gaps, want the single weak corner", len(gaps))
	}

	candidates := []model.CandidateSite{
		{ID: "far", Position: model.Position{X: 3.5, Y: 3.5}, Feasible: true},
		{ID: "near", Position: model.Position{X: 1, Y: 1}, Feasible: true},
	}

	result := NewPlacementOptimizer().Optimize(grid, gaps, candidates, 1)
	if len(result.Recommendations) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(result.Recommendations))
	}
	rec := result.Recommendations[0]
	if rec.Site.ID != "near" {
		t.Errorf("chose %q, want the site adjacent to the weak cell", rec.Site.ID)
	}
	if rec.ExpectedImprovement <= 0 {
		t.Errorf("improvement = %v, want > 0", rec.ExpectedImprovement)
	}
}

func TestPlacementOptimizer_MinNeverDecreasesAcrossRounds(t *testing.T) {
	cells := make([]HeatmapCell, 64)
	for i := range cells {
		cells[i] = HeatmapCell{Strength: -88, Confidence: 1}
	}
	grid := &HeatmapGrid{Extent: Extent{MaxX: 16, MaxY: 16}, Cols: 8, Rows: 8, Cells: cells}
	gaps := DetectGaps(grid, -80)

	candidates := []model.CandidateSite{
		{ID: "a", Position: model.Position{X: 4, Y: 4}, Feasible: true},
		{ID: "b", Position: model.Position{X: 12, Y: 12}, Feasible: true},
		{ID: "c", Position: model.Position{X: 4, Y: 12}, Feasible: true},
		{ID: "d", Position: model.Position{X: 12, Y: 4}, Feasible: true},
	}

	result := NewPlacementOptimizer().Optimize(grid, gaps, candidates, 4)
	if len(result.Recommendations) == 0 {
		t.Fatalf("expected at least one recommendation")
	}
	for i, rec := range result.Recommendations {
		if rec.ExpectedImprovement < 0 {
			t.Errorf("round %d improvement = %v, want >= 0", i, rec.ExpectedImprovement)
		}
	}
	if result.FinalMinStrength < -88 {
		t.Errorf("final minimum %v fell below the starting minimum", result.FinalMinStrength)
	}
}

func TestPlacementOptimizer_InfeasibleSitesExcluded(t *testing.T) {
	grid := weakCornerGrid()
	gaps := DetectGaps(grid, -80)

	candidates := []model.CandidateSite{
		{ID: "perfect-but-infeasible", Position: model.Position{X: 0.5, Y: 0.5}, Feasible: false},
		{ID: "ok", Position: model.Position{X: 1.5, Y: 1.5}, Feasible: true},
	}
	result := NewPlacementOptimizer().Optimize(grid, gaps, candidates, 1)
	if len(result.Recommendations) != 1 || result.Recommendations[0].Site.ID != "ok" {
		t.Fatalf("result = %+v, want the feasible site only", result.Recommendations)
	}
}

func TestPlacementOptimizer_EarlyStopReported(t *testing.T) {
	grid := weakCornerGrid()
	gaps := DetectGaps(grid, -80)

	// A candidate too far away to lift the weak corner at all.
	candidates := []model.CandidateSite{
		{ID: "useless", Position: model.Position{X: 1000, Y: 1000}, Feasible: true},
	}
	result := NewPlacementOptimizer().Optimize(grid, gaps, candidates, 3)
	if len(result.Recommendations) != 0 {
		t.Fatalf("got %d recommendations, want none from a useless pool", len(result.Recommendations))
	}
	if !result.Exhausted {
		t.Errorf("early stop must be reported via Exhausted")
	}
}

func TestPlacementOptimizer_TieBreakLowestIndex(t *testing.T) {
	grid := weakCornerGrid()
	gaps := DetectGaps(grid, -80)

	// Two candidates symmetric around the weak cell: identical scores.
	candidates := []model.CandidateSite{
		{ID: "first", Position: model.Position{X: 1.5, Y: 0.5}, Feasible: true},
		{ID: "second", Position: model.Position{X: 0.5, Y: 1.5}, Feasible: true},
	}
	result := NewPlacementOptimizer().Optimize(grid, gaps, candidates, 1)
	if len(result.Recommendations) != 1 || result.Recommendations[0].Site.ID != "first" {
		t.Fatalf("result = %+v, want the lower-index candidate on a tie", result.Recommendations)
	}
}

func TestPlacementOptimizer_CallerGridUntouched(t *testing.T) {
	grid := weakCornerGrid()
	gaps := DetectGaps(grid, -80)
	candidates := []model.CandidateSite{
		{ID: "near", Position: model.Position{X: 1, Y: 1}, Feasible: true},
	}

	before := grid.Cell(0, 0).Strength
	NewPlacementOptimizer().Optimize(grid, gaps, candidates, 1)
	if grid.Cell(0, 0).Strength != before {
		t.Errorf("optimizer mutated the caller's grid")
	}
}
