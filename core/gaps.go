package core

// GapCell is one under-covered grid cell, annotated with the estimate
// that put it below threshold.
type GapCell struct {
	Col, Row   int
	Center     Point
	Strength   float64
	Confidence float64
}

// DetectGaps returns every cell whose estimated strength sits below
// the minimum acceptable threshold.
//
// Cells with confidence 0 are excluded: "unknown" is not the same as
// "weak", and surfacing unsurveyed corners as coverage gaps would
// trigger remediation for places that may be fine.
func DetectGaps(grid *HeatmapGrid, minAcceptable float64) []GapCell {
	var gaps []GapCell
	for row := 0; row < grid.Rows; row++ {
		for col := 0; col < grid.Cols; col++ {
			cell := grid.Cell(col, row)
			if cell.Confidence == 0 {
				continue
			}
			if cell.Strength >= minAcceptable {
				continue
			}
			gaps = append(gaps, GapCell{
				Col:        col,
				Row:        row,
				Center:     grid.CellCenter(col, row),
				Strength:   cell.Strength,
				Confidence: cell.Confidence,
			})
		}
	}
	return gaps
}
