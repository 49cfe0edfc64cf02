package core

// Band is a discrete signal-quality label. Bands are ordered from
// worst to best and partition the whole strength axis: every finite
// strength maps to exactly one band.
type Band int

const (
	BandVeryPoor Band = iota
	BandPoor
	BandFair
	BandGood
	BandExcellent
)

// String returns the band's display name.
func (b Band) String() string {
	switch b {
	case BandVeryPoor:
		return "very-poor"
	case BandPoor:
		return "poor"
	case BandFair:
		return "fair"
	case BandGood:
		return "good"
	case BandExcellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// BandThresholds are the four ascending cut points separating the five
// bands. A strength below Cuts[0] is very-poor; at or above Cuts[3] it
// is excellent. Thresholds are fixed at call time, never derived from
// the grid, so band boundaries cannot drift between recomputes.
type BandThresholds struct {
	Cuts [4]float64
}

// DefaultBandThresholds mirror common Wi-Fi survey conventions.
func DefaultBandThresholds() BandThresholds {
	return BandThresholds{Cuts: [4]float64{-85, -75, -67, -55}}
}

// Classify maps a strength to its band.
func (t BandThresholds) Classify(strength float64) Band {
	switch {
	case strength < t.Cuts[0]:
		return BandVeryPoor
	case strength < t.Cuts[1]:
		return BandPoor
	case strength < t.Cuts[2]:
		return BandFair
	case strength < t.Cuts[3]:
		return BandGood
	default:
		return BandExcellent
	}
}

// BandGrid assigns a band per cell. Cells without data carry HasData
// false and no band.
type BandGrid struct {
	Cols, Rows int
	Bands      []Band // row-major
	HasData    []bool
}

// ContourSegment is one cell-edge piece of a boundary between two
// adjacent bands. Segments are raw cell edges; smoothing is a renderer
// concern.
type ContourSegment struct {
	From, To Point
	Lower    Band // band on the weaker side of the edge
	Upper    Band // band on the stronger side
}

// ClassifyGrid labels every data-carrying cell of the field.
func ClassifyGrid(grid *HeatmapGrid, thresholds BandThresholds) *BandGrid {
	out := &BandGrid{
		Cols:    grid.Cols,
		Rows:    grid.Rows,
		Bands:   make([]Band, len(grid.Cells)),
		HasData: make([]bool, len(grid.Cells)),
	}
	for i, cell := range grid.Cells {
		if cell.Confidence == 0 {
			continue
		}
		out.Bands[i] = thresholds.Classify(cell.Strength)
		out.HasData[i] = true
	}
	return out
}

// ExtractContours walks the grid and emits the shared edge of every
// pair of adjacent cells that fall in different bands. Edges against
// no-data cells are skipped: absence of data is not a band boundary.
func ExtractContours(grid *HeatmapGrid, bands *BandGrid) []ContourSegment {
	var segments []ContourSegment
	cw := grid.Extent.Width() / float64(grid.Cols)
	ch := grid.Extent.Height() / float64(grid.Rows)

	at := func(col, row int) int { return row*bands.Cols + col }

	for row := 0; row < bands.Rows; row++ {
		for col := 0; col < bands.Cols; col++ {
			i := at(col, row)
			if !bands.HasData[i] {
				continue
			}

			// Right neighbour: vertical edge between the cells.
			if col+1 < bands.Cols {
				j := at(col+1, row)
				if bands.HasData[j] && bands.Bands[i] != bands.Bands[j] {
					x := grid.Extent.MinX + float64(col+1)*cw
					y0 := grid.Extent.MinY + float64(row)*ch
					lo, hi := orderBands(bands.Bands[i], bands.Bands[j])
					segments = append(segments, ContourSegment{
						From:  Point{X: x, Y: y0},
						To:    Point{X: x, Y: y0 + ch},
						Lower: lo,
						Upper: hi,
					})
				}
			}

			// Top neighbour: horizontal edge.
			if row+1 < bands.Rows {
				j := at(col, row+1)
				if bands.HasData[j] && bands.Bands[i] != bands.Bands[j] {
					y := grid.Extent.MinY + float64(row+1)*ch
					x0 := grid.Extent.MinX + float64(col)*cw
					lo, hi := orderBands(bands.Bands[i], bands.Bands[j])
					segments = append(segments, ContourSegment{
						From:  Point{X: x0, Y: y},
						To:    Point{X: x0 + cw, Y: y},
						Lower: lo,
						Upper: hi,
					})
				}
			}
		}
	}
	return segments
}

func orderBands(a, b Band) (lower, upper Band) {
	if a < b {
		return a, b
	}
	return b, a
}
