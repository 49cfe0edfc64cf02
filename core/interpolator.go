package core

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/signalsfoundry/coverage-mapper/internal/logging"
)

// Strength clamp range for stored estimates, dBm. Values outside are
// clamped, not rejected.
const (
	MinStrengthDBm = -100.0
	MaxStrengthDBm = -20.0
)

// NoDataStrength marks grid cells beyond the influence of every
// anchor. It sits well outside the valid clamp range so it can never
// collide with a real estimate; such cells always carry confidence 0.
const NoDataStrength = -200.0

// nearAnchorDistance is the radius within which a cell takes an
// anchor's exact value instead of a singular IDW weight.
const nearAnchorDistance = 1.0

// Anchor is a discrete signal sample with a known position.
type Anchor struct {
	SourceID string
	Position Point
	Strength float64
}

// HeatmapCell is one grid cell of the interpolated field.
type HeatmapCell struct {
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`
}

// HeatmapGrid is the continuous coverage field sampled at a fixed
// resolution over a floorplan extent. Grids are replaced wholesale on
// every recompute and never mutated in place, so a reader holding one
// can never observe a torn update.
type HeatmapGrid struct {
	Extent Extent
	Cols   int
	Rows   int
	Cells  []HeatmapCell // row-major
}

// Cell returns the cell at (col, row).
func (g *HeatmapGrid) Cell(col, row int) HeatmapCell {
	return g.Cells[row*g.Cols+col]
}

// CellCenter returns the floorplan position of a cell's centre.
func (g *HeatmapGrid) CellCenter(col, row int) Point {
	cw := g.Extent.Width() / float64(g.Cols)
	ch := g.Extent.Height() / float64(g.Rows)
	return Point{
		X: g.Extent.MinX + (float64(col)+0.5)*cw,
		Y: g.Extent.MinY + (float64(row)+0.5)*ch,
	}
}

// Clone deep-copies the grid so a round of placement simulation can
// work on its own snapshot.
func (g *HeatmapGrid) Clone() *HeatmapGrid {
	out := *g
	out.Cells = append([]HeatmapCell(nil), g.Cells...)
	return &out
}

// ClampRecorder receives the number of cells whose interpolated
// strength fell outside the valid range and was clamped.
type ClampRecorder interface {
	AddStrengthClamps(n int)
}

// Interpolator builds heatmap grids from anchor samples using inverse
// distance weighting with exponent 2.
type Interpolator struct {
	// Radius normalises distances in the weight term
	// 1/(d/Radius)^2. Metres.
	Radius float64

	// Cutoff is the distance beyond which an anchor has no
	// influence. Cells outside every anchor's cutoff are "no data".
	Cutoff float64

	// Log receives clamp diagnostics; nil disables them.
	Log logging.Logger

	// Clamps receives clamp counts; nil disables them.
	Clamps ClampRecorder
}

// NewInterpolator returns an interpolator with radius and cutoff
// suited to a family home or small office.
func NewInterpolator() Interpolator {
	return Interpolator{Radius: 5, Cutoff: 30}
}

// Interpolate produces the coverage field for the given extent and
// grid resolution. Zero anchors is not an error: the whole grid comes
// back as "no data".
func (ip Interpolator) Interpolate(ctx context.Context, anchors []Anchor, extent Extent, cols, rows int) *HeatmapGrid {
	grid := &HeatmapGrid{
		Extent: extent,
		Cols:   cols,
		Rows:   rows,
		Cells:  make([]HeatmapCell, cols*rows),
	}

	radius := ip.Radius
	if radius <= 0 {
		radius = 5
	}
	cutoff := ip.Cutoff
	if cutoff <= 0 {
		cutoff = math.Inf(1)
	}

	clamped := 0
	weights := make([]float64, 0, len(anchors))
	values := make([]float64, 0, len(anchors))

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			center := grid.CellCenter(col, row)
			weights = weights[:0]
			values = values[:0]

			exact := false
			var cell HeatmapCell
			nearest := math.Inf(1)

			for _, a := range anchors {
				d := center.DistanceTo(a.Position)
				if d < nearest {
					nearest = d
				}
				if d < nearAnchorDistance {
					// Take the anchor's value directly rather
					// than letting the weight blow up.
					cell.Strength = a.Strength
					exact = true
					break
				}
				if d > cutoff {
					continue
				}
				norm := d / radius
				weights = append(weights, 1/(norm*norm))
				values = append(values, a.Strength)
			}

			switch {
			case exact:
				cell.Confidence = 1
			case len(weights) == 0:
				cell.Strength = NoDataStrength
				cell.Confidence = 0
			default:
				num := 0.0
				for i, w := range weights {
					num += w * values[i]
				}
				cell.Strength = num / floats.Sum(weights)
				// Confidence falls off linearly with the
				// distance to the nearest contributing anchor.
				cell.Confidence = 1 - nearest/cutoff
				if cell.Confidence < 0 {
					cell.Confidence = 0
				}
			}

			if cell.Confidence > 0 {
				if s := clampStrength(cell.Strength); s != cell.Strength {
					cell.Strength = s
					clamped++
				}
			}
			grid.Cells[row*cols+col] = cell
		}
	}

	if clamped > 0 {
		if ip.Log != nil {
			ip.Log.Debug(ctx, "clamped out-of-range strength estimates",
				logging.Int("cells", clamped))
		}
		if ip.Clamps != nil {
			ip.Clamps.AddStrengthClamps(clamped)
		}
	}
	return grid
}

func clampStrength(s float64) float64 {
	if s < MinStrengthDBm {
		return MinStrengthDBm
	}
	if s > MaxStrengthDBm {
		return MaxStrengthDBm
	}
	return s
}
