package core

import (
	"math"

	"github.com/signalsfoundry/coverage-mapper/model"
)

// Point is a 2D floorplan coordinate in metres.
type Point struct {
	X, Y float64
}

// PointFromPosition converts the shared model position type.
func PointFromPosition(p model.Position) Point {
	return Point{X: p.X, Y: p.Y}
}

// Position converts back to the shared model type.
func (p Point) Position() model.Position {
	return model.Position{X: p.X, Y: p.Y}
}

// DistanceTo returns the straight-line distance between two points.
func (p Point) DistanceTo(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Sub returns p - other.
func (p Point) Sub(other Point) Point {
	return Point{X: p.X - other.X, Y: p.Y - other.Y}
}

// Dot returns the dot product of two points treated as vectors.
func (p Point) Dot(other Point) float64 {
	return p.X*other.X + p.Y*other.Y
}

// Norm returns the Euclidean norm of the point treated as a vector.
func (p Point) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

// Extent is the axis-aligned bounding box of the surveyed floorplan.
type Extent struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Width returns the horizontal span in metres.
func (e Extent) Width() float64 { return e.MaxX - e.MinX }

// Height returns the vertical span in metres.
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Contains reports whether the point lies inside the extent,
// boundary included.
func (e Extent) Contains(p Point) bool {
	return p.X >= e.MinX && p.X <= e.MaxX && p.Y >= e.MinY && p.Y <= e.MaxY
}
