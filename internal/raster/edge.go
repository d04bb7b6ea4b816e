// Package raster implements the integer half-plane triangle rasterizer used
// to replay draw calls on the CPU.
//
// All coordinates are integer screen-space positions with the origin at the
// bottom-left pixel. Every classification is exact integer arithmetic, so
// the same vertices always produce the same pixel set.
package raster

// Point is an integer screen-space position.
type Point struct {
	X, Y int64
}

// EdgeEquation is the half-plane a*x + b*y + c for the directed edge v0->v1.
// Points left of the edge (for counter-clockwise triangles) are positive.
type EdgeEquation struct {
	A, B, C int64

	// Tie decides ownership of points exactly on the edge. Two triangles that
	// share the edge in opposite directions get opposite Tie values, so each
	// boundary point belongs to exactly one of them.
	Tie bool
}

// NewEdgeEquation builds the edge equation through v0 and v1.
func NewEdgeEquation(v0, v1 Point) EdgeEquation {
	a := v0.Y - v1.Y
	b := v1.X - v0.X
	// c = -(a*(x0+x1) + b*(y0+y1)) / 2, the line through the midpoint,
	// which simplifies to the exact integer below.
	c := v0.X*v1.Y - v1.X*v0.Y

	tie := b > 0
	if a != 0 {
		tie = a > 0
	}
	return EdgeEquation{A: a, B: b, C: c, Tie: tie}
}

// Evaluate returns a*x + b*y + c.
func (e EdgeEquation) Evaluate(x, y int64) int64 {
	return e.A*x + e.B*y + e.C
}

// Test reports whether (x, y) lies inside the half-plane.
func (e EdgeEquation) Test(x, y int64) bool {
	return e.TestValue(e.Evaluate(x, y))
}

// TestValue applies the inside rule to an already evaluated value.
func (e EdgeEquation) TestValue(v int64) bool {
	return v > 0 || (v == 0 && e.Tie)
}
