package raster

import "math"

// Rect is an inclusive pixel rectangle. It is empty when X1 < X0 or Y1 < Y0.
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Empty reports whether the rectangle contains no pixel.
func (r Rect) Empty() bool {
	return r.X1 < r.X0 || r.Y1 < r.Y0
}

// Contains reports whether the pixel lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

// Intersect returns the overlap of r and o.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		X0: max(r.X0, o.X0),
		Y0: max(r.Y0, o.Y0),
		X1: min(r.X1, o.X1),
		Y1: min(r.Y1, o.Y1),
	}
}

// AlignOut rounds the rectangle outward to multiples of block, which must
// be a power of two.
func (r Rect) AlignOut(block int) Rect {
	mask := block - 1
	return Rect{
		X0: r.X0 &^ mask,
		Y0: r.Y0 &^ mask,
		X1: r.X1 | mask,
		Y1: r.Y1 | mask,
	}
}

// Bounds returns the bounding box of the triangle vertices.
func Bounds(v [3]Point) Rect {
	r := Rect{
		X0: int(min(v[0].X, v[1].X, v[2].X)),
		Y0: int(min(v[0].Y, v[1].Y, v[2].Y)),
		X1: int(max(v[0].X, v[1].X, v[2].X)),
		Y1: int(max(v[0].Y, v[1].Y, v[2].Y)),
	}
	return r
}

// Framebuffer returns the rectangle covering a width x height target.
func Framebuffer(width, height int) Rect {
	return Rect{X0: 0, Y0: 0, X1: width - 1, Y1: height - 1}
}

// screenLimit bounds projected coordinates so that edge products cannot
// overflow int64.
const screenLimit = 1 << 24

// ToScreen maps normalized device coordinates to integer screen positions
// for a width x height viewport. ndc (-1,-1) lands on (0,0) and (1,1) on
// (width,height).
func ToScreen(ndcX, ndcY float32, width, height int) Point {
	sx := (float64(ndcX) + 1) * 0.5 * float64(width)
	sy := (float64(ndcY) + 1) * 0.5 * float64(height)
	return Point{X: roundClamp(sx), Y: roundClamp(sy)}
}

func roundClamp(v float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Floor(v + 0.5)
	if v > screenLimit {
		return screenLimit
	}
	if v < -screenLimit {
		return -screenLimit
	}
	return int64(v)
}
