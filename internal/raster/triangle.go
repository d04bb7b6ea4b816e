package raster

// Coverage classifies a block of pixels against a triangle.
type Coverage uint8

const (
	// BlockOutside means no pixel of the block is inside the triangle.
	BlockOutside Coverage = iota
	// BlockPartial means pixels must be tested individually.
	BlockPartial
	// BlockInside means every pixel of the block is inside the triangle.
	BlockInside
)

// String returns the coverage name.
func (c Coverage) String() string {
	switch c {
	case BlockOutside:
		return "outside"
	case BlockPartial:
		return "partial"
	case BlockInside:
		return "inside"
	default:
		return "unknown"
	}
}

// Triangle holds the three edge equations of a screen-space triangle.
// Edges[0] is v0->v1, Edges[1] is v1->v2 and Edges[2] is v2->v0.
type Triangle struct {
	Verts [3]Point
	Edges [3]EdgeEquation
}

// NewTriangle builds the edge equations for v0, v1, v2.
func NewTriangle(v0, v1, v2 Point) Triangle {
	return Triangle{
		Verts: [3]Point{v0, v1, v2},
		Edges: [3]EdgeEquation{
			NewEdgeEquation(v0, v1),
			NewEdgeEquation(v1, v2),
			NewEdgeEquation(v2, v0),
		},
	}
}

// Area2 returns the sum of the three edge constants, which is twice the
// signed area of the triangle. It is positive for front faces.
func (t *Triangle) Area2() int64 {
	return t.Edges[0].C + t.Edges[1].C + t.Edges[2].C
}

// BackFacing reports whether the winding is clockwise.
func (t *Triangle) BackFacing() bool {
	return t.Area2() < 0
}

// Contains runs the three half-plane tests for a pixel.
func (t *Triangle) Contains(x, y int64) bool {
	return t.Edges[0].Test(x, y) && t.Edges[1].Test(x, y) && t.Edges[2].Test(x, y)
}

// Weights returns the unnormalized barycentric weights of (x, y) for v0, v1
// and v2. They sum to Area2.
func (t *Triangle) Weights(x, y int64) (w0, w1, w2 int64) {
	return t.Edges[1].Evaluate(x, y), t.Edges[2].Evaluate(x, y), t.Edges[0].Evaluate(x, y)
}

// ClassifyBlock tests the four corners of the inclusive pixel rectangle
// [x0,x1] x [y0,y1] against all three edges.
func (t *Triangle) ClassifyBlock(x0, y0, x1, y1 int64) Coverage {
	inside := true
	for i := range t.Edges {
		e := &t.Edges[i]
		pass := 0
		if e.Test(x0, y0) {
			pass++
		}
		if e.Test(x1, y0) {
			pass++
		}
		if e.Test(x0, y1) {
			pass++
		}
		if e.Test(x1, y1) {
			pass++
		}
		if pass == 0 {
			return BlockOutside
		}
		if pass != 4 {
			inside = false
		}
	}
	if inside {
		return BlockInside
	}
	return BlockPartial
}
