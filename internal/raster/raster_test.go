package raster

import (
	"math/rand/v2"
	"testing"
)

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func randPoint(r *rand.Rand, span int64) Point {
	return Point{X: r.Int64N(2*span) - span, Y: r.Int64N(2*span) - span}
}

func TestNewEdgeEquation(t *testing.T) {
	tests := []struct {
		name   string
		v0, v1 Point
		want   EdgeEquation
	}{
		{"horizontal right", Point{0, 0}, Point{4, 0}, EdgeEquation{A: 0, B: 4, C: 0, Tie: true}},
		{"horizontal left", Point{4, 0}, Point{0, 0}, EdgeEquation{A: 0, B: -4, C: 0, Tie: false}},
		{"vertical down", Point{0, 4}, Point{0, 0}, EdgeEquation{A: 4, B: 0, C: 0, Tie: true}},
		{"diagonal", Point{4, 0}, Point{0, 4}, EdgeEquation{A: -4, B: -4, C: 16, Tie: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewEdgeEquation(tt.v0, tt.v1); got != tt.want {
				t.Errorf("NewEdgeEquation(%v, %v) = %+v, want %+v", tt.v0, tt.v1, got, tt.want)
			}
		})
	}
}

func TestEdgePassesThroughEndpoints(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 1000 {
		v0, v1 := randPoint(r, 5000), randPoint(r, 5000)
		e := NewEdgeEquation(v0, v1)
		if e.Evaluate(v0.X, v0.Y) != 0 || e.Evaluate(v1.X, v1.Y) != 0 {
			t.Fatalf("edge %v->%v does not pass through its endpoints: %+v", v0, v1, e)
		}
	}
}

func TestEdgeConsistencySharedEdge(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for range 500 {
		v0, v1 := randPoint(r, 200), randPoint(r, 200)
		if v0 == v1 {
			continue
		}
		ea := NewEdgeEquation(v0, v1)
		eb := NewEdgeEquation(v1, v0)

		dx, dy := v1.X-v0.X, v1.Y-v0.Y
		g := gcd(dx, dy)
		sx, sy := dx/g, dy/g
		for k := int64(0); k <= g; k++ {
			x, y := v0.X+k*sx, v0.Y+k*sy
			if ea.Test(x, y) == eb.Test(x, y) {
				t.Fatalf("point (%d,%d) on edge %v-%v: both tests = %v", x, y, v0, v1, ea.Test(x, y))
			}
		}
	}
}

func TestAdjacentTrianglesShadeOnce(t *testing.T) {
	// Quad split along its diagonal, both halves counter-clockwise.
	a := NewTriangle(Point{0, 0}, Point{4, 0}, Point{0, 4})
	b := NewTriangle(Point{4, 0}, Point{4, 4}, Point{0, 4})

	for y := int64(0); y < 4; y++ {
		for x := int64(0); x < 4; x++ {
			ina, inb := a.Contains(x, y), b.Contains(x, y)
			if ina == inb {
				t.Errorf("pixel (%d,%d): in A = %v, in B = %v", x, y, ina, inb)
			}
		}
	}
}

func TestBackFaceSymmetry(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	for range 1000 {
		v0, v1, v2 := randPoint(r, 1000), randPoint(r, 1000), randPoint(r, 1000)
		fwd := NewTriangle(v0, v1, v2)
		rev := NewTriangle(v0, v2, v1)
		if fwd.Area2() != -rev.Area2() {
			t.Fatalf("Area2 %d vs reversed %d", fwd.Area2(), rev.Area2())
		}
		if fwd.Area2() != 0 && fwd.BackFacing() == rev.BackFacing() {
			t.Fatalf("triangle %v %v %v: facing unchanged by reversal", v0, v1, v2)
		}
	}
}

func TestWeightsSumToArea(t *testing.T) {
	tri := NewTriangle(Point{1, 2}, Point{30, 5}, Point{7, 40})
	for y := int64(-5); y < 50; y += 3 {
		for x := int64(-5); x < 50; x += 3 {
			w0, w1, w2 := tri.Weights(x, y)
			if w0+w1+w2 != tri.Area2() {
				t.Fatalf("Weights(%d,%d) sum = %d, want %d", x, y, w0+w1+w2, tri.Area2())
			}
		}
	}
	w0, w1, w2 := tri.Weights(1, 2)
	if w0 != tri.Area2() || w1 != 0 || w2 != 0 {
		t.Errorf("Weights at v0 = (%d,%d,%d), want (%d,0,0)", w0, w1, w2, tri.Area2())
	}
}

func TestBlockClassificationSoundness(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 8))
	const block = 8
	for range 300 {
		tri := NewTriangle(randPoint(r, 64), randPoint(r, 64), randPoint(r, 64))
		if tri.BackFacing() {
			tri = NewTriangle(tri.Verts[0], tri.Verts[2], tri.Verts[1])
		}
		for by := int64(-64); by < 64; by += block {
			for bx := int64(-64); bx < 64; bx += block {
				cov := tri.ClassifyBlock(bx, by, bx+block-1, by+block-1)
				if cov == BlockPartial {
					continue
				}
				for y := by; y < by+block; y++ {
					for x := bx; x < bx+block; x++ {
						in := tri.Contains(x, y)
						if cov == BlockInside && !in {
							t.Fatalf("block (%d,%d) classified inside but pixel (%d,%d) fails", bx, by, x, y)
						}
						if cov == BlockOutside && in {
							t.Fatalf("block (%d,%d) classified outside but pixel (%d,%d) passes", bx, by, x, y)
						}
					}
				}
			}
		}
	}
}

func TestRect(t *testing.T) {
	r := Rect{X0: 3, Y0: 9, X1: 12, Y1: 17}

	if got := r.AlignOut(8); got != (Rect{X0: 0, Y0: 8, X1: 15, Y1: 23}) {
		t.Errorf("AlignOut(8) = %+v", got)
	}
	if got := r.Intersect(Framebuffer(10, 10)); got != (Rect{X0: 3, Y0: 9, X1: 9, Y1: 9}) {
		t.Errorf("Intersect() = %+v", got)
	}
	if !r.Intersect(Rect{X0: 20, Y0: 0, X1: 30, Y1: 30}).Empty() {
		t.Error("disjoint rectangles should intersect to empty")
	}
	if !r.Contains(3, 17) || r.Contains(2, 17) {
		t.Error("Contains() boundary handling is wrong")
	}
}

func TestToScreen(t *testing.T) {
	tests := []struct {
		x, y float32
		want Point
	}{
		{-1, -1, Point{0, 0}},
		{1, -1, Point{4, 0}},
		{1, 1, Point{4, 4}},
		{0, 0, Point{2, 2}},
		{1e30, -1e30, Point{screenLimit, -screenLimit}},
	}
	for _, tt := range tests {
		if got := ToScreen(tt.x, tt.y, 4, 4); got != tt.want {
			t.Errorf("ToScreen(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestCoverageString(t *testing.T) {
	if BlockInside.String() != "inside" || BlockOutside.String() != "outside" || BlockPartial.String() != "partial" {
		t.Error("unexpected Coverage names")
	}
}
