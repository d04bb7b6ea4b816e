package pipeline

import (
	"fmt"

	"golang.org/x/image/math/f32"
)

// GeometryKind selects a built-in procedural mesh.
type GeometryKind uint8

const (
	// GeometryRectangle is a screen-aligned quad in the 4-float layout.
	GeometryRectangle GeometryKind = iota
	// GeometryTriangle is a single triangle in the 18-float layout.
	GeometryTriangle
	// GeometryPlane is a quad facing +Z in the 18-float layout.
	GeometryPlane
	// GeometryCube is an axis-aligned box in the 18-float layout.
	GeometryCube
)

// Vertex layouts of generated geometry, in floats per vertex.
const (
	// RectangleStride is position.xy + texcoord.
	RectangleStride = 4
	// RichStride is position, normal, texcoord, tangent, binormal and color.
	RichStride = 18
)

// String returns the geometry name.
func (k GeometryKind) String() string {
	switch k {
	case GeometryRectangle:
		return "rectangle"
	case GeometryTriangle:
		return "triangle"
	case GeometryPlane:
		return "plane"
	case GeometryCube:
		return "cube"
	default:
		return fmt.Sprintf("GeometryKind(%d)", k)
	}
}

// Stride returns the number of floats per generated vertex.
func (k GeometryKind) Stride() int {
	if k == GeometryRectangle {
		return RectangleStride
	}
	return RichStride
}

// Geometry is a built-in mesh. Sizes are full extents in object space,
// centered on Position.
type Geometry struct {
	Kind     GeometryKind
	Size     f32.Vec3
	Position f32.Vec3
}

// NewGeometry returns geometry of the given kind with size 2 along every
// axis, which covers the whole viewport for the flat kinds.
func NewGeometry(kind GeometryKind) *Geometry {
	return &Geometry{Kind: kind, Size: f32.Vec3{2, 2, 2}}
}

// Data generates the raw vertex buffer in the kind's layout. Degenerate
// sizes still generate vertices; the rasterizer skips zero-area triangles.
func (g *Geometry) Data() []float32 {
	hx, hy, hz := g.Size[0]/2, g.Size[1]/2, g.Size[2]/2
	switch g.Kind {
	case GeometryRectangle:
		x, y := g.Position[0], g.Position[1]
		quad := [4][4]float32{
			{x - hx, y - hy, 0, 0},
			{x + hx, y - hy, 1, 0},
			{x + hx, y + hy, 1, 1},
			{x - hx, y + hy, 0, 1},
		}
		out := make([]float32, 0, 6*RectangleStride)
		for _, i := range quadIndices {
			out = append(out, quad[i][:]...)
		}
		return out
	case GeometryTriangle:
		n, t, b := f32.Vec3{0, 0, 1}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 1, 0}
		out := make([]float32, 0, 3*RichStride)
		out = g.rich(out, f32.Vec3{-hx, -hy, 0}, n, f32.Vec2{0, 0}, t, b)
		out = g.rich(out, f32.Vec3{hx, -hy, 0}, n, f32.Vec2{1, 0}, t, b)
		out = g.rich(out, f32.Vec3{0, hy, 0}, n, f32.Vec2{0.5, 1}, t, b)
		return out
	case GeometryPlane:
		return g.face(make([]float32, 0, 6*RichStride),
			f32.Vec3{0, 0, 1}, f32.Vec3{hx, 0, 0}, f32.Vec3{0, hy, 0}, f32.Vec3{})
	case GeometryCube:
		out := make([]float32, 0, 36*RichStride)
		for _, f := range cubeFaces {
			u := f32.Vec3{f.u[0] * hx, f.u[1] * hy, f.u[2] * hz}
			v := f32.Vec3{f.v[0] * hx, f.v[1] * hy, f.v[2] * hz}
			c := f32.Vec3{f.n[0] * hx, f.n[1] * hy, f.n[2] * hz}
			out = g.face(out, f.n, u, v, c)
		}
		return out
	}
	return nil
}

// quadIndices splits a quad's corners into two counter-clockwise triangles.
var quadIndices = [6]int{0, 1, 2, 0, 2, 3}

// cubeFaces lists each face's outward normal and in-plane axes, chosen so
// that u x v == n and the face winds counter-clockwise from outside.
var cubeFaces = [6]struct{ n, u, v f32.Vec3 }{
	{f32.Vec3{0, 0, 1}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{0, 0, -1}, f32.Vec3{-1, 0, 0}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{1, 0, 0}, f32.Vec3{0, 0, -1}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{-1, 0, 0}, f32.Vec3{0, 0, 1}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{0, 1, 0}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 0, -1}},
	{f32.Vec3{0, -1, 0}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 0, 1}},
}

// face appends a quad centered on c spanning c +/- u +/- v.
func (g *Geometry) face(out []float32, n, u, v, c f32.Vec3) []float32 {
	var corners [4]f32.Vec3
	for i, s := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
		for k := range 3 {
			corners[i][k] = c[k] + s[0]*u[k] + s[1]*v[k]
		}
	}
	uvs := [4]f32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	t, b := unit(u), unit(v)
	for _, i := range quadIndices {
		out = g.rich(out, corners[i], n, uvs[i], t, b)
	}
	return out
}

func (g *Geometry) rich(out []float32, p, n f32.Vec3, uv f32.Vec2, t, b f32.Vec3) []float32 {
	out = append(out, p[0]+g.Position[0], p[1]+g.Position[1], p[2]+g.Position[2])
	out = append(out, n[:]...)
	out = append(out, uv[:]...)
	out = append(out, t[:]...)
	out = append(out, b[:]...)
	return append(out, white[:]...)
}

func unit(v f32.Vec3) f32.Vec3 {
	var out f32.Vec3
	for i, c := range v {
		switch {
		case c > 0:
			out[i] = 1
		case c < 0:
			out[i] = -1
		}
	}
	return out
}

// DecodeVertex reads vertex i of a raw buffer in the kind's layout.
// It reports false when the buffer is too short.
func DecodeVertex(kind GeometryKind, data []float32, i int) (Vertex, bool) {
	stride := kind.Stride()
	if i < 0 || (i+1)*stride > len(data) {
		return Vertex{}, false
	}
	d := data[i*stride : (i+1)*stride]
	if stride == RectangleStride {
		return Vertex{
			Position: f32.Vec3{d[0], d[1], 0},
			Texcoord: f32.Vec2{d[2], d[3]},
			Color:    white,
		}, true
	}
	var v Vertex
	copy(v.Position[:], d[0:3])
	copy(v.Normal[:], d[3:6])
	copy(v.Texcoord[:], d[6:8])
	copy(v.Tangent[:], d[8:11])
	copy(v.Binormal[:], d[11:14])
	copy(v.Color[:], d[14:18])
	return v, true
}
