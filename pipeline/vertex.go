package pipeline

import "golang.org/x/image/math/f32"

// Vertex is one CPU-side vertex record. Attributes a source does not
// provide are zero, except Color which defaults to opaque white.
type Vertex struct {
	Position f32.Vec3
	Normal   f32.Vec3
	Texcoord f32.Vec2
	Tangent  f32.Vec3
	Binormal f32.Vec3
	Color    f32.Vec4
}

// Vertex shader input locations. A vertex shader reads attribute i from
// @location(i).
const (
	LocationPosition = iota
	LocationNormal
	LocationTexcoord
	LocationTangent
	LocationBinormal
	LocationColor
)

var white = f32.Vec4{1, 1, 1, 1}

// Floats returns the attribute stored at a shader input location, or nil
// for locations beyond LocationColor.
func (v *Vertex) Floats(location int) []float32 {
	switch location {
	case LocationPosition:
		return v.Position[:]
	case LocationNormal:
		return v.Normal[:]
	case LocationTexcoord:
		return v.Texcoord[:]
	case LocationTangent:
		return v.Tangent[:]
	case LocationBinormal:
		return v.Binormal[:]
	case LocationColor:
		return v.Color[:]
	}
	return nil
}
