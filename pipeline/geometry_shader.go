package pipeline

import "github.com/gogpu/shaderdbg/shader"

// ShadedVertex is a vertex after the vertex stage: a clip-space position
// and the located varyings it wrote.
type ShadedVertex struct {
	Position  [4]float32
	Locations [shader.MaxLocations]shader.Value
	// Mask has bit i set when Locations[i] was written.
	Mask uint32
}

// GeometryShader expands one input triangle into triangle strips.
type GeometryShader interface {
	Process(in [3]ShadedVertex, primitiveID int) ([][]ShadedVertex, error)
}

// GeometryFunc adapts a function to GeometryShader.
type GeometryFunc func(in [3]ShadedVertex, primitiveID int) ([][]ShadedVertex, error)

// Process calls f.
func (f GeometryFunc) Process(in [3]ShadedVertex, primitiveID int) ([][]ShadedVertex, error) {
	return f(in, primitiveID)
}

// StripIndices returns the corner indices of the n-2 triangles of an
// n-vertex strip. Odd triangles swap their last two corners so every
// triangle keeps the winding of the first.
func StripIndices(n int) [][3]int {
	if n < 3 {
		return nil
	}
	out := make([][3]int, 0, n-2)
	for i := 0; i+2 < n; i++ {
		if i%2 == 0 {
			out = append(out, [3]int{i, i + 1, i + 2})
		} else {
			out = append(out, [3]int{i, i + 2, i + 1})
		}
	}
	return out
}

// ExpandStrip turns a strip of shaded vertices into triangles.
func ExpandStrip(strip []ShadedVertex) [][3]ShadedVertex {
	idx := StripIndices(len(strip))
	out := make([][3]ShadedVertex, len(idx))
	for i, c := range idx {
		out[i] = [3]ShadedVertex{strip[c[0]], strip[c[1]], strip[c[2]]}
	}
	return out
}
