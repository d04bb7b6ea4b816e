package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gogpu/gputypes"
)

// Layout errors.
var (
	// ErrEmptyLayout is returned for a format string with no fields.
	ErrEmptyLayout = errors.New("pipeline: empty input layout")

	// ErrUnknownVertexFormat is returned for an unrecognized field token.
	ErrUnknownVertexFormat = errors.New("pipeline: unknown vertex format")
)

type scalarKind uint8

const (
	scalarFloat scalarKind = iota
	scalarSint
	scalarUint
)

type formatInfo struct {
	format     gputypes.VertexFormat
	scalar     scalarKind
	components int
}

// vertexFormats maps format-string tokens to vertex formats. Both the
// short names and the WGSL type spellings are accepted.
var vertexFormats = map[string]formatInfo{
	"float":     {gputypes.VertexFormatFloat32, scalarFloat, 1},
	"float2":    {gputypes.VertexFormatFloat32x2, scalarFloat, 2},
	"float3":    {gputypes.VertexFormatFloat32x3, scalarFloat, 3},
	"float4":    {gputypes.VertexFormatFloat32x4, scalarFloat, 4},
	"int":       {gputypes.VertexFormatSint32, scalarSint, 1},
	"int2":      {gputypes.VertexFormatSint32x2, scalarSint, 2},
	"int3":      {gputypes.VertexFormatSint32x3, scalarSint, 3},
	"int4":      {gputypes.VertexFormatSint32x4, scalarSint, 4},
	"uint":      {gputypes.VertexFormatUint32, scalarUint, 1},
	"uint2":     {gputypes.VertexFormatUint32x2, scalarUint, 2},
	"uint3":     {gputypes.VertexFormatUint32x3, scalarUint, 3},
	"uint4":     {gputypes.VertexFormatUint32x4, scalarUint, 4},
	"f32":       {gputypes.VertexFormatFloat32, scalarFloat, 1},
	"vec2f":     {gputypes.VertexFormatFloat32x2, scalarFloat, 2},
	"vec2<f32>": {gputypes.VertexFormatFloat32x2, scalarFloat, 2},
	"vec3f":     {gputypes.VertexFormatFloat32x3, scalarFloat, 3},
	"vec3<f32>": {gputypes.VertexFormatFloat32x3, scalarFloat, 3},
	"vec4f":     {gputypes.VertexFormatFloat32x4, scalarFloat, 4},
	"vec4<f32>": {gputypes.VertexFormatFloat32x4, scalarFloat, 4},
	"i32":       {gputypes.VertexFormatSint32, scalarSint, 1},
	"u32":       {gputypes.VertexFormatUint32, scalarUint, 1},
}

// Attribute is one field of an input layout.
type Attribute struct {
	Format     gputypes.VertexFormat
	Offset     int
	Components int

	scalar scalarKind
}

// InputLayout describes the fields of a raw vertex buffer.
type InputLayout struct {
	Attributes []Attribute
	// Stride is the size of one vertex in bytes.
	Stride int
}

// ParseInputLayout parses a semicolon-separated format string such as
// "float3;float3;float2". Empty fields and surrounding spaces are ignored;
// tokens are case-insensitive.
func ParseInputLayout(format string) (InputLayout, error) {
	var l InputLayout
	for _, tok := range strings.Split(format, ";") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		info, ok := vertexFormats[tok]
		if !ok {
			return InputLayout{}, fmt.Errorf("%w: %q", ErrUnknownVertexFormat, tok)
		}
		l.Attributes = append(l.Attributes, Attribute{
			Format:     info.format,
			Offset:     l.Stride,
			Components: info.components,
			scalar:     info.scalar,
		})
		l.Stride += 4 * info.components
	}
	if len(l.Attributes) == 0 {
		return InputLayout{}, ErrEmptyLayout
	}
	return l, nil
}

// Formats returns the vertex format of every field.
func (l InputLayout) Formats() []gputypes.VertexFormat {
	out := make([]gputypes.VertexFormat, len(l.Attributes))
	for i, a := range l.Attributes {
		out[i] = a.Format
	}
	return out
}

// Count returns the number of whole vertices in a buffer of n bytes.
func (l InputLayout) Count(n int) int {
	if l.Stride == 0 {
		return 0
	}
	return n / l.Stride
}

// Decode reads vertex i from little-endian buffer data. The first three
// fields map to position, normal and texcoord; further fields are ignored.
// Integer fields are converted to float.
func (l InputLayout) Decode(data []byte, i int) (Vertex, bool) {
	if i < 0 || (i+1)*l.Stride > len(data) {
		return Vertex{}, false
	}
	base := data[i*l.Stride:]
	v := Vertex{Color: white}
	dst := [3][]float32{v.Position[:], v.Normal[:], v.Texcoord[:]}
	for k, a := range l.Attributes {
		if k >= len(dst) {
			break
		}
		for c := 0; c < a.Components && c < len(dst[k]); c++ {
			bits := binary.LittleEndian.Uint32(base[a.Offset+4*c:])
			switch a.scalar {
			case scalarFloat:
				dst[k][c] = math.Float32frombits(bits)
			case scalarSint:
				dst[k][c] = float32(int32(bits))
			case scalarUint:
				dst[k][c] = float32(bits)
			}
		}
	}
	return v, true
}

// EncodeVertices writes vertices as little-endian float32 data in the
// layout. Fields past texcoord are written as zero.
func (l InputLayout) EncodeVertices(vs []Vertex) []byte {
	out := make([]byte, len(vs)*l.Stride)
	for i := range vs {
		base := out[i*l.Stride:]
		src := [3][]float32{vs[i].Position[:], vs[i].Normal[:], vs[i].Texcoord[:]}
		for k, a := range l.Attributes {
			for c := 0; c < a.Components; c++ {
				var x float32
				if k < len(src) && c < len(src[k]) {
					x = src[k][c]
				}
				var bits uint32
				switch a.scalar {
				case scalarFloat:
					bits = math.Float32bits(x)
				case scalarSint:
					bits = uint32(int32(x))
				case scalarUint:
					bits = uint32(x)
				}
				binary.LittleEndian.PutUint32(base[a.Offset+4*c:], bits)
			}
		}
	}
	return out
}
