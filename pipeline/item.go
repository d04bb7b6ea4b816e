package pipeline

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/shaderdbg/shader"
)

// Item errors.
var (
	// ErrMissingData is returned when an item has no payload for its type.
	ErrMissingData = errors.New("pipeline: item has no data")

	// ErrUnsupportedTopology is returned for point and line topologies.
	ErrUnsupportedTopology = errors.New("pipeline: unsupported topology")
)

// ItemType tags the payload of a drawable item.
type ItemType uint8

const (
	// ItemGeometry draws built-in geometry.
	ItemGeometry ItemType = iota
	// ItemModel draws a loaded model.
	ItemModel
	// ItemVertexBuffer draws a raw vertex buffer.
	ItemVertexBuffer
)

// String returns the item type name.
func (t ItemType) String() string {
	switch t {
	case ItemGeometry:
		return "geometry"
	case ItemModel:
		return "model"
	case ItemVertexBuffer:
		return "vertex buffer"
	default:
		return fmt.Sprintf("ItemType(%d)", t)
	}
}

// Model is an indexed triangle mesh held in memory. A nil Indices slice
// draws the vertices in order.
type Model struct {
	Vertices []Vertex
	Indices  []uint32
}

// VertexBuffer is raw little-endian vertex data with a format string.
type VertexBuffer struct {
	Format string
	Data   []byte
}

// Item is one drawable in a pass.
type Item struct {
	Name string
	Type ItemType

	Geometry *Geometry
	Model    *Model
	Buffer   *VertexBuffer

	// Topology applies to models and vertex buffers. Anything other than
	// a strip, point or line topology is a triangle list.
	Topology gputypes.PrimitiveTopology

	// Instances is the instance count; values below 1 draw once.
	Instances int
}

// InstanceCount returns the number of instances to draw.
func (it *Item) InstanceCount() int {
	return max(1, it.Instances)
}

// Triangle is one assembled primitive.
type Triangle struct {
	Vertices [3]Vertex
	// VertexIndex holds the vertex_index builtin of each vertex.
	VertexIndex [3]uint32
	// ID is the primitive index within the item.
	ID int
}

// Triangles decodes the item into triangles. Empty data yields no
// triangles and no error; an incomplete trailing primitive is dropped.
func (it *Item) Triangles() ([]Triangle, error) {
	var (
		verts []Vertex
		ids   []uint32
	)
	topology := gputypes.PrimitiveTopologyTriangleList

	switch it.Type {
	case ItemGeometry:
		if it.Geometry == nil {
			return nil, fmt.Errorf("%w: %s %q", ErrMissingData, it.Type, it.Name)
		}
		data := it.Geometry.Data()
		for i := 0; ; i++ {
			v, ok := DecodeVertex(it.Geometry.Kind, data, i)
			if !ok {
				break
			}
			verts = append(verts, v)
		}
	case ItemModel:
		if it.Model == nil {
			return nil, fmt.Errorf("%w: %s %q", ErrMissingData, it.Type, it.Name)
		}
		verts = it.Model.Vertices
		ids = it.Model.Indices
		topology = it.Topology
	case ItemVertexBuffer:
		if it.Buffer == nil {
			return nil, fmt.Errorf("%w: %s %q", ErrMissingData, it.Type, it.Name)
		}
		layout, err := ParseInputLayout(it.Buffer.Format)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", it.Name, err)
		}
		n := layout.Count(len(it.Buffer.Data))
		verts = make([]Vertex, n)
		for i := range verts {
			verts[i], _ = layout.Decode(it.Buffer.Data, i)
		}
		topology = it.Topology
	default:
		return nil, fmt.Errorf("pipeline: item %q: unknown type %s", it.Name, it.Type)
	}

	if ids == nil {
		ids = make([]uint32, len(verts))
		for i := range ids {
			ids[i] = uint32(i)
		}
	}

	var corners [][3]int
	switch topology {
	case gputypes.PrimitiveTopologyPointList, gputypes.PrimitiveTopologyLineList, gputypes.PrimitiveTopologyLineStrip:
		return nil, fmt.Errorf("%w: item %q", ErrUnsupportedTopology, it.Name)
	case gputypes.PrimitiveTopologyTriangleStrip:
		corners = StripIndices(len(ids))
	default:
		for i := 0; i+2 < len(ids); i += 3 {
			corners = append(corners, [3]int{i, i + 1, i + 2})
		}
	}

	tris := make([]Triangle, 0, len(corners))
	for id, c := range corners {
		t := Triangle{ID: id}
		ok := true
		for k, at := range c {
			idx := ids[at]
			if int(idx) >= len(verts) {
				ok = false
				break
			}
			t.Vertices[k] = verts[idx]
			t.VertexIndex[k] = idx
		}
		if ok {
			tris = append(tris, t)
		}
	}
	return tris, nil
}

// Pass is one render pass: the shaders, the items drawn in order and the
// globals bound to both shader stages.
type Pass struct {
	Name string

	// VertexShader may be nil, in which case positions pass through
	// unchanged. PixelShader is required.
	VertexShader   *shader.Program
	PixelShader    *shader.Program
	GeometryShader GeometryShader

	Items []*Item

	// Globals are bound by name to every stage declaring them; uniforms,
	// textures and samplers.
	Globals map[string]shader.Value

	ClearColor gputypes.Color
	DepthTest  bool
}
