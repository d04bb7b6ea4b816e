package shader

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

const layoutSrc = `struct Light {
    dir: vec3<f32>,
    power: f32,
}

struct Params {
    tint: vec3<f32>,
    scale: f32,
    offset: vec2<f32>,
    light: Light,
    steps: array<vec4<f32>, 2>,
}

struct VertexIn {
    @location(2) uv: vec2<f32>,
    @location(0) position: vec3<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(1) @binding(3) var<uniform> model: mat3x3<f32>;

@vertex
fn vs_main(vin: VertexIn, @location(5) color: vec4<f32>, @builtin(vertex_index) vi: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(vin.position * params.scale, 1.0) + color * 0.0;
}
`

func TestInputs(t *testing.T) {
	p := mustCompile(t, layoutSrc)
	e, err := p.EntryFor(ir.StageVertex)
	if err != nil {
		t.Fatal(err)
	}
	in, err := p.Inputs(e)
	if err != nil {
		t.Fatalf("Inputs() error = %v", err)
	}
	want := []struct{ loc, size int }{{0, 3}, {2, 2}, {5, 4}}
	if len(in) != len(want) {
		t.Fatalf("Inputs() = %+v, want %d inputs", in, len(want))
	}
	for i, w := range want {
		if in[i].Location != w.loc || in[i].Type.Size != w.size || in[i].Type.Kind != KindF32 {
			t.Errorf("Inputs()[%d] = location %d %s, want location %d with %d components",
				i, in[i].Location, in[i].Type.TypeString(), w.loc, w.size)
		}
	}
}

func TestResources(t *testing.T) {
	p := mustCompile(t, layoutSrc)
	rs, err := p.Resources()
	if err != nil {
		t.Fatalf("Resources() error = %v", err)
	}
	if len(rs) != 2 {
		t.Fatalf("len(Resources()) = %d, want 2", len(rs))
	}
	if r := rs[1]; r.Name != "model" || r.Group != 1 || r.Binding != 3 || r.AddressSpace != "uniform" || !r.Type.IsMatrix() {
		t.Errorf("Resources()[1] = %+v", r)
	}
}

func TestUniformSize(t *testing.T) {
	p := mustCompile(t, layoutSrc)
	rs, err := p.Resources()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		v    Value
		want int
	}{
		{"f32", F32(1), 4},
		{"vec2", VecF32(1, 2), 8},
		{"vec3", VecF32(1, 2, 3), 12},
		{"mat2x2", Mat(2, 2), 16},
		{"mat3x3", rs[1].Type, 48},
		// tint 0..12, scale 12..16, offset 16..24, light 32..48, steps 48..80
		{"Params", rs[0].Type, 80},
	}
	for _, tt := range tests {
		got, err := UniformSize(tt.v)
		if err != nil {
			t.Errorf("UniformSize(%s) error = %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("UniformSize(%s) = %d, want %d", tt.name, got, tt.want)
		}
	}
	if _, err := UniformSize(Bool(true)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("UniformSize(bool) error = %v, want %v", err, ErrUnsupported)
	}
}

func TestEncodeUniform(t *testing.T) {
	p := mustCompile(t, layoutSrc)
	rs, err := p.Resources()
	if err != nil {
		t.Fatal(err)
	}
	params := rs[0].Type.Clone()
	params.Fields[0] = VecF32(1, 2, 3)
	params.Fields[1] = F32(4)
	params.Fields[2] = VecF32(5, 6)
	params.Fields[3].Fields[1] = F32(7)
	params.Fields[4].Fields[1] = VecF32(8, 0, 0, 0)

	buf, err := EncodeUniform(params)
	if err != nil {
		t.Fatalf("EncodeUniform() error = %v", err)
	}
	want := map[int]float32{0: 1, 4: 2, 8: 3, 12: 4, 16: 5, 20: 6, 44: 7, 64: 8}
	for off := 0; off < len(buf); off += 4 {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
		if got != want[off] {
			t.Errorf("EncodeUniform() at %d = %v, want %v", off, got, want[off])
		}
	}

	m, err := EncodeUniform(Mat(3, 3, 1, 2, 3, 4, 5, 6, 7, 8, 9))
	if err != nil {
		t.Fatalf("EncodeUniform(mat3x3) error = %v", err)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(m[16:])); got != 4 {
		t.Errorf("mat3x3 column 1 starts with %v, want 4", got)
	}

	i, err := EncodeUniform(Vec(KindI32, -1, 2))
	if err != nil {
		t.Fatalf("EncodeUniform(vec2<i32>) error = %v", err)
	}
	if got := int32(binary.LittleEndian.Uint32(i)); got != -1 {
		t.Errorf("vec2<i32>.x = %d, want -1", got)
	}
}

// The interpreter walks the naga WGSL syntax tree directly, so the pinned
// naga release must export it.
func TestParseExposesSyntaxTree(t *testing.T) {
	ast, err := naga.Parse(layoutSrc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(ast.Structs) != 3 || len(ast.GlobalVars) != 2 || len(ast.Functions) != 1 {
		t.Fatalf("Parse() = %d structs, %d globals, %d functions, want 3, 2, 1",
			len(ast.Structs), len(ast.GlobalVars), len(ast.Functions))
	}
	if got := ast.Structs[1].Members[3].Name; got != "light" {
		t.Errorf("Params member 3 = %q, want light", got)
	}
}
