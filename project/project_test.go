package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderdbg"
	"github.com/gogpu/shaderdbg/pipeline"
	"github.com/gogpu/shaderdbg/shader"
)

const tintSrc = `struct Params {
    tint: vec4<f32>,
    gain: f32,
}

@group(0) @binding(0) var<uniform> params: Params;

@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    let c = params.tint * params.gain;
    return vec4<f32>(c.rgb * uv.x, 1.0);
}
`

const tomlProject = `
width = 8
height = 4
workers = 2
block_size = 4
pixel = [1, 2]

[[breakpoints]]
line = 11
condition = "uv.x > 0.5"
color = [0.0, 1.0, 0.0]

[[passes]]
name = "main"
pixel_shader = "tint.wgsl"
clear = [0.1, 0.2, 0.3, 1.0]
depth_test = true

  [[passes.items]]
  name = "screen"
  type = "geometry"
  geometry = "rectangle"

  [[passes.items]]
  name = "strip"
  type = "model"
  topology = "triangle-strip"
  vertices = [[-1.0, -1.0, 0.0], [1.0, -1.0, 0.0], [-1.0, 1.0, 0.0], [1.0, 1.0, 0.0]]

  [[passes.globals]]
  name = "params"
  type = "struct"

    [[passes.globals.fields]]
    name = "tint"
    type = "vec4"
    value = [1.0, 0.5, 0.25, 1.0]

    [[passes.globals.fields]]
    name = "gain"
    type = "f32"
    value = [2.0]
`

const yamlProject = `
width: 8
height: 4
passes:
  - name: main
    pixel_shader: tint.wgsl
    items:
      - name: buffer
        type: buffer
        format: float3;float3;float2
        vertices:
          - [-1, -1, 0, 0, 0, 1, 0, 0]
          - [1, -1, 0, 0, 0, 1, 1, 0]
          - [0, 1, 0, 0, 0, 1, 0.5, 1]
    globals:
      - name: params
        type: struct
        fields:
          - {name: tint, type: vec4, value: [1, 1, 1, 1]}
          - {name: gain, type: f32, value: [1]}
`

func writeProject(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tint.wgsl"), []byte(tintSrc), 0o600); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	p, err := Load(writeProject(t, "scene.toml", tomlProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Width != 8 || p.Height != 4 {
		t.Errorf("size = %dx%d, want 8x4", p.Width, p.Height)
	}
	if len(p.Passes) != 1 {
		t.Fatalf("len(Passes) = %d, want 1", len(p.Passes))
	}
	pass := p.Passes[0]
	if want := (gputypes.Color{R: 0.1, G: 0.2, B: 0.3, A: 1}); pass.ClearColor != want {
		t.Errorf("ClearColor = %+v, want %+v", pass.ClearColor, want)
	}
	if !pass.DepthTest {
		t.Errorf("DepthTest = false, want true")
	}
	if len(pass.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(pass.Items))
	}
	if it := pass.Items[0]; it.Type != pipeline.ItemGeometry || it.Geometry.Kind != pipeline.GeometryRectangle {
		t.Errorf("Items[0] = %s, want rectangle geometry", it.Type)
	}
	strip := pass.Items[1]
	if strip.Topology != gputypes.PrimitiveTopologyTriangleStrip {
		t.Errorf("Items[1].Topology = %v, want triangle strip", strip.Topology)
	}
	tris, err := strip.Triangles()
	if err != nil || len(tris) != 2 {
		t.Errorf("Items[1].Triangles() = %d triangles, %v, want 2, nil", len(tris), err)
	}

	params, ok := pass.Globals["params"]
	if !ok {
		t.Fatalf("Globals[params] missing")
	}
	gain, ok := params.Field("gain")
	if !ok || gain.Float(0) != 2 {
		t.Errorf("params.gain = %v, want 2", gain)
	}

	if len(p.Breakpoints) != 1 {
		t.Fatalf("len(Breakpoints) = %d, want 1", len(p.Breakpoints))
	}
	bp := p.Breakpoints[0]
	if bp.Line != 11 || bp.Condition != "uv.x > 0.5" || bp.Color != (gputypes.Color{G: 1, A: 1}) {
		t.Errorf("Breakpoints[0] = %+v", bp)
	}
	if len(p.Sources) != 1 || filepath.Base(p.Sources[0]) != "tint.wgsl" {
		t.Errorf("Sources = %v, want [tint.wgsl]", p.Sources)
	}
	if got := len(p.Options()); got != 3 {
		t.Errorf("len(Options()) = %d, want 3", got)
	}
}

func TestLoadYAMLRenders(t *testing.T) {
	p, err := Load(writeProject(t, "scene.yaml", yamlProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	it := p.Passes[0].Items[0]
	if it.Type != pipeline.ItemVertexBuffer {
		t.Fatalf("Items[0].Type = %s, want vertex buffer", it.Type)
	}
	tris, err := it.Triangles()
	if err != nil || len(tris) != 1 {
		t.Fatalf("Triangles() = %d triangles, %v, want 1, nil", len(tris), err)
	}
	if got := tris[0].Vertices[2].Texcoord; got[0] != 0.5 || got[1] != 1 {
		t.Errorf("vertex 2 texcoord = %v, want [0.5 1]", got)
	}

	a := shaderdbg.New(p.Options()...)
	defer a.Close()
	a.Init(p.Width, p.Height, p.Passes[0].ClearColor)
	if err := a.RenderPass(p.Passes[0]); err != nil {
		t.Fatalf("RenderPass() error = %v", err)
	}
	if s := a.Stats(); s.PixelsShaded == 0 || s.ShaderErrors != 0 {
		t.Errorf("Stats() = %+v, want shaded pixels and no shader errors", s)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, file, content string
		want                error
	}{
		{"extension", "scene.json", "{}", ErrUnknownFormat},
		{"no size", "scene.toml", "[[passes]]\npixel_shader = \"tint.wgsl\"\n", ErrInvalid},
		{"no passes", "scene.toml", "width = 4\nheight = 4\n", ErrInvalid},
		{"no pixel shader", "scene.toml", "width = 4\nheight = 4\n[[passes]]\nname = \"p\"\n", ErrInvalid},
		{"bad geometry", "scene.yaml", "width: 4\nheight: 4\npasses:\n  - pixel_shader: tint.wgsl\n    items:\n      - {type: geometry, geometry: sphere}\n", ErrInvalid},
		{"bad topology", "scene.yaml", "width: 4\nheight: 4\npasses:\n  - pixel_shader: tint.wgsl\n    items:\n      - {type: model, topology: fan}\n", ErrInvalid},
		{"bad format", "scene.yaml", "width: 4\nheight: 4\npasses:\n  - pixel_shader: tint.wgsl\n    items:\n      - {type: buffer, format: float5}\n", pipeline.ErrUnknownVertexFormat},
		{"bad colour", "scene.toml", "width = 4\nheight = 4\n[[passes]]\npixel_shader = \"tint.wgsl\"\nclear = [1.0, 2.0]\n", ErrInvalid},
		{"bad global", "scene.yaml", "width: 4\nheight: 4\npasses:\n  - pixel_shader: tint.wgsl\n    globals:\n      - {name: g, type: vec3, value: [1]}\n", ErrInvalid},
		{"bad breakpoint", "scene.toml", "width = 4\nheight = 4\n[[breakpoints]]\nline = 0\n[[passes]]\npixel_shader = \"tint.wgsl\"\n", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeProject(t, tt.file, tt.content))
			if !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	for _, tt := range []struct{ file, content string }{
		{"scene.toml", "width = 4\nheight = 4\ncolour = 1\n"},
		{"scene.yaml", "width: 4\nheight: 4\ncolour: 1\n"},
	} {
		if _, err := Load(writeProject(t, tt.file, tt.content)); err == nil {
			t.Errorf("Load(%s) with unknown key error = nil, want error", tt.file)
		}
	}
}

func TestNumericGlobals(t *testing.T) {
	tests := []struct {
		typ  string
		vals []float64
		want shader.Value
	}{
		{"f32", []float64{1.5}, shader.F32(1.5)},
		{"i32", []float64{-3}, shader.I32(-3)},
		{"u32", []float64{7}, shader.U32(7)},
		{"bool", []float64{1}, shader.Bool(true)},
		{"vec2", []float64{1, 2}, shader.VecF32(1, 2)},
		{"vec3i", []float64{1, 2, 3}, shader.Vec(shader.KindI32, 1, 2, 3)},
		{"vec4u", []float64{1, 2, 3, 4}, shader.Vec(shader.KindU32, 1, 2, 3, 4)},
		{"mat2x2", []float64{1, 2, 3, 4}, shader.Mat(2, 2, 1, 2, 3, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got, err := numeric(tt.typ, tt.vals)
			if err != nil {
				t.Fatalf("numeric(%s) error = %v", tt.typ, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("numeric(%s) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
	for _, bad := range []string{"vec5", "vec3q", "mat5x5", "f64"} {
		if _, err := numeric(bad, []float64{1, 2, 3, 4, 5}); !errors.Is(err, ErrInvalid) {
			t.Errorf("numeric(%s) error = %v, want %v", bad, err, ErrInvalid)
		}
	}
}
