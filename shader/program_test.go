package shader

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/naga/ir"
)

const passthroughSrc = `
struct VertexOut {
    @builtin(position) pos: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(2) uv: vec2<f32>) -> VertexOut {
    var out: VertexOut;
    out.pos = vec4<f32>(position, 1.0);
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return vec4<f32>(uv.x, uv.y, 0.0, 1.0);
}
`

func TestCompileEntries(t *testing.T) {
	p := mustCompile(t, passthroughSrc)

	tests := []struct {
		stage ir.ShaderStage
		want  string
	}{
		{ir.StageVertex, "vs_main"},
		{ir.StageFragment, "fs_main"},
	}
	for _, tt := range tests {
		e, err := p.EntryFor(tt.stage)
		if err != nil {
			t.Fatalf("EntryFor(%d) error = %v", tt.stage, err)
		}
		if e.Name != tt.want {
			t.Errorf("EntryFor(%d) = %q, want %q", tt.stage, e.Name, tt.want)
		}
	}
	if _, err := p.EntryFor(ir.StageCompute); !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("EntryFor(compute) error = %v, want %v", err, ErrNoEntryPoint)
	}
	if _, err := p.Entry("missing"); !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("Entry(missing) error = %v, want %v", err, ErrNoEntryPoint)
	}
	if p.UsesDerivatives() {
		t.Errorf("UsesDerivatives() = true, want false")
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", "fn main( {"},
		{"unknown function", "@fragment\nfn fs() -> @location(0) vec4<f32> {\n    return nothing(1.0);\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.name, tt.src); err == nil {
				t.Errorf("Compile(%q) error = nil, want error", tt.src)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := mustCompile(t, passthroughSrc)
	b := mustCompile(t, passthroughSrc)
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("Fingerprint() differs for identical sources")
	}
	c, err := Compile("other.wgsl", passthroughSrc)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Errorf("Fingerprint() equal for different names")
	}
}

func TestSPIRV(t *testing.T) {
	p := mustCompile(t, passthroughSrc)
	code, err := p.SPIRV()
	if err != nil {
		t.Fatalf("SPIRV() error = %v", err)
	}
	if len(code) < 20 {
		t.Fatalf("SPIRV() returned %d bytes", len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != 0x07230203 {
		t.Errorf("SPIRV() magic = %#x, want 0x07230203", magic)
	}
}

func TestSplitOutput(t *testing.T) {
	p := mustCompile(t, passthroughSrc)
	vs, err := NewMachine(p, "vs_main")
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	var inv Invocation
	inv.Locations[0] = VecF32(1, 2, 3)
	inv.Locations[2] = VecF32(0.25, 0.75)
	if err := vs.Start(inv); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := vs.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := vs.Outputs()
	if !out.HasPosition || !approxEqual(out.Position.Floats(), []float32{1, 2, 3, 1}) {
		t.Errorf("Outputs().Position = %v, want vec4(1, 2, 3, 1)", out.Position)
	}
	if out.Mask != 1 || !approxEqual(out.Locations[0].Floats(), []float32{0.25, 0.75}) {
		t.Errorf("Outputs().Locations[0] = %v (mask %b), want vec2(0.25, 0.75)", out.Locations[0], out.Mask)
	}
}
