package shader

import (
	"errors"
	"testing"
)

const machineSrc = `
struct Uniforms {
    scale: f32,
    offset: vec2<f32>,
}

@group(0) @binding(0) var<uniform> u: Uniforms;

const TINT: f32 = 0.5;

fn double(x: f32) -> f32 {
    return x * 2.0;
}

fn divide(a: i32, b: i32) -> i32 {
    return a / b;
}

fn shl(a: u32, s: u32) -> u32 {
    return a << s;
}

fn pick(i: i32) -> f32 {
    var arr = array<f32, 3>(1.0, 2.0, 3.0);
    return arr[i];
}

fn uninit() -> f32 {
    var x: f32;
    return x;
}

fn spin() -> i32 {
    var n: i32 = 0;
    while (true) {
        n = n + 1;
        if (n < 0) {
            break;
        }
    }
    return n;
}

fn bump(p: ptr<function, f32>) {
    *p = *p + 1.0;
}

fn quad(x: f32) -> f32 {
    return double(double(x));
}

fn classify(n: i32) -> i32 {
    var r: i32 = 0;
    switch (n) {
        case 0: {
            r = 10;
        }
        case 1, 2: {
            r = 20;
        }
        default: {
            r = 30;
        }
    }
    return r;
}

@fragment
fn fs_main(@builtin(position) pos: vec4<f32>, @location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    var acc: f32 = 0.0;
    for (var i: i32 = 0; i < 4; i = i + 1) {
        if (i == 2) {
            continue;
        }
        acc = acc + 1.0;
    }
    bump(&acc);
    let d = double(uv.x);
    if (pos.x < 1.0) {
        discard;
    }
    return vec4<f32>(acc * TINT, d, u.scale, 1.0);
}
`

func newTestMachine(t *testing.T, src, entry string) *Machine {
	t.Helper()
	m, err := NewMachine(mustCompile(t, src), entry)
	if err != nil {
		t.Fatalf("NewMachine(%q) error = %v", entry, err)
	}
	return m
}

func uniforms(scale float32) Value {
	return Struct("Uniforms", []string{"scale", "offset"}, []Value{F32(scale), VecF32(0, 0)})
}

func TestMachineRun(t *testing.T) {
	m := newTestMachine(t, machineSrc, "fs_main")
	if err := m.SetGlobal("u", uniforms(0.25)); err != nil {
		t.Fatalf("SetGlobal() error = %v", err)
	}

	var inv Invocation
	inv.Position = [4]float32{5.5, 2.5, 0, 1}
	inv.Locations[0] = VecF32(0.25, 0.75)
	if err := m.Start(inv); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if m.Discarded() {
		t.Fatalf("Discarded() = true, want false")
	}
	want := []float32{2, 0.5, 0.25, 1}
	if got := m.Output().Floats(); !approxEqual(got, want) {
		t.Errorf("Output() = %v, want %v", got, want)
	}
	if m.Instructions() == 0 {
		t.Errorf("Instructions() = 0, want > 0")
	}
	if ub := m.UndefinedBehavior(); ub != 0 {
		t.Errorf("UndefinedBehavior() = %s, want none", ub)
	}
}

func TestMachineDiscard(t *testing.T) {
	m := newTestMachine(t, machineSrc, "fs_main")
	var inv Invocation
	inv.Position = [4]float32{0.5, 0.5, 0, 1}
	if err := m.Start(inv); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !m.Discarded() {
		t.Errorf("Discarded() = false, want true")
	}
}

func TestMachineRestart(t *testing.T) {
	m := newTestMachine(t, machineSrc, "fs_main")
	for _, x := range []float32{0.5, 5.5, 0.5} {
		var inv Invocation
		inv.Position = [4]float32{x, 0.5, 0, 1}
		if err := m.Start(inv); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := m.Run(); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if want := x < 1; m.Discarded() != want {
			t.Errorf("x=%v: Discarded() = %v, want %v", x, m.Discarded(), want)
		}
	}
}

func TestMachineCall(t *testing.T) {
	m := newTestMachine(t, machineSrc, "fs_main")
	tests := []struct {
		name   string
		fn     string
		args   []Value
		want   float64
		wantUB UBFlags
	}{
		{"double", "double", []Value{F32(1.5)}, 3, 0},
		{"divide", "divide", []Value{I32(7), I32(2)}, 3, 0},
		{"divide by zero", "divide", []Value{I32(7), I32(0)}, 7, UBDivisionByZero},
		{"divide overflow", "divide", []Value{I32(-2147483648), I32(-1)}, -2147483648, UBDivisionByZero},
		{"shift", "shl", []Value{U32(1), U32(4)}, 16, 0},
		{"shift overflow", "shl", []Value{U32(1), U32(33)}, 2, UBShiftOverflow},
		{"index", "pick", []Value{I32(1)}, 2, 0},
		{"index out of bounds", "pick", []Value{I32(5)}, 3, UBIndexOutOfBounds},
		{"negative index", "pick", []Value{I32(-1)}, 1, UBIndexOutOfBounds},
		{"uninitialized", "uninit", nil, 0, UBUninitializedRead},
		{"runaway loop", "spin", nil, 65536, UBInfiniteLoop},
		{"nested calls", "quad", []Value{F32(1.5)}, 6, 0},
		{"switch case", "classify", []Value{I32(0)}, 10, 0},
		{"switch list", "classify", []Value{I32(2)}, 20, 0},
		{"switch default", "classify", []Value{I32(7)}, 30, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Call(tt.fn, tt.args...)
			if err != nil {
				t.Fatalf("Call(%s) error = %v", tt.fn, err)
			}
			if got.Comp(0) != tt.want {
				t.Errorf("Call(%s) = %v, want %v", tt.fn, got.Comp(0), tt.want)
			}
			if ub := m.UndefinedBehavior(); ub != tt.wantUB {
				t.Errorf("Call(%s) UB = %s, want %s", tt.fn, ub, tt.wantUB)
			}
		})
	}

	if _, err := m.Call("nothing"); !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("Call(nothing) error = %v, want %v", err, ErrUnknownFunction)
	}
	if _, err := m.Call("double"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Call(double) without args error = %v, want %v", err, ErrTypeMismatch)
	}
}

const stepSrc = `
@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    var c = uv.x; // line a
    c = c + 1.0; // line b
    return vec4<f32>(c, 0.0, 0.0, 1.0); // line c
}
`

func TestMachineStep(t *testing.T) {
	m := newTestMachine(t, stepSrc, "fs_main")
	var inv Invocation
	inv.Locations[0] = VecF32(0.5, 0)
	if err := m.Start(inv); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []int{lineOf(t, stepSrc, "line a"), lineOf(t, stepSrc, "line b"), lineOf(t, stepSrc, "line c")}
	var got []int
	for m.Step() {
		got = append(got, m.Line())
		if m.Function() != "fs_main" {
			t.Errorf("Function() = %q, want fs_main", m.Function())
		}
	}
	if len(got) != len(want) {
		t.Fatalf("Step() paused at lines %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Step() #%d line = %d, want %d", i, got[i], want[i])
		}
	}
	if !m.Done() {
		t.Errorf("Done() = false after last Step")
	}
	if c := m.Output().Float(0); c != 1.5 {
		t.Errorf("Output().x = %v, want 1.5", c)
	}
}

func TestMachineLookupWhileStepping(t *testing.T) {
	m := newTestMachine(t, stepSrc, "fs_main")
	var inv Invocation
	inv.Locations[0] = VecF32(0.5, 0.25)
	if err := m.Start(inv); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	lineC := lineOf(t, stepSrc, "line c")
	for m.Step() && m.Line() != lineC {
	}
	c, ok := m.Lookup("c")
	if !ok || c.Float(0) != 1.5 {
		t.Errorf("Lookup(c) = %v, %v, want 1.5, true", c, ok)
	}
	y, ok := m.Lookup("uv.y")
	if !ok || y.Float(0) != 0.25 {
		t.Errorf("Lookup(uv.y) = %v, %v, want 0.25, true", y, ok)
	}
	if _, ok := m.Lookup("missing"); ok {
		t.Errorf("Lookup(missing) ok = true, want false")
	}
	if err := m.SetVariable("c", F32(10)); err != nil {
		t.Fatalf("SetVariable() error = %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if x := m.Output().Float(0); x != 10 {
		t.Errorf("Output().x = %v after SetVariable, want 10", x)
	}
}

func TestMachineStartAbandonsStep(t *testing.T) {
	m := newTestMachine(t, stepSrc, "fs_main")
	var inv Invocation
	inv.Locations[0] = VecF32(0.5, 0)
	if err := m.Start(inv); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Step()
	inv.Locations[0] = VecF32(2, 0)
	if err := m.Start(inv); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if x := m.Output().Float(0); x != 3 {
		t.Errorf("Output().x = %v, want 3", x)
	}
}

const derivSrc = `
@fragment
fn fs_main(@builtin(position) pos: vec4<f32>) -> @location(0) vec4<f32> {
    let x = pos.x * pos.x;
    let d = dpdx(x);
    let w = fwidth(pos.y);
    return vec4<f32>(d, w, dpdy(pos.x), 1.0);
}
`

func TestMachineDerivatives(t *testing.T) {
	p := mustCompile(t, derivSrc)
	if !p.UsesDerivatives() {
		t.Fatalf("UsesDerivatives() = false, want true")
	}
	start := func(x, y float32) *Machine {
		m, err := NewMachine(p, "fs_main")
		if err != nil {
			t.Fatalf("NewMachine() error = %v", err)
		}
		if err := m.Start(Invocation{Position: [4]float32{x, y, 0, 1}}); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		return m
	}
	m := start(2.5, 1.5)
	m.SetDerivativeStates(start(3.5, 1.5), start(2.5, 2.5))
	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []float32{6, 1, 0, 1}
	if got := m.Output().Floats(); !approxEqual(got, want) {
		t.Errorf("Output() = %v, want %v", got, want)
	}

	solo := start(2.5, 1.5)
	if err := solo.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := solo.Output().Floats(); !approxEqual(got, []float32{0, 0, 0, 1}) {
		t.Errorf("Output() without derivative states = %v, want zeros", got)
	}
}

func TestMachineClone(t *testing.T) {
	m := newTestMachine(t, machineSrc, "fs_main")
	if err := m.SetGlobal("u", uniforms(0.75)); err != nil {
		t.Fatalf("SetGlobal() error = %v", err)
	}
	c := m.Clone()
	var inv Invocation
	inv.Position = [4]float32{5.5, 0.5, 0, 1}
	if err := c.Start(inv); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if z := c.Output().Float(2); z != 0.75 {
		t.Errorf("clone Output().z = %v, want bound uniform 0.75", z)
	}
	if err := m.SetGlobal("missing", F32(1)); !errors.Is(err, ErrUnknownIdentifier) {
		t.Errorf("SetGlobal(missing) error = %v, want %v", err, ErrUnknownIdentifier)
	}
}

func TestMachineLineHook(t *testing.T) {
	m := newTestMachine(t, stepSrc, "fs_main")
	var lines []int
	m.SetLineHook(func(m *Machine) { lines = append(lines, m.Line()) })
	if err := m.Start(Invocation{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(lines) != 3 {
		t.Errorf("line hook ran %d times, want 3", len(lines))
	}
}
