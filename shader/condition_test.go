package shader

import (
	"errors"
	"testing"
)

func TestCompileConditionErrors(t *testing.T) {
	p := mustCompile(t, stepSrc)
	tests := []struct {
		name     string
		function string
		expr     string
		want     error
	}{
		{"empty", "fs_main", "  ", ErrDegenerateCondition},
		{"syntax", "fs_main", "c >", ErrDegenerateCondition},
		{"two statements", "fs_main", "c); return (true", ErrDegenerateCondition},
		{"unknown identifier", "fs_main", "nope > 1.0", ErrUnknownIdentifier},
		{"unknown function", "nowhere", "true", ErrUnknownFunction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompileCondition(p, tt.function, tt.expr); !errors.Is(err, tt.want) {
				t.Errorf("CompileCondition(%q) error = %v, want %v", tt.expr, err, tt.want)
			}
		})
	}
}

func TestConditionCaptures(t *testing.T) {
	p := mustCompile(t, stepSrc)
	c, err := CompileCondition(p, "fs_main", "c > uv.x && c > 1.0")
	if err != nil {
		t.Fatalf("CompileCondition() error = %v", err)
	}
	want := []string{"c", "uv"}
	if len(c.Captured) != len(want) {
		t.Fatalf("Captured = %v, want %v", c.Captured, want)
	}
	for i := range want {
		if c.Captured[i] != want[i] {
			t.Errorf("Captured[%d] = %q, want %q", i, c.Captured[i], want[i])
		}
	}
}

func TestConditionEvaluate(t *testing.T) {
	p := mustCompile(t, stepSrc)
	cond, err := CompileCondition(p, "fs_main", "c > 1.0")
	if err != nil {
		t.Fatalf("CompileCondition() error = %v", err)
	}
	ev := NewEvaluator(cond)
	defer ev.Release()

	m, err := NewMachine(p, "fs_main")
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	var inv Invocation
	inv.Locations[0] = VecF32(0.5, 0)
	if err := m.Start(inv); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	lines := map[int]bool{
		lineOf(t, stepSrc, "line a"): false, // c not yet declared
		lineOf(t, stepSrc, "line b"): false, // c == 0.5
		lineOf(t, stepSrc, "line c"): true,  // c == 1.5
	}
	for m.Step() {
		want, ok := lines[m.Line()]
		if !ok {
			t.Fatalf("unexpected line %d", m.Line())
		}
		got, err := ev.Evaluate(m)
		if err != nil {
			t.Fatalf("Evaluate() at line %d error = %v", m.Line(), err)
		}
		if got != want {
			t.Errorf("Evaluate() at line %d = %v, want %v", m.Line(), got, want)
		}
	}
	if x := m.Output().Float(0); x != 1.5 {
		t.Errorf("Output().x = %v after evaluations, want 1.5", x)
	}
}

const isolationSrc = `
fn poke(p: ptr<function, f32>) -> bool {
    *p = 100.0;
    return true;
}

@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    var c = uv.x;
    c = c + 1.0; // mark
    return vec4<f32>(c, 0.0, 0.0, 1.0);
}
`

func TestConditionIsolation(t *testing.T) {
	p := mustCompile(t, isolationSrc)
	cond, err := CompileCondition(p, "fs_main", "poke(&c)")
	if err != nil {
		t.Fatalf("CompileCondition() error = %v", err)
	}
	ev := NewEvaluator(cond)

	m, err := NewMachine(p, "fs_main")
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	var inv Invocation
	inv.Locations[0] = VecF32(0.5, 0)
	if err := m.Start(inv); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	mark := lineOf(t, isolationSrc, "// mark")
	for m.Step() && m.Line() != mark {
	}
	before, _ := m.Lookup("c")
	hit, err := ev.Evaluate(m)
	if err != nil || !hit {
		t.Fatalf("Evaluate() = %v, %v, want true, nil", hit, err)
	}
	after, _ := m.Lookup("c")
	if !before.Equal(after) {
		t.Errorf("Evaluate() mutated c: %v -> %v", before, after)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if x := m.Output().Float(0); x != 1.5 {
		t.Errorf("Output().x = %v, want 1.5", x)
	}

	ev.Release()
	if _, err := ev.Evaluate(m); err == nil {
		t.Errorf("Evaluate() after Release error = nil, want error")
	}
}

func TestConditionDerivatives(t *testing.T) {
	p := mustCompile(t, derivSrc)
	cond, err := CompileCondition(p, "fs_main", "dpdx(x) > 5.0")
	if err != nil {
		t.Fatalf("CompileCondition() error = %v", err)
	}
	ev := NewEvaluator(cond)
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
	target := lineOf(t, derivSrc, "let w")
	for m.Step() && m.Line() != target {
	}
	hit, err := ev.Evaluate(m)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !hit {
		t.Errorf("Evaluate(dpdx(x) > 5.0) = false, want true")
	}
}
