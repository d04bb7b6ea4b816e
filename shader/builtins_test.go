package shader

import (
	"testing"
)

func callBuiltin(t *testing.T, name string, args ...Value) (Value, UBFlags) {
	t.Helper()
	b, ok := builtins[name]
	if !ok {
		t.Fatalf("builtin %q not registered", name)
	}
	if len(args) < b.minArgs || len(args) > b.maxArgs {
		t.Fatalf("%s: %d args outside [%d, %d]", name, len(args), b.minArgs, b.maxArgs)
	}
	m, err := NewMachine(mustCompile(t, passthroughSrc), "fs_main")
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	v := b.fn(m, args)
	return v, m.UndefinedBehavior()
}

func TestBuiltins(t *testing.T) {
	solid := TextureValue(SolidTexture{0.25, 0.5, 0.75, 1})
	tests := []struct {
		name string
		fn   string
		args []Value
		kind Kind
		want []float32
	}{
		{"floor", "floor", []Value{VecF32(-1.5, 2.5)}, KindF32, []float32{-2, 2}},
		{"fract", "fract", []Value{F32(2.25)}, KindF32, []float32{0.25}},
		{"clamp int", "clamp", []Value{I32(7), I32(0), I32(5)}, KindI32, []float32{5}},
		{"max splat", "max", []Value{VecF32(-1, 3), F32(0)}, KindF32, []float32{0, 3}},
		{"mix", "mix", []Value{F32(0), F32(10), F32(0.25)}, KindF32, []float32{2.5}},
		{"step", "step", []Value{F32(0.5), VecF32(0.25, 0.75)}, KindF32, []float32{0, 1}},
		{"smoothstep", "smoothstep", []Value{F32(0), F32(1), F32(0.5)}, KindF32, []float32{0.5}},
		{"dot", "dot", []Value{VecF32(1, 2, 3), VecF32(4, 5, 6)}, KindF32, []float32{32}},
		{"dot int", "dot", []Value{Vec(KindI32, 1, 2), Vec(KindI32, 3, 4)}, KindI32, []float32{11}},
		{"cross", "cross", []Value{VecF32(1, 0, 0), VecF32(0, 1, 0)}, KindF32, []float32{0, 0, 1}},
		{"length", "length", []Value{VecF32(3, 4)}, KindF32, []float32{5}},
		{"distance", "distance", []Value{VecF32(4, 6), VecF32(1, 2)}, KindF32, []float32{5}},
		{"normalize", "normalize", []Value{VecF32(3, 4)}, KindF32, []float32{0.6, 0.8}},
		{"reflect", "reflect", []Value{VecF32(1, -1), VecF32(0, 1)}, KindF32, []float32{1, 1}},
		{"select vector", "select", []Value{VecF32(1, 2), VecF32(3, 4), Vec(KindBool, 1, 0)}, KindF32, []float32{3, 2}},
		{"select scalar", "select", []Value{F32(1), F32(3), Bool(false)}, KindF32, []float32{1}},
		{"all", "all", []Value{Vec(KindBool, 1, 1)}, KindBool, []float32{1}},
		{"any", "any", []Value{Vec(KindBool, 0, 0)}, KindBool, []float32{0}},
		{"determinant", "determinant", []Value{Mat(2, 2, 1, 2, 3, 4)}, KindF32, []float32{-2}},
		{"determinant 3x3", "determinant", []Value{Mat(3, 3, 2, 0, 0, 0, 3, 0, 0, 0, 4)}, KindF32, []float32{24}},
		{"transpose", "transpose", []Value{Mat(2, 3, 1, 2, 3, 4, 5, 6)}, KindF32, []float32{1, 4, 2, 5, 3, 6}},
		{"countOneBits", "countOneBits", []Value{U32(7)}, KindU32, []float32{3}},
		{"countLeadingZeros", "countLeadingZeros", []Value{U32(1)}, KindU32, []float32{31}},
		{"reverseBits", "reverseBits", []Value{U32(1)}, KindU32, []float32{0x80000000}},
		{"pack4x8unorm", "pack4x8unorm", []Value{VecF32(1, 0, 0, 1)}, KindU32, []float32{0xFF0000FF}},
		{"unpack4x8unorm", "unpack4x8unorm", []Value{U32(0xFF0000FF)}, KindF32, []float32{1, 0, 0, 1}},
		{"textureLoad", "textureLoad", []Value{solid, Vec(KindI32, 0, 0), I32(0)}, KindF32, []float32{0.25, 0.5, 0.75, 1}},
		{"textureSample", "textureSample", []Value{solid, SamplerValue(), VecF32(0.5, 0.5)}, KindF32, []float32{0.25, 0.5, 0.75, 1}},
		{"textureDimensions", "textureDimensions", []Value{solid}, KindU32, []float32{1, 1}},
		{"unbound texture", "textureSample", []Value{TextureValue(nil), SamplerValue(), VecF32(0.5, 0.5)}, KindF32, []float32{0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ub := callBuiltin(t, tt.fn, tt.args...)
			if got.Kind != tt.kind || !approxEqual(got.Floats(), tt.want) {
				t.Errorf("%s() = %v (%s), want %v (%s)", tt.fn, got.Floats(), got.Kind, tt.want, tt.kind)
			}
			if ub != 0 {
				t.Errorf("%s() flagged %v, want none", tt.fn, ub)
			}
		})
	}
}

func TestBuiltinsUndefinedBehavior(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		args []Value
		want UBFlags
	}{
		{"sqrt of negative", "sqrt", []Value{F32(-1)}, UBInvalidMathDomain},
		{"log of zero", "log", []Value{F32(0)}, UBInvalidMathDomain},
		{"acos out of range", "acos", []Value{F32(2)}, UBInvalidMathDomain},
		{"pow of negative base", "pow", []Value{F32(-2), F32(0.5)}, UBInvalidMathDomain},
		{"normalize zero", "normalize", []Value{VecF32(0, 0)}, UBInvalidMathDomain},
		{"textureLoad outside", "textureLoad", []Value{TextureValue(SolidTexture{1, 1, 1, 1}), Vec(KindI32, 3, 0), I32(0)}, UBIndexOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ub := callBuiltin(t, tt.fn, tt.args...); ub&tt.want == 0 {
				t.Errorf("%s() flags = %v, want %v", tt.fn, ub, tt.want)
			}
		})
	}
}

func TestDerivativeFuncsAreNotBuiltins(t *testing.T) {
	for name := range derivativeFuncs {
		if _, ok := builtins[name]; ok {
			t.Errorf("%s registered as a plain builtin", name)
		}
	}
}
