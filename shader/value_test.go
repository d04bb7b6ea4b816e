package shader

import (
	"errors"
	"math"
	"testing"
)

func TestValueTypeString(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"f32", F32(1), "f32"},
		{"vec3", VecF32(1, 2, 3), "vec3<f32>"},
		{"ivec2", Vec(KindI32, 1, 2), "vec2<i32>"},
		{"mat", Mat(4, 4), "mat4x4<f32>"},
		{"array", Array(F32(1), F32(2)), "array<f32, 2>"},
		{"struct", Struct("Light", []string{"color"}, []Value{VecF32(1, 1, 1)}), "Light"},
		{"sampler", SamplerValue(), "sampler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.TypeString(); got != tt.want {
				t.Errorf("TypeString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		kind Kind
		want float64
	}{
		{"f32 to i32 truncates", F32(-2.75), KindI32, -2},
		{"f32 to i32 saturates", F32(3e9), KindI32, math.MaxInt32},
		{"f32 to u32 saturates negative", F32(-5), KindU32, 0},
		{"nan to i32", F32(float32(math.NaN())), KindI32, 0},
		{"i32 to u32 wraps", I32(-1), KindU32, math.MaxUint32},
		{"u32 to i32 wraps", U32(math.MaxUint32), KindI32, -1},
		{"f32 to bool", F32(0.5), KindBool, 1},
		{"bool to f32", Bool(true), KindF32, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convert(tt.v, tt.kind)
			if err != nil {
				t.Fatalf("convert() error = %v", err)
			}
			if got.Kind != tt.kind || got.Comp(0) != tt.want {
				t.Errorf("convert(%v, %s) = %v (%s), want %v", tt.v, tt.kind, got.Comp(0), got.Kind, tt.want)
			}
		})
	}
}

func TestCoerce(t *testing.T) {
	abstractOne := F32(1)
	abstractOne.Abstract = true
	abstractInt := Vec(KindI32, 3)
	abstractInt.Abstract = true

	got, err := coerce(abstractOne, VecF32(0, 0, 0))
	if err != nil {
		t.Fatalf("coerce(splat) error = %v", err)
	}
	if !approxEqual(got.Floats(), []float32{1, 1, 1}) || got.Abstract {
		t.Errorf("coerce(splat) = %v, want vec3<f32>(1, 1, 1)", got)
	}

	got, err = coerce(abstractInt, F32(0))
	if err != nil {
		t.Fatalf("coerce(abstract int) error = %v", err)
	}
	if got.Kind != KindF32 || got.Float(0) != 3 {
		t.Errorf("coerce(abstract int) = %v, want 3.0", got)
	}

	if _, err := coerce(I32(1), F32(0)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("coerce(i32 to f32) error = %v, want %v", err, ErrTypeMismatch)
	}
	if _, err := coerce(VecF32(1, 2), VecF32(0, 0, 0)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("coerce(vec2 to vec3) error = %v, want %v", err, ErrTypeMismatch)
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Array(F32(1), F32(2))
	c := orig.Clone()
	c.Fields[0] = F32(9)
	if orig.Fields[0].Float(0) != 1 {
		t.Errorf("Clone() shares storage: orig[0] = %v", orig.Fields[0])
	}
	if !orig.Equal(Array(F32(1), F32(2))) {
		t.Errorf("Equal() = false for identical arrays")
	}
}

func TestUBFlagsString(t *testing.T) {
	tests := []struct {
		f    UBFlags
		want string
	}{
		{0, "none"},
		{UBDivisionByZero, "division-by-zero"},
		{UBIndexOutOfBounds | UBShiftOverflow, "index-out-of-bounds|shift-overflow"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("UBFlags(%d).String() = %q, want %q", uint32(tt.f), got, tt.want)
		}
	}
}

func TestShapeOf(t *testing.T) {
	tests := []struct {
		name       string
		cols, rows int
		kind       Kind
		ok         bool
	}{
		{"vec3", 0, 3, KindInvalid, true},
		{"vec4f", 0, 4, KindF32, true},
		{"vec2u", 0, 2, KindU32, true},
		{"mat4x4", 4, 4, KindInvalid, true},
		{"mat2x3f", 2, 3, KindF32, true},
		{"mat2x3i", 0, 0, 0, false},
		{"vec5", 0, 0, 0, false},
		{"vector", 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols, rows, kind, ok := shapeOf(tt.name)
			if cols != tt.cols || rows != tt.rows || kind != tt.kind || ok != tt.ok {
				t.Errorf("shapeOf(%q) = %d, %d, %s, %v, want %d, %d, %s, %v",
					tt.name, cols, rows, kind, ok, tt.cols, tt.rows, tt.kind, tt.ok)
			}
		})
	}
}
