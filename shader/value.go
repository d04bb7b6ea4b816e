package shader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the scalar or aggregate kind of a Value.
type Kind uint8

// Value kinds. Vectors and matrices carry the kind of their components.
const (
	KindInvalid Kind = iota
	KindBool
	KindI32
	KindU32
	KindF32
	KindStruct
	KindArray
	KindTexture
	KindSampler
	KindPointer
)

var kindNames = [...]string{"invalid", "bool", "i32", "u32", "f32", "struct", "array", "texture", "sampler", "ptr"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Numeric reports whether k is a scalar component kind.
func (k Kind) Numeric() bool {
	return k >= KindBool && k <= KindF32
}

// maxComponents is the component count of the largest matrix, mat4x4.
const maxComponents = 16

// Value is a WGSL value: a scalar, vector, matrix, struct, array or
// resource handle. Scalars have Size 1; vectors have Size 2-4; matrices have
// Cols columns of Size rows stored column-major.
//
// Integer and boolean components are stored as exact float64 values.
type Value struct {
	Kind Kind
	Size int
	Cols int

	// Abstract marks untyped literals that still adapt to their context.
	Abstract bool

	comps [maxComponents]float64

	Fields   []Value
	Names    []string
	TypeName string
	Texture  Texture

	// ref is the storage a pointer value refers to.
	ref *Value
}

// F32 returns an f32 scalar.
func F32(x float32) Value {
	v := Value{Kind: KindF32, Size: 1}
	v.comps[0] = float64(x)
	return v
}

// I32 returns an i32 scalar.
func I32(x int32) Value {
	v := Value{Kind: KindI32, Size: 1}
	v.comps[0] = float64(x)
	return v
}

// U32 returns a u32 scalar.
func U32(x uint32) Value {
	v := Value{Kind: KindU32, Size: 1}
	v.comps[0] = float64(x)
	return v
}

// Bool returns a bool scalar.
func Bool(b bool) Value {
	v := Value{Kind: KindBool, Size: 1}
	if b {
		v.comps[0] = 1
	}
	return v
}

// Vec returns a vector (or scalar, for one component) of the given kind.
func Vec(kind Kind, comps ...float64) Value {
	v := Value{Kind: kind, Size: len(comps)}
	for i, c := range comps {
		v.set(i, c)
	}
	return v
}

// VecF32 returns an f32 vector.
func VecF32(xs ...float32) Value {
	v := Value{Kind: KindF32, Size: len(xs)}
	for i, x := range xs {
		v.comps[i] = float64(x)
	}
	return v
}

// Mat returns a cols x rows f32 matrix from column-major components.
func Mat(cols, rows int, comps ...float32) Value {
	v := Value{Kind: KindF32, Size: rows, Cols: cols}
	for i := 0; i < cols*rows && i < len(comps); i++ {
		v.comps[i] = float64(comps[i])
	}
	return v
}

// Array returns an array value holding copies of elems.
func Array(elems ...Value) Value {
	fields := make([]Value, len(elems))
	for i, e := range elems {
		fields[i] = e.Clone()
	}
	return Value{Kind: KindArray, Fields: fields}
}

// Struct returns a struct value. names and fields must have equal length.
func Struct(typeName string, names []string, fields []Value) Value {
	return Value{Kind: KindStruct, TypeName: typeName, Names: names, Fields: fields}
}

// TextureValue wraps a texture for binding to a texture global.
func TextureValue(t Texture) Value {
	return Value{Kind: KindTexture, Texture: t}
}

// SamplerValue returns a sampler handle.
func SamplerValue() Value {
	return Value{Kind: KindSampler}
}

// Len returns the number of scalar components.
func (v Value) Len() int {
	if v.Cols > 0 {
		return v.Cols * v.Size
	}
	return v.Size
}

// IsScalar reports whether v is a single numeric component.
func (v Value) IsScalar() bool { return v.Kind.Numeric() && v.Size == 1 && v.Cols == 0 }

// IsVector reports whether v is a vector.
func (v Value) IsVector() bool { return v.Kind.Numeric() && v.Size > 1 && v.Cols == 0 }

// IsMatrix reports whether v is a matrix.
func (v Value) IsMatrix() bool { return v.Cols > 0 }

// Comp returns component i as float64.
func (v Value) Comp(i int) float64 { return v.comps[i] }

// Float returns component i as float32.
func (v Value) Float(i int) float32 { return float32(v.comps[i]) }

// Int returns component i as int32.
func (v Value) Int(i int) int32 { return int32(int64(v.comps[i])) }

// Uint returns component i as uint32.
func (v Value) Uint(i int) uint32 { return uint32(int64(v.comps[i])) }

// Truth returns component i as bool.
func (v Value) Truth(i int) bool { return v.comps[i] != 0 }

// Floats returns all components as float32.
func (v Value) Floats() []float32 {
	out := make([]float32, v.Len())
	for i := range out {
		out[i] = float32(v.comps[i])
	}
	return out
}

// Field returns the named struct member.
func (v Value) Field(name string) (Value, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Fields[i], true
		}
	}
	return Value{}, false
}

// Clone returns a deep copy; aggregates do not share storage with v.
func (v Value) Clone() Value {
	if v.Fields != nil {
		fields := make([]Value, len(v.Fields))
		for i, f := range v.Fields {
			fields[i] = f.Clone()
		}
		v.Fields = fields
	}
	return v
}

// Equal reports deep equality, ignoring Abstract.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Size != o.Size || v.Cols != o.Cols || v.TypeName != o.TypeName ||
		len(v.Fields) != len(o.Fields) || v.Texture != o.Texture || v.ref != o.ref {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if v.comps[i] != o.comps[i] && !(math.IsNaN(v.comps[i]) && math.IsNaN(o.comps[i])) {
			return false
		}
	}
	for i := range v.Fields {
		if !v.Fields[i].Equal(o.Fields[i]) {
			return false
		}
	}
	return true
}

// TypeString returns the WGSL spelling of the value's type.
func (v Value) TypeString() string {
	switch {
	case v.Kind == KindStruct:
		return v.TypeName
	case v.Kind == KindArray:
		elem := "?"
		if len(v.Fields) > 0 {
			elem = v.Fields[0].TypeString()
		}
		return fmt.Sprintf("array<%s, %d>", elem, len(v.Fields))
	case v.Kind == KindTexture:
		return "texture_2d<f32>"
	case v.Kind == KindSampler:
		return "sampler"
	case v.Kind == KindPointer:
		if v.ref != nil {
			return "ptr<" + v.ref.TypeString() + ">"
		}
		return "ptr"
	case v.Cols > 0:
		return fmt.Sprintf("mat%dx%d<%s>", v.Cols, v.Size, v.Kind)
	case v.Size > 1:
		return fmt.Sprintf("vec%d<%s>", v.Size, v.Kind)
	default:
		return v.Kind.String()
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindStruct:
		var b strings.Builder
		b.WriteString(v.TypeName)
		b.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(v.Names[i])
			b.WriteString(": ")
			b.WriteString(f.String())
		}
		b.WriteByte('}')
		return b.String()
	case KindArray:
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			parts[i] = f.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindTexture, KindSampler, KindPointer, KindInvalid:
		return v.TypeString()
	}
	if v.IsScalar() {
		return v.compString(0)
	}
	parts := make([]string, v.Len())
	for i := range parts {
		parts[i] = v.compString(i)
	}
	return v.TypeString() + "(" + strings.Join(parts, ", ") + ")"
}

func (v Value) compString(i int) string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.comps[i] != 0)
	case KindF32:
		return strconv.FormatFloat(v.comps[i], 'g', -1, 32)
	default:
		return strconv.FormatInt(int64(v.comps[i]), 10)
	}
}

// set stores component i, normalizing x to the value's kind.
func (v *Value) set(i int, x float64) {
	v.comps[i] = normalize(v.Kind, x)
}

func normalize(k Kind, x float64) float64 {
	switch k {
	case KindF32:
		return float64(float32(x))
	case KindI32:
		return float64(int32(int64(x)))
	case KindU32:
		return float64(uint32(int64(x)))
	case KindBool:
		if x != 0 {
			return 1
		}
		return 0
	}
	return x
}

// convert changes the component kind of a scalar, vector or matrix using
// WGSL value-conversion rules. Float to integer conversion saturates.
func convert(v Value, k Kind) (Value, error) {
	if v.Kind == k {
		v.Abstract = false
		return v, nil
	}
	if !v.Kind.Numeric() || !k.Numeric() {
		return v, fmt.Errorf("%w: cannot convert %s to %s", ErrTypeMismatch, v.TypeString(), k)
	}
	out := v
	out.Kind = k
	out.Abstract = false
	for i := 0; i < v.Len(); i++ {
		x := v.comps[i]
		switch k {
		case KindF32:
			out.comps[i] = float64(float32(x))
		case KindI32:
			switch v.Kind {
			case KindF32:
				out.comps[i] = saturate(x, math.MinInt32, math.MaxInt32)
			case KindU32:
				out.comps[i] = float64(int32(uint32(x)))
			default:
				out.comps[i] = x
			}
		case KindU32:
			switch v.Kind {
			case KindF32:
				out.comps[i] = saturate(x, 0, math.MaxUint32)
			case KindI32:
				out.comps[i] = float64(uint32(int32(x)))
			default:
				out.comps[i] = x
			}
		case KindBool:
			out.comps[i] = normalize(KindBool, x)
		}
	}
	return out, nil
}

func saturate(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	x = math.Trunc(x)
	return math.Max(lo, math.Min(hi, x))
}

// concrete resolves an abstract literal to its default concrete type.
func concrete(v Value) Value {
	if v.Abstract {
		v.Abstract = false
		for i := 0; i < v.Len(); i++ {
			v.comps[i] = normalize(v.Kind, v.comps[i])
		}
	}
	return v
}

// coerce adapts v to the shape of template: abstract numbers take the
// template kind, and aggregates are copied.
func coerce(v, template Value) (Value, error) {
	if template.Kind == KindInvalid {
		return concrete(v).Clone(), nil
	}
	if v.Kind.Numeric() && template.Kind.Numeric() {
		if v.Len() != template.Len() {
			if v.IsScalar() && v.Abstract {
				return splat(v, template)
			}
			return v, fmt.Errorf("%w: %s assigned to %s", ErrTypeMismatch, v.TypeString(), template.TypeString())
		}
		if v.Kind != template.Kind {
			if !v.Abstract {
				return v, fmt.Errorf("%w: %s assigned to %s", ErrTypeMismatch, v.TypeString(), template.TypeString())
			}
			return convert(v, template.Kind)
		}
		return concrete(v), nil
	}
	return v.Clone(), nil
}

func splat(s, template Value) (Value, error) {
	out := template
	out.Abstract = false
	c, err := convert(s, template.Kind)
	if err != nil {
		return out, err
	}
	for i := 0; i < out.Len(); i++ {
		out.comps[i] = c.comps[0]
	}
	return out, nil
}
