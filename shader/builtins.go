package shader

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/chewxy/math32"
	"github.com/gogpu/naga/wgsl"
)

// builtinKind groups builtin functions by category.
type builtinKind uint8

const (
	builtinNumeric builtinKind = iota
	builtinGeometric
	builtinLogical
	builtinMatrix
	builtinBits
	builtinArray
	builtinAtomic
	builtinTexture
	builtinPacking
)

type builtin struct {
	kind    builtinKind
	minArgs int
	maxArgs int
	fn      func(m *Machine, args []Value) Value
}

// builtins maps WGSL builtin function names to implementations.
// Derivatives are handled separately because they need the unevaluated
// operand.
var builtins = make(map[string]*builtin)

type derivKind uint8

const (
	derivX derivKind = iota + 1
	derivY
	derivWidth
)

var derivativeFuncs = map[string]derivKind{
	"dpdx":         derivX,
	"dpdxCoarse":   derivX,
	"dpdxFine":     derivX,
	"dpdy":         derivY,
	"dpdyCoarse":   derivY,
	"dpdyFine":     derivY,
	"fwidth":       derivWidth,
	"fwidthCoarse": derivWidth,
	"fwidthFine":   derivWidth,
}

func init() {
	registerNumeric()
	registerGeometric()
	registerLogical()
	registerMatrix()
	registerBits()
	registerArray()
	registerTexture()
	registerPacking()
}

func register(name string, kind builtinKind, minArgs, maxArgs int, fn func(*Machine, []Value) Value) {
	builtins[name] = &builtin{kind: kind, minArgs: minArgs, maxArgs: maxArgs, fn: fn}
}

// float converts v to a concrete f32 value or fails.
func (m *Machine) float(v Value) Value {
	if v.Abstract {
		c, err := convert(v, KindF32)
		m.check(err)
		return c
	}
	if v.Kind != KindF32 {
		m.fail(fmt.Errorf("%w: expected float, got %s", ErrTypeMismatch, v.TypeString()))
	}
	return v
}

// broadcast returns the shape of the larger operand, failing when the
// shapes are incompatible.
func (m *Machine) broadcast(vs ...Value) Value {
	shape := vs[0]
	for _, v := range vs[1:] {
		switch {
		case v.Len() == shape.Len():
		case shape.IsScalar():
			shape = v
		case v.IsScalar():
		default:
			m.fail(fmt.Errorf("%w: %s and %s", ErrTypeMismatch, shape.TypeString(), v.TypeString()))
		}
	}
	return shape
}

func comp(v Value, i int) float64 {
	if v.IsScalar() {
		return v.comps[0]
	}
	return v.comps[i]
}

func unaryFloat(fn func(float32) float32, valid func(float32) bool) func(*Machine, []Value) Value {
	return func(m *Machine, a []Value) Value {
		v := m.float(a[0])
		out := v
		for i := 0; i < v.Len(); i++ {
			x := float32(v.comps[i])
			if valid != nil && !valid(x) {
				m.flag(UBInvalidMathDomain)
			}
			out.comps[i] = float64(fn(x))
		}
		return out
	}
}

func naryFloat(fn func(m *Machine, xs []float32) float32) func(*Machine, []Value) Value {
	return func(m *Machine, a []Value) Value {
		vs := make([]Value, len(a))
		for i := range a {
			vs[i] = m.float(a[i])
		}
		shape := m.broadcast(vs...)
		out := Value{Kind: KindF32, Size: shape.Size, Cols: shape.Cols}
		xs := make([]float32, len(vs))
		for i := 0; i < out.Len(); i++ {
			for j, v := range vs {
				xs[j] = float32(comp(v, i))
			}
			out.comps[i] = float64(fn(m, xs))
		}
		return out
	}
}

// naryNumeric applies fn component-wise to float or integer operands.
func naryNumeric(fn func(xs []float64) float64) func(*Machine, []Value) Value {
	return func(m *Machine, a []Value) Value {
		vs := append([]Value(nil), a...)
		for i := 1; i < len(vs); i++ {
			var err error
			vs[0], vs[i], err = unify(vs[0], vs[i])
			m.check(err)
		}
		for i := 1; i < len(vs); i++ {
			if vs[i].Kind != vs[0].Kind {
				c, err := convert(vs[i], vs[0].Kind)
				m.check(err)
				vs[i] = c
			}
		}
		for i := range vs {
			vs[i] = concrete(vs[i])
			if !vs[i].Kind.Numeric() || vs[i].Kind == KindBool {
				m.fail(fmt.Errorf("%w: numeric builtin on %s", ErrTypeMismatch, vs[i].TypeString()))
			}
		}
		shape := m.broadcast(vs...)
		out := Value{Kind: vs[0].Kind, Size: shape.Size, Cols: shape.Cols}
		xs := make([]float64, len(vs))
		for i := 0; i < out.Len(); i++ {
			for j, v := range vs {
				xs[j] = comp(v, i)
			}
			out.set(i, fn(xs))
		}
		return out
	}
}

func registerNumeric() {
	nonNeg := func(x float32) bool { return x >= 0 }
	positive := func(x float32) bool { return x > 0 }
	unit := func(x float32) bool { return x >= -1 && x <= 1 }

	for name, fn := range map[string]func(float32) float32{
		"floor": math32.Floor,
		"ceil":  math32.Ceil,
		"trunc": math32.Trunc,
		"round": func(x float32) float32 { return float32(math.RoundToEven(float64(x))) },
		"fract": func(x float32) float32 { return x - math32.Floor(x) },
		"exp":   math32.Exp,
		"exp2":  math32.Exp2,
		"sin":   math32.Sin,
		"cos":   math32.Cos,
		"tan":   math32.Tan,
		"atan":  math32.Atan,
		"sinh":  math32.Sinh,
		"cosh":  math32.Cosh,
		"tanh":  math32.Tanh,
		"asinh": func(x float32) float32 { return float32(math.Asinh(float64(x))) },
		"radians": func(x float32) float32 {
			return x * (math32.Pi / 180)
		},
		"degrees": func(x float32) float32 {
			return x * (180 / math32.Pi)
		},
		"saturate": func(x float32) float32 { return math32.Min(1, math32.Max(0, x)) },
	} {
		register(name, builtinNumeric, 1, 1, unaryFloat(fn, nil))
	}
	register("sqrt", builtinNumeric, 1, 1, unaryFloat(math32.Sqrt, nonNeg))
	register("inverseSqrt", builtinNumeric, 1, 1, unaryFloat(func(x float32) float32 { return 1 / math32.Sqrt(x) }, positive))
	register("log", builtinNumeric, 1, 1, unaryFloat(math32.Log, positive))
	register("log2", builtinNumeric, 1, 1, unaryFloat(math32.Log2, positive))
	register("asin", builtinNumeric, 1, 1, unaryFloat(math32.Asin, unit))
	register("acos", builtinNumeric, 1, 1, unaryFloat(math32.Acos, unit))
	register("acosh", builtinNumeric, 1, 1, unaryFloat(func(x float32) float32 {
		return float32(math.Acosh(float64(x)))
	}, func(x float32) bool { return x >= 1 }))
	register("atanh", builtinNumeric, 1, 1, unaryFloat(func(x float32) float32 {
		return float32(math.Atanh(float64(x)))
	}, func(x float32) bool { return x > -1 && x < 1 }))

	register("pow", builtinNumeric, 2, 2, naryFloat(func(m *Machine, xs []float32) float32 {
		if xs[0] < 0 || (xs[0] == 0 && xs[1] <= 0) {
			m.flag(UBInvalidMathDomain)
		}
		return math32.Pow(xs[0], xs[1])
	}))
	register("atan2", builtinNumeric, 2, 2, naryFloat(func(_ *Machine, xs []float32) float32 {
		return math32.Atan2(xs[0], xs[1])
	}))
	register("step", builtinNumeric, 2, 2, naryFloat(func(_ *Machine, xs []float32) float32 {
		if xs[1] >= xs[0] {
			return 1
		}
		return 0
	}))
	register("mix", builtinNumeric, 3, 3, naryFloat(func(_ *Machine, xs []float32) float32 {
		return xs[0]*(1-xs[2]) + xs[1]*xs[2]
	}))
	register("smoothstep", builtinNumeric, 3, 3, naryFloat(func(_ *Machine, xs []float32) float32 {
		t := math32.Min(1, math32.Max(0, (xs[2]-xs[0])/(xs[1]-xs[0])))
		return t * t * (3 - 2*t)
	}))
	register("fma", builtinNumeric, 3, 3, naryFloat(func(_ *Machine, xs []float32) float32 {
		return xs[0]*xs[1] + xs[2]
	}))

	register("abs", builtinNumeric, 1, 1, naryNumeric(func(xs []float64) float64 { return math.Abs(xs[0]) }))
	register("sign", builtinNumeric, 1, 1, naryNumeric(func(xs []float64) float64 {
		switch {
		case xs[0] > 0:
			return 1
		case xs[0] < 0:
			return -1
		}
		return 0
	}))
	register("min", builtinNumeric, 2, 2, naryNumeric(func(xs []float64) float64 { return math.Min(xs[0], xs[1]) }))
	register("max", builtinNumeric, 2, 2, naryNumeric(func(xs []float64) float64 { return math.Max(xs[0], xs[1]) }))
	register("clamp", builtinNumeric, 3, 3, naryNumeric(func(xs []float64) float64 {
		return math.Min(math.Max(xs[0], xs[1]), xs[2])
	}))
}

func (m *Machine) vec3(v Value) Value {
	v = m.float(v)
	if v.Size != 3 || v.Cols != 0 {
		m.fail(fmt.Errorf("%w: expected vec3<f32>, got %s", ErrTypeMismatch, v.TypeString()))
	}
	return v
}

func dot(a, b Value) float64 {
	var sum float32
	for i := 0; i < a.Len(); i++ {
		sum += float32(a.comps[i]) * float32(comp(b, i))
	}
	return float64(sum)
}

func length(v Value) float32 {
	return math32.Sqrt(float32(dot(v, v)))
}

func registerGeometric() {
	register("dot", builtinGeometric, 2, 2, func(m *Machine, a []Value) Value {
		l, r, err := unify(a[0], a[1])
		m.check(err)
		l, r = concrete(l), concrete(r)
		if l.Size != r.Size || !l.IsVector() {
			m.fail(fmt.Errorf("%w: dot of %s and %s", ErrTypeMismatch, l.TypeString(), r.TypeString()))
		}
		if l.Kind == KindF32 {
			return F32(float32(dot(l, r)))
		}
		var sum int64
		for i := 0; i < l.Size; i++ {
			sum += int64(l.comps[i]) * int64(r.comps[i])
		}
		return Vec(l.Kind, float64(sum))
	})
	register("cross", builtinGeometric, 2, 2, func(m *Machine, a []Value) Value {
		x, y := m.vec3(a[0]), m.vec3(a[1])
		return VecF32(
			float32(x.comps[1]*y.comps[2]-x.comps[2]*y.comps[1]),
			float32(x.comps[2]*y.comps[0]-x.comps[0]*y.comps[2]),
			float32(x.comps[0]*y.comps[1]-x.comps[1]*y.comps[0]),
		)
	})
	register("length", builtinGeometric, 1, 1, func(m *Machine, a []Value) Value {
		return F32(length(m.float(a[0])))
	})
	register("distance", builtinGeometric, 2, 2, func(m *Machine, a []Value) Value {
		return F32(length(m.binop(wgsl.TokenMinus, m.float(a[0]), m.float(a[1]))))
	})
	register("normalize", builtinGeometric, 1, 1, func(m *Machine, a []Value) Value {
		v := m.float(a[0])
		n := length(v)
		if n == 0 {
			m.flag(UBInvalidMathDomain)
		}
		out := v
		for i := 0; i < v.Len(); i++ {
			out.comps[i] = float64(float32(v.comps[i]) / n)
		}
		return out
	})
	register("reflect", builtinGeometric, 2, 2, func(m *Machine, a []Value) Value {
		e1, e2 := m.float(a[0]), m.float(a[1])
		d := float32(dot(e2, e1))
		out := e1
		for i := 0; i < e1.Len(); i++ {
			out.comps[i] = float64(float32(e1.comps[i]) - 2*d*float32(e2.comps[i]))
		}
		return out
	})
	register("faceForward", builtinGeometric, 3, 3, func(m *Machine, a []Value) Value {
		e1, e2, e3 := m.float(a[0]), m.float(a[1]), m.float(a[2])
		if dot(e2, e3) < 0 {
			return e1
		}
		out := e1
		for i := 0; i < e1.Len(); i++ {
			out.comps[i] = -e1.comps[i]
		}
		return out
	})
	register("refract", builtinGeometric, 3, 3, func(m *Machine, a []Value) Value {
		e1, e2 := m.float(a[0]), m.float(a[1])
		eta := float32(m.float(a[2]).comps[0])
		d := float32(dot(e2, e1))
		k := 1 - eta*eta*(1-d*d)
		out := Value{Kind: KindF32, Size: e1.Size}
		if k < 0 {
			return out
		}
		s := eta*d + math32.Sqrt(k)
		for i := 0; i < e1.Len(); i++ {
			out.comps[i] = float64(eta*float32(e1.comps[i]) - s*float32(e2.comps[i]))
		}
		return out
	})
}

func (m *Machine) boolArg(v Value) Value {
	if v.Kind != KindBool {
		m.fail(fmt.Errorf("%w: expected bool, got %s", ErrTypeMismatch, v.TypeString()))
	}
	return v
}

func registerLogical() {
	register("all", builtinLogical, 1, 1, func(m *Machine, a []Value) Value {
		v := m.boolArg(a[0])
		for i := 0; i < v.Len(); i++ {
			if !v.Truth(i) {
				return Bool(false)
			}
		}
		return Bool(true)
	})
	register("any", builtinLogical, 1, 1, func(m *Machine, a []Value) Value {
		v := m.boolArg(a[0])
		for i := 0; i < v.Len(); i++ {
			if v.Truth(i) {
				return Bool(true)
			}
		}
		return Bool(false)
	})
	register("select", builtinLogical, 3, 3, func(m *Machine, a []Value) Value {
		f, t, err := unify(a[0], a[1])
		m.check(err)
		cond := m.boolArg(a[2])
		if cond.IsScalar() {
			if cond.Truth(0) {
				return concrete(t)
			}
			return concrete(f)
		}
		if cond.Len() != f.Len() {
			m.fail(fmt.Errorf("%w: select of %s by %s", ErrTypeMismatch, f.TypeString(), cond.TypeString()))
		}
		out := concrete(f)
		t = concrete(t)
		for i := 0; i < out.Len(); i++ {
			if cond.Truth(i) {
				out.comps[i] = t.comps[i]
			}
		}
		return out
	})
}

func (m *Machine) matrix(v Value) Value {
	if !v.IsMatrix() {
		m.fail(fmt.Errorf("%w: expected matrix, got %s", ErrTypeMismatch, v.TypeString()))
	}
	return v
}

func registerMatrix() {
	register("transpose", builtinMatrix, 1, 1, func(m *Machine, a []Value) Value {
		v := m.matrix(a[0])
		out := Value{Kind: v.Kind, Size: v.Cols, Cols: v.Size}
		for c := 0; c < v.Cols; c++ {
			for r := 0; r < v.Size; r++ {
				out.comps[r*out.Size+c] = v.comps[c*v.Size+r]
			}
		}
		return out
	})
	register("determinant", builtinMatrix, 1, 1, func(m *Machine, a []Value) Value {
		v := m.matrix(a[0])
		if v.Cols != v.Size {
			m.fail(fmt.Errorf("%w: determinant of %s", ErrTypeMismatch, v.TypeString()))
		}
		return F32(float32(det(v.comps[:v.Len()], v.Size)))
	})
}

// det computes a determinant by cofactor expansion along the first column.
func det(a []float64, n int) float64 {
	if n == 1 {
		return a[0]
	}
	if n == 2 {
		return a[0]*a[3] - a[2]*a[1]
	}
	var sum float64
	sub := make([]float64, (n-1)*(n-1))
	for r := 0; r < n; r++ {
		k := 0
		for c := 1; c < n; c++ {
			for rr := 0; rr < n; rr++ {
				if rr == r {
					continue
				}
				sub[k] = a[c*n+rr]
				k++
			}
		}
		term := a[r] * det(sub, n-1)
		if r%2 == 1 {
			term = -term
		}
		sum += term
	}
	return sum
}

func (m *Machine) intArg(v Value) Value {
	v = concrete(v)
	if v.Kind != KindI32 && v.Kind != KindU32 {
		m.fail(fmt.Errorf("%w: expected integer, got %s", ErrTypeMismatch, v.TypeString()))
	}
	return v
}

func bitsBuiltin(fn func(uint32) int) func(*Machine, []Value) Value {
	return func(m *Machine, a []Value) Value {
		v := m.intArg(a[0])
		out := v
		for i := 0; i < v.Len(); i++ {
			out.set(i, float64(fn(uint32(int64(v.comps[i])))))
		}
		return out
	}
}

func registerBits() {
	register("countOneBits", builtinBits, 1, 1, bitsBuiltin(bits.OnesCount32))
	register("countLeadingZeros", builtinBits, 1, 1, bitsBuiltin(bits.LeadingZeros32))
	register("countTrailingZeros", builtinBits, 1, 1, bitsBuiltin(bits.TrailingZeros32))
	register("reverseBits", builtinBits, 1, 1, func(m *Machine, a []Value) Value {
		v := m.intArg(a[0])
		out := v
		for i := 0; i < v.Len(); i++ {
			r := bits.Reverse32(uint32(int64(v.comps[i])))
			if v.Kind == KindI32 {
				out.comps[i] = float64(int32(r))
			} else {
				out.comps[i] = float64(r)
			}
		}
		return out
	})
}

func (m *Machine) pointer(v Value) *Value {
	if v.Kind != KindPointer || v.ref == nil {
		m.fail(fmt.Errorf("%w: expected pointer, got %s", ErrTypeMismatch, v.TypeString()))
	}
	return v.ref
}

func registerArray() {
	register("arrayLength", builtinArray, 1, 1, func(m *Machine, a []Value) Value {
		arr := m.pointer(a[0])
		if arr.Kind != KindArray {
			m.fail(fmt.Errorf("%w: arrayLength of %s", ErrTypeMismatch, arr.TypeString()))
		}
		return U32(uint32(len(arr.Fields)))
	})
	register("atomicLoad", builtinAtomic, 1, 1, func(m *Machine, a []Value) Value {
		return *m.pointer(a[0])
	})
	register("atomicStore", builtinAtomic, 2, 2, func(m *Machine, a []Value) Value {
		p := m.pointer(a[0])
		v, err := coerce(a[1], *p)
		m.check(err)
		*p = v
		return Value{}
	})
	register("atomicAdd", builtinAtomic, 2, 2, func(m *Machine, a []Value) Value {
		p := m.pointer(a[0])
		old := *p
		*p = m.binop(wgsl.TokenPlus, old, a[1])
		return old
	})
}

func (m *Machine) texture(v Value) Texture {
	if v.Kind != KindTexture {
		m.fail(fmt.Errorf("%w: expected texture, got %s", ErrTypeMismatch, v.TypeString()))
	}
	return v.Texture
}

func texel(c [4]float32) Value {
	return VecF32(c[0], c[1], c[2], c[3])
}

func (m *Machine) sample(a []Value) Value {
	t := m.texture(a[0])
	uv := m.float(a[2])
	if t == nil {
		return VecF32(0, 0, 0, 0)
	}
	return texel(sampleNearest(t, float32(uv.comps[0]), float32(uv.comps[1])))
}

func registerTexture() {
	register("textureSample", builtinTexture, 3, 4, func(m *Machine, a []Value) Value { return m.sample(a) })
	register("textureSampleLevel", builtinTexture, 4, 5, func(m *Machine, a []Value) Value { return m.sample(a) })
	register("textureSampleBias", builtinTexture, 4, 5, func(m *Machine, a []Value) Value { return m.sample(a) })
	register("textureSampleGrad", builtinTexture, 5, 6, func(m *Machine, a []Value) Value { return m.sample(a) })
	register("textureLoad", builtinTexture, 2, 3, func(m *Machine, a []Value) Value {
		t := m.texture(a[0])
		if t == nil {
			return VecF32(0, 0, 0, 0)
		}
		c := m.intArg(a[1])
		w, h := t.Size()
		x, y := int(c.comps[0]), int(c.comps[1])
		if x < 0 || y < 0 || x >= w || y >= h {
			m.flag(UBIndexOutOfBounds)
			x, y = max(0, min(w-1, x)), max(0, min(h-1, y))
		}
		return texel(t.Texel(x, y))
	})
	register("textureDimensions", builtinTexture, 1, 2, func(m *Machine, a []Value) Value {
		t := m.texture(a[0])
		if t == nil {
			return Vec(KindU32, 0, 0)
		}
		w, h := t.Size()
		return Vec(KindU32, float64(w), float64(h))
	})
}

func registerPacking() {
	register("pack4x8unorm", builtinPacking, 1, 1, func(m *Machine, a []Value) Value {
		v := m.float(a[0])
		if v.Size != 4 {
			m.fail(fmt.Errorf("%w: pack4x8unorm of %s", ErrTypeMismatch, v.TypeString()))
		}
		var out uint32
		for i := 0; i < 4; i++ {
			x := math.Min(1, math.Max(0, v.comps[i]))
			out |= uint32(math.Floor(x*255+0.5)) << (8 * i)
		}
		return U32(out)
	})
	register("unpack4x8unorm", builtinPacking, 1, 1, func(m *Machine, a []Value) Value {
		p := uint32(m.intArg(a[0]).comps[0])
		return VecF32(
			float32(p&0xFF)/255,
			float32(p>>8&0xFF)/255,
			float32(p>>16&0xFF)/255,
			float32(p>>24)/255,
		)
	})
}
