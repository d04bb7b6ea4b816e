package shader

import (
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/gogpu/naga/wgsl"
)

// unify applies the abstract-numeric conversion rules to a pair of
// operands: an abstract operand takes the kind of a concrete one, and two
// abstract operands of different kinds promote to abstract float.
func unify(l, r Value) (Value, Value, error) {
	if l.Kind == r.Kind {
		return l, r, nil
	}
	var err error
	switch {
	case l.Abstract && !r.Abstract:
		l, err = convert(l, r.Kind)
	case r.Abstract && !l.Abstract:
		r, err = convert(r, l.Kind)
	case l.Abstract && r.Abstract:
		if l.Kind == KindI32 {
			l.Kind = KindF32
		} else {
			r.Kind = KindF32
		}
		return l, r, nil
	default:
		err = fmt.Errorf("%w: %s and %s", ErrTypeMismatch, l.TypeString(), r.TypeString())
	}
	return l, r, err
}

func isComparison(op wgsl.TokenKind) bool {
	switch op {
	case wgsl.TokenEqualEqual, wgsl.TokenBangEqual, wgsl.TokenLess,
		wgsl.TokenLessEqual, wgsl.TokenGreater, wgsl.TokenGreaterEqual:
		return true
	}
	return false
}

func (m *Machine) binop(op wgsl.TokenKind, l, r Value) Value {
	if !l.Kind.Numeric() || !r.Kind.Numeric() {
		m.fail(fmt.Errorf("%w: operator on %s and %s", ErrTypeMismatch, l.TypeString(), r.TypeString()))
	}
	if op == wgsl.TokenLessLess || op == wgsl.TokenGreaterGreater {
		return m.shift(op, l, r)
	}
	l, r, err := unify(l, r)
	m.check(err)
	if op == wgsl.TokenStar && !l.IsScalar() && !r.IsScalar() && (l.IsMatrix() || r.IsMatrix()) {
		return m.matMul(l, r)
	}

	shape := l
	switch {
	case l.Len() == r.Len() && l.Cols == r.Cols:
	case l.IsScalar():
		shape = r
	case r.IsScalar():
	default:
		m.fail(fmt.Errorf("%w: %s and %s", ErrTypeMismatch, l.TypeString(), r.TypeString()))
	}
	abstract := l.Abstract && r.Abstract
	out := Value{Kind: l.Kind, Size: shape.Size, Cols: shape.Cols, Abstract: abstract}
	if isComparison(op) {
		out.Kind, out.Abstract = KindBool, false
	}
	for i := 0; i < out.Len(); i++ {
		a, b := l.comps[0], r.comps[0]
		if !l.IsScalar() {
			a = l.comps[i]
		}
		if !r.IsScalar() {
			b = r.comps[i]
		}
		x := m.scalarOp(op, l.Kind, abstract, a, b)
		if !abstract {
			x = normalize(out.Kind, x)
		}
		out.comps[i] = x
	}
	return out
}

func (m *Machine) scalarOp(op wgsl.TokenKind, k Kind, abstract bool, a, b float64) float64 {
	switch op {
	case wgsl.TokenEqualEqual:
		return b2f(a == b)
	case wgsl.TokenBangEqual:
		return b2f(a != b)
	case wgsl.TokenLess:
		return b2f(a < b)
	case wgsl.TokenLessEqual:
		return b2f(a <= b)
	case wgsl.TokenGreater:
		return b2f(a > b)
	case wgsl.TokenGreaterEqual:
		return b2f(a >= b)
	}
	if k == KindBool {
		switch op {
		case wgsl.TokenAmpersand:
			return b2f(a != 0 && b != 0)
		case wgsl.TokenPipe:
			return b2f(a != 0 || b != 0)
		case wgsl.TokenCaret:
			return b2f((a != 0) != (b != 0))
		}
		m.fail(fmt.Errorf("%w: arithmetic on bool", ErrTypeMismatch))
	}
	if k == KindF32 {
		return m.floatOp(op, abstract, a, b)
	}
	return m.intOp(op, k, abstract, a, b)
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (m *Machine) floatOp(op wgsl.TokenKind, abstract bool, a, b float64) float64 {
	if abstract {
		switch op {
		case wgsl.TokenPlus:
			return a + b
		case wgsl.TokenMinus:
			return a - b
		case wgsl.TokenStar:
			return a * b
		case wgsl.TokenSlash:
			if b == 0 {
				m.flag(UBDivisionByZero)
			}
			return a / b
		case wgsl.TokenPercent:
			if b == 0 {
				m.flag(UBDivisionByZero)
			}
			return math.Mod(a, b)
		}
	}
	x, y := float32(a), float32(b)
	switch op {
	case wgsl.TokenPlus:
		return float64(x + y)
	case wgsl.TokenMinus:
		return float64(x - y)
	case wgsl.TokenStar:
		return float64(x * y)
	case wgsl.TokenSlash:
		if y == 0 {
			m.flag(UBDivisionByZero)
		}
		return float64(x / y)
	case wgsl.TokenPercent:
		if y == 0 {
			m.flag(UBDivisionByZero)
		}
		return float64(math32.Mod(x, y))
	}
	m.fail(fmt.Errorf("%w: bitwise operator on f32", ErrTypeMismatch))
	return 0
}

// intOp implements i32 and u32 arithmetic with two's complement wrapping.
// Division by zero yields the dividend and remainder by zero yields zero,
// both flagged.
func (m *Machine) intOp(op wgsl.TokenKind, k Kind, abstract bool, a, b float64) float64 {
	x, y := int64(a), int64(b)
	switch op {
	case wgsl.TokenPlus:
		return float64(x + y)
	case wgsl.TokenMinus:
		return float64(x - y)
	case wgsl.TokenStar:
		if k == KindU32 && !abstract {
			return float64(uint32(x) * uint32(y))
		}
		if !abstract {
			return float64(int32(x) * int32(y))
		}
		return float64(x * y)
	case wgsl.TokenSlash, wgsl.TokenPercent:
		if y == 0 {
			m.flag(UBDivisionByZero)
			if op == wgsl.TokenSlash {
				return a
			}
			return 0
		}
		if k == KindI32 && !abstract && x == math.MinInt32 && y == -1 {
			m.flag(UBDivisionByZero)
			if op == wgsl.TokenSlash {
				return a
			}
			return 0
		}
		if op == wgsl.TokenSlash {
			return float64(x / y)
		}
		return float64(x % y)
	case wgsl.TokenAmpersand:
		return float64(x & y)
	case wgsl.TokenPipe:
		return float64(x | y)
	case wgsl.TokenCaret:
		return float64(x ^ y)
	}
	m.fail(fmt.Errorf("%w: operator %v on %s", ErrUnsupported, op, k))
	return 0
}

// shift implements << and >>. Shift amounts of 32 or more are flagged and
// reduced modulo 32.
func (m *Machine) shift(op wgsl.TokenKind, l, r Value) Value {
	if l.Abstract {
		l = concrete(l)
	}
	if r.Abstract {
		var err error
		r, err = convert(r, KindU32)
		m.check(err)
	}
	if (l.Kind != KindI32 && l.Kind != KindU32) || r.Kind != KindU32 || (!r.IsScalar() && r.Len() != l.Len()) {
		m.fail(fmt.Errorf("%w: shift of %s by %s", ErrTypeMismatch, l.TypeString(), r.TypeString()))
	}
	out := l
	for i := 0; i < l.Len(); i++ {
		s := uint32(r.comps[0])
		if !r.IsScalar() {
			s = uint32(r.comps[i])
		}
		if s >= 32 {
			m.flag(UBShiftOverflow)
			s &= 31
		}
		if l.Kind == KindI32 {
			x := int32(l.comps[i])
			if op == wgsl.TokenLessLess {
				x <<= s
			} else {
				x >>= s
			}
			out.comps[i] = float64(x)
		} else {
			x := uint32(l.comps[i])
			if op == wgsl.TokenLessLess {
				x <<= s
			} else {
				x >>= s
			}
			out.comps[i] = float64(x)
		}
	}
	return out
}

// matMul multiplies matrices and vectors. Matrices are column-major with
// Size rows.
func (m *Machine) matMul(l, r Value) Value {
	if l.Kind != KindF32 {
		m.fail(fmt.Errorf("%w: matrix of %s", ErrTypeMismatch, l.Kind))
	}
	switch {
	case l.IsMatrix() && r.IsVector():
		if l.Cols != r.Size {
			break
		}
		out := Value{Kind: KindF32, Size: l.Size}
		for row := 0; row < l.Size; row++ {
			var sum float32
			for c := 0; c < l.Cols; c++ {
				sum += float32(l.comps[c*l.Size+row]) * float32(r.comps[c])
			}
			out.comps[row] = float64(sum)
		}
		return out
	case l.IsVector() && r.IsMatrix():
		if l.Size != r.Size {
			break
		}
		out := Value{Kind: KindF32, Size: r.Cols}
		for c := 0; c < r.Cols; c++ {
			var sum float32
			for row := 0; row < r.Size; row++ {
				sum += float32(l.comps[row]) * float32(r.comps[c*r.Size+row])
			}
			out.comps[c] = float64(sum)
		}
		return out
	case l.IsMatrix() && r.IsMatrix():
		if l.Cols != r.Size {
			break
		}
		out := Value{Kind: KindF32, Size: l.Size, Cols: r.Cols}
		for c := 0; c < r.Cols; c++ {
			for row := 0; row < l.Size; row++ {
				var sum float32
				for k := 0; k < l.Cols; k++ {
					sum += float32(l.comps[k*l.Size+row]) * float32(r.comps[c*r.Size+k])
				}
				out.comps[c*l.Size+row] = float64(sum)
			}
		}
		return out
	}
	m.fail(fmt.Errorf("%w: %s * %s", ErrTypeMismatch, l.TypeString(), r.TypeString()))
	return Value{}
}
