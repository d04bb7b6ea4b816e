package shader

import (
	"fmt"
	"math"

	"github.com/gogpu/naga/wgsl"
)

func (m *Machine) eval(e wgsl.Expr) Value {
	m.instructions++
	switch e := e.(type) {
	case *wgsl.Literal:
		if v, ok := m.prog.literals[e]; ok {
			return v
		}
		v, err := parseLiteral(e)
		m.check(err)
		return v
	case *wgsl.Ident:
		return m.load(e.Name)
	case *wgsl.BinaryExpr:
		return m.binary(e)
	case *wgsl.UnaryExpr:
		return m.unary(e)
	case *wgsl.CallExpr:
		return m.call(e)
	case *wgsl.ConstructExpr:
		return m.constructExpr(e)
	case *wgsl.MemberExpr:
		return m.member(m.eval(e.Expr), e.Member)
	case *wgsl.IndexExpr:
		return m.index(m.eval(e.Expr), m.eval(e.Index))
	case *wgsl.BitcastExpr:
		return m.bitcast(e)
	case nil:
		m.fail(fmt.Errorf("%w: missing expression", ErrUnsupported))
	}
	m.fail(fmt.Errorf("%w: expression %T", ErrUnsupported, e))
	return Value{}
}

func (m *Machine) load(name string) Value {
	if b := m.binding(name); b != nil {
		if !b.init {
			m.flag(UBUninitializedRead)
		}
		return *b.val
	}
	if m.hasConst(name) {
		return m.constValue(name)
	}
	m.fail(fmt.Errorf("%w: %q", ErrUnknownIdentifier, name))
	return Value{}
}

func deref(v Value) Value {
	if v.Kind == KindPointer && v.ref != nil {
		return *v.ref
	}
	return v
}

var swizzleIndex = [256]int8{
	'x': 1, 'y': 2, 'z': 3, 'w': 4,
	'r': 1, 'g': 2, 'b': 3, 'a': 4,
}

// swizzle converts a member name to component indices.
func swizzle(name string, size int) ([]int, bool) {
	if len(name) == 0 || len(name) > 4 {
		return nil, false
	}
	idx := make([]int, len(name))
	for i := 0; i < len(name); i++ {
		c := int(swizzleIndex[name[i]]) - 1
		if c < 0 || c >= size {
			return nil, false
		}
		idx[i] = c
	}
	return idx, true
}

func (m *Machine) member(base Value, name string) Value {
	base = deref(base)
	if base.Kind == KindStruct {
		v, ok := base.Field(name)
		if !ok {
			m.fail(fmt.Errorf("%w: %s has no member %q", ErrUnknownIdentifier, base.TypeName, name))
		}
		return v
	}
	if base.IsVector() {
		idx, ok := swizzle(name, base.Size)
		if !ok {
			m.fail(fmt.Errorf("%w: bad swizzle .%s on %s", ErrTypeMismatch, name, base.TypeString()))
		}
		out := Value{Kind: base.Kind, Size: len(idx), Abstract: base.Abstract}
		for i, c := range idx {
			out.comps[i] = base.comps[c]
		}
		return out
	}
	m.fail(fmt.Errorf("%w: member .%s of %s", ErrTypeMismatch, name, base.TypeString()))
	return Value{}
}

// clampIndex bounds i to [0, n), flagging out-of-range accesses.
func (m *Machine) clampIndex(idx Value, n int) int {
	if !idx.IsScalar() || (idx.Kind != KindI32 && idx.Kind != KindU32) {
		m.fail(fmt.Errorf("%w: index is %s", ErrTypeMismatch, idx.TypeString()))
	}
	i := int(idx.comps[0])
	if n == 0 {
		m.flag(UBIndexOutOfBounds)
		m.fail(fmt.Errorf("%w: index into empty array", ErrUnsupported))
	}
	if i < 0 || i >= n {
		m.flag(UBIndexOutOfBounds)
		i = max(0, min(n-1, i))
	}
	return i
}

func (m *Machine) index(base, idx Value) Value {
	base = deref(base)
	switch {
	case base.Kind == KindArray:
		return base.Fields[m.clampIndex(idx, len(base.Fields))]
	case base.IsMatrix():
		c := m.clampIndex(idx, base.Cols)
		out := Value{Kind: base.Kind, Size: base.Size}
		copy(out.comps[:base.Size], base.comps[c*base.Size:])
		return out
	case base.IsVector():
		out := Value{Kind: base.Kind, Size: 1, Abstract: base.Abstract}
		out.comps[0] = base.comps[m.clampIndex(idx, base.Size)]
		return out
	}
	m.fail(fmt.Errorf("%w: cannot index %s", ErrTypeMismatch, base.TypeString()))
	return Value{}
}

// ref returns the storage an addressable expression refers to.
func (m *Machine) ref(e wgsl.Expr) *Value {
	switch e := e.(type) {
	case *wgsl.Ident:
		b := m.binding(e.Name)
		if b == nil {
			m.fail(fmt.Errorf("%w: %q is not a variable", ErrUnknownIdentifier, e.Name))
		}
		b.init = true
		if b.val.Kind == KindPointer {
			return b.val.ref
		}
		if !b.mutable {
			m.fail(fmt.Errorf("%w: %q is immutable", ErrTypeMismatch, e.Name))
		}
		return b.val
	case *wgsl.UnaryExpr:
		if e.Op == wgsl.TokenStar {
			p := m.eval(e.Operand)
			if p.Kind != KindPointer {
				m.fail(fmt.Errorf("%w: dereference of %s", ErrTypeMismatch, p.TypeString()))
			}
			return p.ref
		}
	case *wgsl.MemberExpr:
		base := m.ref(e.Expr)
		if base.Kind == KindStruct {
			for i, n := range base.Names {
				if n == e.Member {
					return &base.Fields[i]
				}
			}
			m.fail(fmt.Errorf("%w: %s has no member %q", ErrUnknownIdentifier, base.TypeName, e.Member))
		}
	case *wgsl.IndexExpr:
		base := m.ref(e.Expr)
		if base.Kind == KindArray {
			return &base.Fields[m.clampIndex(m.eval(e.Index), len(base.Fields))]
		}
	}
	m.fail(fmt.Errorf("%w: expression is not addressable", ErrUnsupported))
	return nil
}

// store writes v to an assignable expression.
func (m *Machine) store(e wgsl.Expr, v Value) {
	switch e := e.(type) {
	case *wgsl.MemberExpr:
		base := m.ref(e.Expr)
		if base.IsVector() {
			idx, ok := swizzle(e.Member, base.Size)
			if !ok || len(idx) != v.Len() {
				m.fail(fmt.Errorf("%w: cannot assign %s to .%s", ErrTypeMismatch, v.TypeString(), e.Member))
			}
			c, err := convertAbstract(v, base.Kind)
			m.check(err)
			for i, j := range idx {
				base.comps[j] = c.comps[i]
			}
			return
		}
	case *wgsl.IndexExpr:
		base := m.ref(e.Expr)
		switch {
		case base.IsVector():
			c, err := convertAbstract(v, base.Kind)
			m.check(err)
			base.comps[m.clampIndex(m.eval(e.Index), base.Size)] = c.comps[0]
			return
		case base.IsMatrix():
			col := m.clampIndex(m.eval(e.Index), base.Cols)
			c, err := convertAbstract(v, base.Kind)
			m.check(err)
			if c.Len() != base.Size {
				m.fail(fmt.Errorf("%w: column is %s", ErrTypeMismatch, v.TypeString()))
			}
			copy(base.comps[col*base.Size:], c.comps[:base.Size])
			return
		}
	}
	dst := m.ref(e)
	nv, err := coerce(v, *dst)
	m.check(err)
	*dst = nv.Clone()
}

// convertAbstract converts abstract values to k and checks concrete ones.
func convertAbstract(v Value, k Kind) (Value, error) {
	if v.Kind == k {
		return concrete(v), nil
	}
	if !v.Abstract {
		return v, fmt.Errorf("%w: %s is not %s", ErrTypeMismatch, v.TypeString(), k)
	}
	return convert(v, k)
}

func (m *Machine) unary(e *wgsl.UnaryExpr) Value {
	switch e.Op {
	case wgsl.TokenAmpersand:
		return Value{Kind: KindPointer, ref: m.ref(e.Operand)}
	case wgsl.TokenStar:
		return deref(m.eval(e.Operand))
	}
	v := m.eval(e.Operand)
	out := v
	switch e.Op {
	case wgsl.TokenMinus:
		if !v.Kind.Numeric() || v.Kind == KindBool {
			break
		}
		for i := 0; i < v.Len(); i++ {
			x := -v.comps[i]
			if !v.Abstract {
				x = normalize(v.Kind, x)
			}
			out.comps[i] = x
		}
		return out
	case wgsl.TokenBang:
		if v.Kind != KindBool {
			break
		}
		for i := 0; i < v.Len(); i++ {
			out.comps[i] = 1 - v.comps[i]
		}
		return out
	case wgsl.TokenTilde:
		if v.Kind != KindI32 && v.Kind != KindU32 {
			break
		}
		out = concrete(v)
		for i := 0; i < v.Len(); i++ {
			out.set(i, float64(^int64(out.comps[i])))
		}
		return out
	}
	m.fail(fmt.Errorf("%w: unary operator on %s", ErrTypeMismatch, v.TypeString()))
	return Value{}
}

func (m *Machine) binary(e *wgsl.BinaryExpr) Value {
	switch e.Op {
	case wgsl.TokenAmpAmp:
		if !m.condition(e.Left) {
			return Bool(false)
		}
		return Bool(m.condition(e.Right))
	case wgsl.TokenPipePipe:
		if m.condition(e.Left) {
			return Bool(true)
		}
		return Bool(m.condition(e.Right))
	}
	return m.binop(e.Op, m.eval(e.Left), m.eval(e.Right))
}

func (m *Machine) call(e *wgsl.CallExpr) Value {
	name := e.Func.Name
	if fn, ok := m.prog.functions[name]; ok {
		args := make([]Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = m.eval(a)
		}
		return m.callUser(fn, args)
	}
	if _, ok := derivativeFuncs[name]; ok {
		if len(e.Args) != 1 {
			m.fail(fmt.Errorf("%w: %s takes 1 argument", ErrTypeMismatch, name))
		}
		return m.derivative(name, e.Args[0])
	}
	if b, ok := builtins[name]; ok {
		if len(e.Args) < b.minArgs || len(e.Args) > b.maxArgs {
			m.fail(fmt.Errorf("%w: %s takes %d-%d arguments, got %d", ErrTypeMismatch, name, b.minArgs, b.maxArgs, len(e.Args)))
		}
		args := make([]Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = m.eval(a)
		}
		return b.fn(m, args)
	}
	if tmpl, ok := m.ctorTemplate(name); ok {
		args := make([]Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = m.eval(a)
		}
		return m.build(tmpl, args)
	}
	m.fail(fmt.Errorf("%w: %q", ErrUnknownFunction, name))
	return Value{}
}

// ctorTemplate resolves identifiers used as constructors: structs,
// aliases and predeclared shorthands like vec4f.
func (m *Machine) ctorTemplate(name string) (Value, bool) {
	if v, ok := m.ctors[name]; ok {
		return v, true
	}
	if !m.prog.isTypeName(name) {
		return Value{}, false
	}
	v, err := m.prog.resolveNamed(&wgsl.NamedType{Name: name}, 0)
	if err != nil {
		return Value{}, false
	}
	m.ctors[name] = v
	return v, true
}

func (m *Machine) callUser(fn *wgsl.FunctionDecl, args []Value) Value {
	if len(m.frames) >= maxCallDepth {
		m.fail(fmt.Errorf("%w: calling %s", ErrCallDepth, fn.Name))
	}
	if len(args) != len(fn.Params) {
		m.fail(fmt.Errorf("%w: %s takes %d arguments, got %d", ErrTypeMismatch, fn.Name, len(fn.Params), len(args)))
	}
	fr := &frame{fn: fn, vars: make([]binding, 0, len(args)+4)}
	for i, p := range fn.Params {
		v := args[i]
		if _, isPtr := p.Type.(*wgsl.PtrType); !isPtr {
			tmpl, err := m.prog.typeTemplate(p.Type)
			m.check(err)
			v, err = coerce(v, tmpl)
			m.check(err)
			v = v.Clone()
		}
		fr.vars = append(fr.vars, binding{name: p.Name, val: &v, init: true})
	}
	line := m.line
	m.frames = append(m.frames, fr)
	m.execBlock(fn.Body.Statements)
	m.frames = m.frames[:len(m.frames)-1]
	m.line = line
	return fr.ret
}

func (m *Machine) constructExpr(e *wgsl.ConstructExpr) Value {
	args := make([]Value, len(e.Args))
	for i, a := range e.Args {
		args[i] = m.eval(a)
	}
	if nt, ok := e.Type.(*wgsl.NamedType); ok && len(nt.TypeParams) == 0 {
		if cols, rows, kind, ok := shapeOf(nt.Name); ok && kind == KindInvalid {
			return m.build(Value{Kind: inferKind(args), Size: rows, Cols: cols}, args)
		}
	}
	if at, ok := e.Type.(*wgsl.ArrayType); ok && at.Element == nil && len(args) > 0 {
		return Array(args...)
	}
	tmpl, err := m.prog.typeTemplate(e.Type)
	m.check(err)
	return m.build(tmpl, args)
}

// inferKind picks the component kind of an inferred vector constructor.
func inferKind(args []Value) Kind {
	kind := KindInvalid
	for _, a := range args {
		if !a.Kind.Numeric() {
			continue
		}
		if !a.Abstract {
			return a.Kind
		}
		if kind == KindInvalid || a.Kind == KindF32 {
			kind = a.Kind
		}
	}
	if kind == KindInvalid {
		return KindF32
	}
	return kind
}

// build constructs a value of the template's type from args.
func (m *Machine) build(tmpl Value, args []Value) Value {
	if len(args) == 0 {
		return tmpl.Clone()
	}
	switch {
	case tmpl.Kind == KindStruct:
		if len(args) != len(tmpl.Fields) {
			m.fail(fmt.Errorf("%w: %s has %d members, got %d", ErrTypeMismatch, tmpl.TypeName, len(tmpl.Fields), len(args)))
		}
		out := tmpl.Clone()
		for i, a := range args {
			v, err := coerce(a, tmpl.Fields[i])
			m.check(err)
			out.Fields[i] = v.Clone()
		}
		return out
	case tmpl.Kind == KindArray:
		if len(tmpl.Fields) == 0 {
			return Array(args...)
		}
		if len(args) != len(tmpl.Fields) {
			m.fail(fmt.Errorf("%w: %s from %d elements", ErrTypeMismatch, tmpl.TypeString(), len(args)))
		}
		out := tmpl.Clone()
		for i, a := range args {
			v, err := coerce(a, tmpl.Fields[i])
			m.check(err)
			out.Fields[i] = v.Clone()
		}
		return out
	case !tmpl.Kind.Numeric():
		m.fail(fmt.Errorf("%w: cannot construct %s", ErrTypeMismatch, tmpl.TypeString()))
	}

	out := tmpl
	out.Abstract = false
	if len(args) == 1 {
		a := args[0]
		switch {
		case a.Len() == tmpl.Len() && a.Cols == tmpl.Cols:
			c, err := convert(a, tmpl.Kind)
			m.check(err)
			out.comps = c.comps
			return out
		case a.IsScalar() && !tmpl.IsMatrix():
			c, err := convert(a, tmpl.Kind)
			m.check(err)
			for i := 0; i < out.Len(); i++ {
				out.comps[i] = c.comps[0]
			}
			return out
		}
	}
	n := 0
	for _, a := range args {
		if !a.Kind.Numeric() || a.IsMatrix() {
			m.fail(fmt.Errorf("%w: %s in %s constructor", ErrTypeMismatch, a.TypeString(), tmpl.TypeString()))
		}
		c, err := convert(a, tmpl.Kind)
		m.check(err)
		for i := 0; i < c.Len(); i++ {
			if n >= out.Len() {
				m.fail(fmt.Errorf("%w: too many components for %s", ErrTypeMismatch, tmpl.TypeString()))
			}
			out.comps[n] = c.comps[i]
			n++
		}
	}
	if n != out.Len() {
		m.fail(fmt.Errorf("%w: %s needs %d components, got %d", ErrTypeMismatch, tmpl.TypeString(), out.Len(), n))
	}
	return out
}

func (m *Machine) bitcast(e *wgsl.BitcastExpr) Value {
	v := concrete(m.eval(e.Expr))
	tmpl, err := m.prog.typeTemplate(e.Type)
	m.check(err)
	if !v.Kind.Numeric() || v.Len() != tmpl.Len() {
		m.fail(fmt.Errorf("%w: bitcast %s to %s", ErrTypeMismatch, v.TypeString(), tmpl.TypeString()))
	}
	out := tmpl
	for i := 0; i < v.Len(); i++ {
		var bits uint32
		switch v.Kind {
		case KindF32:
			bits = math.Float32bits(float32(v.comps[i]))
		case KindI32:
			bits = uint32(int32(v.comps[i]))
		default:
			bits = uint32(v.comps[i])
		}
		switch tmpl.Kind {
		case KindF32:
			out.comps[i] = float64(math.Float32frombits(bits))
		case KindI32:
			out.comps[i] = float64(int32(bits))
		default:
			out.comps[i] = float64(bits)
		}
	}
	return out
}

// derivative evaluates a derivative builtin by re-evaluating the operand
// on the neighbor states. Outside the entry function, or without neighbor
// states, derivatives are zero.
func (m *Machine) derivative(name string, arg wgsl.Expr) Value {
	v := concrete(m.eval(arg))
	if v.Kind != KindF32 {
		m.fail(fmt.Errorf("%w: %s of %s", ErrTypeMismatch, name, v.TypeString()))
	}
	zero := Value{Kind: KindF32, Size: v.Size, Cols: v.Cols}
	if len(m.frames) != 1 || m.dx == nil || m.dy == nil {
		return zero
	}
	diff := func(sh *Machine) Value {
		n, ok := sh.evalQuiet(arg)
		if !ok || n.Kind != KindF32 || n.Len() != v.Len() {
			return zero
		}
		out := zero
		for i := 0; i < v.Len(); i++ {
			out.set(i, n.comps[i]-v.comps[i])
		}
		return out
	}
	switch derivativeFuncs[name] {
	case derivX:
		return diff(m.dx)
	case derivY:
		return diff(m.dy)
	}
	dx, dy := diff(m.dx), diff(m.dy)
	out := zero
	for i := 0; i < v.Len(); i++ {
		out.set(i, math.Abs(dx.comps[i])+math.Abs(dy.comps[i]))
	}
	return out
}
