package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/naga/wgsl"
)

// scalarKinds maps WGSL scalar type names to value kinds. f16 is
// interpreted at f32 precision.
var scalarKinds = map[string]Kind{
	"bool": KindBool,
	"i32":  KindI32,
	"u32":  KindU32,
	"f32":  KindF32,
	"f16":  KindF32,
}

// shorthandSuffix maps the predeclared alias suffixes (vec4f, mat3x3h, ...).
var shorthandSuffix = map[byte]Kind{
	'f': KindF32,
	'h': KindF32,
	'i': KindI32,
	'u': KindU32,
}

// shapeOf parses a vector or matrix type name such as "vec3", "vec3f",
// "mat4x4" or "mat2x3h". kind is KindInvalid when the name carries no
// component suffix.
func shapeOf(name string) (cols, rows int, kind Kind, ok bool) {
	switch {
	case strings.HasPrefix(name, "vec") && (len(name) == 4 || len(name) == 5):
		rows = int(name[3] - '0')
		if rows < 2 || rows > 4 {
			return 0, 0, 0, false
		}
		if len(name) == 5 {
			if kind, ok = shorthandSuffix[name[4]]; !ok {
				return 0, 0, 0, false
			}
		}
		return 0, rows, kind, true
	case strings.HasPrefix(name, "mat") && (len(name) == 6 || len(name) == 7) && name[4] == 'x':
		cols, rows = int(name[3]-'0'), int(name[5]-'0')
		if cols < 2 || cols > 4 || rows < 2 || rows > 4 {
			return 0, 0, 0, false
		}
		if len(name) == 7 {
			k, ok := shorthandSuffix[name[6]]
			if !ok || (k != KindF32) {
				return 0, 0, 0, false
			}
			kind = k
		}
		return cols, rows, kind, true
	}
	return 0, 0, 0, false
}

// typeTemplate returns the zero value of t. Results are memoized in the
// program's type table, which is filled once at compile time.
func (p *Program) typeTemplate(t wgsl.Type) (Value, error) {
	if v, ok := p.types[t]; ok {
		return v, nil
	}
	return p.resolveType(t, 0)
}

func (p *Program) resolveType(t wgsl.Type, depth int) (Value, error) {
	if depth > 32 {
		return Value{}, fmt.Errorf("%w: recursive type", ErrUnknownType)
	}
	switch t := t.(type) {
	case nil:
		return Value{}, nil
	case *wgsl.ArrayType:
		elem, err := p.resolveType(t.Element, depth+1)
		if err != nil {
			return Value{}, err
		}
		n := 0
		if t.Size != nil {
			if n, err = p.constInt(t.Size); err != nil {
				return Value{}, err
			}
		}
		fields := make([]Value, n)
		for i := range fields {
			fields[i] = elem.Clone()
		}
		return Value{Kind: KindArray, Fields: fields}, nil
	case *wgsl.BindingArrayType:
		return p.resolveType(t.Element, depth+1)
	case *wgsl.PtrType:
		return p.resolveType(t.PointeeType, depth+1)
	case *wgsl.NamedType:
		return p.resolveNamed(t, depth)
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnknownType, t)
}

func (p *Program) resolveNamed(t *wgsl.NamedType, depth int) (Value, error) {
	name := t.Name
	if k, ok := scalarKinds[name]; ok {
		return Value{Kind: k, Size: 1}, nil
	}
	if cols, rows, kind, ok := shapeOf(name); ok {
		if kind == KindInvalid {
			if len(t.TypeParams) != 1 {
				return Value{}, fmt.Errorf("%w: %s needs a component type", ErrUnknownType, name)
			}
			elem, err := p.resolveType(t.TypeParams[0], depth+1)
			if err != nil {
				return Value{}, err
			}
			kind = elem.Kind
		}
		return Value{Kind: kind, Size: rows, Cols: cols}, nil
	}
	switch {
	case name == "atomic" && len(t.TypeParams) == 1:
		return p.resolveType(t.TypeParams[0], depth+1)
	case name == "sampler" || name == "sampler_comparison":
		return SamplerValue(), nil
	case strings.HasPrefix(name, "texture_"):
		return Value{Kind: KindTexture}, nil
	}
	if s, ok := p.structs[name]; ok {
		fields := make([]Value, len(s.Members))
		names := make([]string, len(s.Members))
		for i, m := range s.Members {
			v, err := p.resolveType(m.Type, depth+1)
			if err != nil {
				return Value{}, fmt.Errorf("%s.%s: %w", name, m.Name, err)
			}
			fields[i] = v
			names[i] = m.Name
		}
		return Struct(name, names, fields), nil
	}
	if a, ok := p.aliases[name]; ok {
		return p.resolveType(a, depth+1)
	}
	return Value{}, fmt.Errorf("%w: %s", ErrUnknownType, name)
}

// constInt evaluates an array size: an integer literal or the name of a
// module constant that folds to one.
func (p *Program) constInt(e wgsl.Expr) (int, error) {
	for range 16 {
		switch x := e.(type) {
		case *wgsl.Literal:
			v, err := parseLiteral(x)
			if err != nil {
				return 0, err
			}
			if v.Kind != KindI32 && v.Kind != KindU32 {
				return 0, fmt.Errorf("%w: array size %s", ErrTypeMismatch, x.Value)
			}
			return int(v.comps[0]), nil
		case *wgsl.Ident:
			c, ok := p.consts[x.Name]
			if !ok {
				return 0, fmt.Errorf("%w: %s", ErrUnknownIdentifier, x.Name)
			}
			e = c.Init
		default:
			return 0, fmt.Errorf("%w: array size must be constant", ErrUnsupported)
		}
	}
	return 0, fmt.Errorf("%w: constant chain too deep", ErrUnsupported)
}

// parseLiteral converts a literal token to a value. Unsuffixed numbers
// are abstract.
func parseLiteral(l *wgsl.Literal) (Value, error) {
	s := l.Value
	switch l.Kind {
	case wgsl.TokenBoolLiteral:
		return Bool(s == "true"), nil
	case wgsl.TokenFloatLiteral:
		abstract := true
		if strings.HasSuffix(s, "f") || strings.HasSuffix(s, "h") {
			s = s[:len(s)-1]
			abstract = false
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("shader: bad float literal %q: %w", l.Value, err)
		}
		v := Vec(KindF32, x)
		v.Abstract = abstract
		return v, nil
	case wgsl.TokenIntLiteral:
		kind, abstract := KindI32, true
		switch {
		case strings.HasSuffix(s, "u"):
			kind, abstract = KindU32, false
			s = s[:len(s)-1]
		case strings.HasSuffix(s, "i"):
			abstract = false
			s = s[:len(s)-1]
		}
		x, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("shader: bad int literal %q: %w", l.Value, err)
		}
		v := Value{Kind: kind, Size: 1, Abstract: abstract}
		if abstract {
			v.comps[0] = float64(x)
		} else {
			v.set(0, float64(x))
		}
		return v, nil
	}
	return Value{}, fmt.Errorf("%w: literal %q", ErrUnsupported, l.Value)
}

// isTypeName reports whether name denotes a type usable as a constructor.
func (p *Program) isTypeName(name string) bool {
	if _, ok := scalarKinds[name]; ok {
		return true
	}
	if _, _, _, ok := shapeOf(name); ok {
		return true
	}
	if _, ok := p.structs[name]; ok {
		return true
	}
	_, ok := p.aliases[name]
	return ok
}
